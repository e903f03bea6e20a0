package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status represents reservation status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

// IsLive reports whether the status holds a claim on the slot.
func (s Status) IsLive() bool {
	return slices.Contains(LiveStatuses, s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

// LiveStatuses lists the statuses that occupy a slot.
var LiveStatuses = []Status{StatusPending, StatusApproved}

// QuotaKey identifies whose monthly and daily quotas a booking is charged to.
type QuotaKey string

// UnitQuotaKey charges a unit, shared by all its owners.
func UnitQuotaKey(unitID int64) QuotaKey {
	return QuotaKey(fmt.Sprintf("unit:%d", unitID))
}

// UserQuotaKey charges a single user without a unit.
func UserQuotaKey(userID int64) QuotaKey {
	return QuotaKey(fmt.Sprintf("user:%d", userID))
}

// Reservation is a claim on an amenity for a date and time range.
type Reservation struct {
	ID            int64     `json:"id"`
	CommunityID   int64     `json:"community_id"`
	AmenityID     int64     `json:"amenity_id"`
	AmenityName   string    `json:"amenity_name,omitempty"`
	SubjectUserID int64     `json:"subject_user_id"`
	CreatedBy     int64     `json:"created_by"`
	UnitID        *int64    `json:"unit_id,omitempty"`
	Date          Date      `json:"date"`
	StartTime     Clock     `json:"start_time"`
	EndTime       Clock     `json:"end_time"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	AdminNotes    string    `json:"admin_notes,omitempty"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Duration returns the booked length.
func (r *Reservation) Duration() time.Duration {
	return time.Duration(r.EndTime-r.StartTime) * time.Second
}

// OverlapsWith reports whether [start, end) intersects the reservation's half-open interval.
func (r *Reservation) OverlapsWith(start, end Clock) bool {
	return r.StartTime < end && r.EndTime > start
}

// IsLive reports whether the reservation still holds its slot.
func (r *Reservation) IsLive() bool {
	return r.Status.IsLive()
}

// QuotaKey returns the key the reservation was charged to.
func (r *Reservation) QuotaKey() QuotaKey {
	if r.UnitID != nil {
		return UnitQuotaKey(*r.UnitID)
	}
	return UserQuotaKey(r.SubjectUserID)
}
