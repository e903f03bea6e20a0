package reservation

import (
	"strings"

	"residia/internal/apperr"
	"residia/internal/model"
)

// Booking says on whose behalf a reservation is made.
type Booking interface {
	isBooking()
}

// SelfBooking books for the caller.
type SelfBooking struct{}

// DelegatedBooking books on behalf of another member. Requires administrative capability.
type DelegatedBooking struct {
	SubjectID int64
}

func (SelfBooking) isBooking()      {}
func (DelegatedBooking) isBooking() {}

// CreateRequest is a booking request. A nil Booking means SelfBooking.
type CreateRequest struct {
	AmenityID int64
	Date      model.Date
	Start     model.Clock
	End       model.Clock
	Notes     string
	Booking   Booking
}

func (r CreateRequest) validate() error {
	if r.Date.IsZero() {
		return apperr.Validation(apperr.ReasonInvalidTimeRange, "date is required")
	}
	if r.Start < 0 || r.End > model.SecondsPerDay || r.Start >= r.End {
		return apperr.Validation(apperr.ReasonInvalidTimeRange, "start time must be before end time")
	}
	return nil
}

// ListType selects the visibility scope of a listing.
type ListType string

const (
	ListCommunity ListType = "community"
	ListBlock     ListType = "block"
	ListOwn       ListType = "own"
)

// ParseListType accepts an empty string as "unspecified".
func ParseListType(s string) (ListType, error) {
	switch t := ListType(strings.ToLower(strings.TrimSpace(s))); t {
	case "", ListCommunity, ListBlock, ListOwn:
		return t, nil
	}
	return "", apperr.Validation(apperr.ReasonInvalidFilter, "type must be one of community, block, own")
}

// ListFilter narrows a listing. Dates are inclusive.
type ListFilter struct {
	Type      ListType
	Status    string
	AmenityID int64
	DateFrom  *model.Date
	DateTo    *model.Date
	Search    string
	Limit     int
}

// Query is the storage-level form of a listing, already authorized.
type Query struct {
	CommunityID int64
	Type        ListType
	// BlockIDs restricts ListBlock to reservations whose unit sits in one of these blocks.
	BlockIDs []int64
	// UserID restricts ListOwn to reservations authored by, charged to, or tied to a unit owned by the user.
	UserID    int64
	Status    model.Status
	AmenityID int64
	DateFrom  *model.Date
	DateTo    *model.Date
	Search    string
	Limit     int
}
