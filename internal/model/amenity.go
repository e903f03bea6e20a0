package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Amenity is a shared facility that can be booked in time slots.
type Amenity struct {
	ID           int64              `json:"id"`
	CommunityID  int64              `json:"community_id"`
	Name         string             `json:"name"`
	IsReservable bool               `json:"is_reservable"`
	Limits       *ReservationLimits `json:"limits,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ReservationLimits restricts when and how much an amenity may be booked.
// Every field is optional; a nil *ReservationLimits only enforces overlap.
type ReservationLimits struct {
	AllowedWeekdays         []time.Weekday      `json:"allowed_weekdays,omitempty"` // 0=Sunday
	ScheduleStart           *Clock              `json:"schedule_start,omitempty"`
	ScheduleEnd             *Clock              `json:"schedule_end,omitempty"`
	MaxReservationsPerMonth *int                `json:"max_reservations_per_month,omitempty"`
	MaxDurationHoursPerDay  decimal.NullDecimal `json:"max_duration_hours_per_day"`
	ExceptionDates          []Date              `json:"exception_dates,omitempty"`
}

// HasSchedule reports whether both opening-hour bounds are configured.
func (l *ReservationLimits) HasSchedule() bool {
	return l != nil && l.ScheduleStart != nil && l.ScheduleEnd != nil
}

// AllowsWeekday reports whether bookings are accepted on the given weekday.
// An empty weekday set places no restriction.
func (l *ReservationLimits) AllowsWeekday(day time.Weekday) bool {
	if l == nil || len(l.AllowedWeekdays) == 0 {
		return true
	}
	return slices.Contains(l.AllowedWeekdays, day)
}

// IsException reports whether the date is explicitly closed.
func (l *ReservationLimits) IsException(date Date) bool {
	if l == nil {
		return false
	}
	for _, d := range l.ExceptionDates {
		if d.SameDay(date) {
			return true
		}
	}
	return false
}
