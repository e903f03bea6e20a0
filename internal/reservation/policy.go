package reservation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"residia/internal/apperr"
	"residia/internal/model"
)

// Candidate is a requested slot together with the quota key it is charged to.
type Candidate struct {
	Date     model.Date
	Start    model.Clock
	End      model.Clock
	ScopeKey model.QuotaKey
}

// Decision is the outcome of Validate. A zero Reason means accepted.
type Decision struct {
	Reason  string
	Message string
}

// Accepted reports whether the candidate passed every check.
func (d Decision) Accepted() bool {
	return d.Reason == ""
}

// Err returns the decision as a ValidationFailure, or nil when accepted.
func (d Decision) Err() error {
	if d.Accepted() {
		return nil
	}
	return apperr.Validation(d.Reason, d.Message)
}

var accepted = Decision{}

func reject(reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var secondsPerHour = decimal.NewFromInt(3600)

// Validate runs the booking checks in fixed fail-fast order:
// eligibility, weekday, exception date, opening hours, overlap, monthly quota, daily duration.
//
// sameDay holds the amenity's bookings on the candidate date and month its bookings in the
// candidate's calendar month; both may contain non-live entries, which are ignored.
func Validate(amenity *model.Amenity, c Candidate, sameDay, month []model.Reservation) Decision {
	if amenity == nil || !amenity.IsReservable {
		return reject(apperr.ReasonNotReservable, "amenity is not available for reservations")
	}
	limits := amenity.Limits

	if !limits.AllowsWeekday(c.Date.Weekday()) {
		return reject(apperr.ReasonClosedDay, "%s does not accept reservations on %s", amenity.Name, c.Date.Weekday())
	}

	if limits.IsException(c.Date) {
		return reject(apperr.ReasonClosedException, "%s is closed on %s", amenity.Name, c.Date)
	}

	if limits.HasSchedule() && !withinOpeningHours(*limits.ScheduleStart, *limits.ScheduleEnd, c.Start, c.End) {
		return reject(apperr.ReasonOutsideHours, "%s is open %s-%s", amenity.Name, limits.ScheduleStart, limits.ScheduleEnd)
	}

	for i := range sameDay {
		r := &sameDay[i]
		if r.AmenityID != amenity.ID || !r.IsLive() || !r.Date.SameDay(c.Date) {
			continue
		}
		if r.OverlapsWith(c.Start, c.End) {
			return reject(apperr.ReasonSlotTaken, "slot overlaps reservation %s-%s", r.StartTime, r.EndTime)
		}
	}

	if limits != nil && limits.MaxReservationsPerMonth != nil {
		limit := *limits.MaxReservationsPerMonth
		count := 0
		for i := range month {
			r := &month[i]
			if r.AmenityID == amenity.ID && r.IsLive() && r.Date.SameMonth(c.Date) && r.QuotaKey() == c.ScopeKey {
				count++
			}
		}
		if count >= limit {
			return reject(apperr.ReasonMonthlyLimit, "monthly limit of %d reservations reached", limit)
		}
	}

	if limits != nil && limits.MaxDurationHoursPerDay.Valid {
		limit := limits.MaxDurationHoursPerDay.Decimal
		total := int64(c.End - c.Start)
		for i := range sameDay {
			r := &sameDay[i]
			if r.AmenityID == amenity.ID && r.IsLive() && r.Date.SameDay(c.Date) && r.QuotaKey() == c.ScopeKey {
				total += int64(r.EndTime - r.StartTime)
			}
		}
		if decimal.NewFromInt(total).GreaterThan(limit.Mul(secondsPerHour)) {
			return reject(apperr.ReasonDailyLimit, "daily limit of %s hours exceeded", limit.String())
		}
	}

	return accepted
}

// withinOpeningHours checks [start, end) against the opening window.
// A window with open > close wraps past midnight; the request must then fit
// entirely before close or entirely after open.
func withinOpeningHours(opens, closes, start, end model.Clock) bool {
	if opens <= closes {
		return start >= opens && end <= closes
	}
	return end <= closes || start >= opens
}
