package reservation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"residia/internal/apperr"
	"residia/internal/model"
)

var june15 = model.NewDate(2025, time.June, 15)

func clockPtr(h, m int) *model.Clock {
	c := model.NewClock(h, m)
	return &c
}

func intPtr(v int) *int { return &v }

// pool is the amenity used throughout: open 08:00-20:00, 2 hours a day, 4 bookings a month.
func pool() *model.Amenity {
	return &model.Amenity{
		ID:           1,
		CommunityID:  1,
		Name:         "Pool",
		IsReservable: true,
		Limits: &model.ReservationLimits{
			ScheduleStart:           clockPtr(8, 0),
			ScheduleEnd:             clockPtr(20, 0),
			MaxDurationHoursPerDay:  decimal.NewNullDecimal(decimal.NewFromInt(2)),
			MaxReservationsPerMonth: intPtr(4),
		},
	}
}

func booking(date model.Date, sh, sm, eh, em int, status model.Status, subject int64) model.Reservation {
	return model.Reservation{
		AmenityID:     1,
		SubjectUserID: subject,
		Date:          date,
		StartTime:     model.NewClock(sh, sm),
		EndTime:       model.NewClock(eh, em),
		Status:        status,
	}
}

func candidate(date model.Date, sh, sm, eh, em int) Candidate {
	return Candidate{
		Date:     date,
		Start:    model.NewClock(sh, sm),
		End:      model.NewClock(eh, em),
		ScopeKey: model.UserQuotaKey(42),
	}
}

func TestValidate_PoolBookings(t *testing.T) {
	t.Run("accepted inside hours", func(t *testing.T) {
		d := Validate(pool(), candidate(june15, 10, 0, 11, 0), nil, nil)
		assert.True(t, d.Accepted())
		assert.NoError(t, d.Err())
	})

	t.Run("outside hours", func(t *testing.T) {
		d := Validate(pool(), candidate(june15, 21, 0, 22, 0), nil, nil)
		assert.Equal(t, apperr.ReasonOutsideHours, d.Reason)
	})

	t.Run("daily duration exceeded", func(t *testing.T) {
		d := Validate(pool(), candidate(june15, 10, 0, 13, 0), nil, nil)
		assert.Equal(t, apperr.ReasonDailyLimit, d.Reason)
	})

	t.Run("overlapping pending booking", func(t *testing.T) {
		existing := []model.Reservation{booking(june15, 12, 0, 13, 0, model.StatusPending, 7)}
		d := Validate(pool(), candidate(june15, 12, 30, 13, 30), existing, existing)

		assert.Equal(t, apperr.ReasonSlotTaken, d.Reason)
		err := d.Err()
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, apperr.ReasonSlotTaken, apperr.ReasonOf(err))
	})
}

func TestValidate_Eligibility(t *testing.T) {
	assert.Equal(t, apperr.ReasonNotReservable, Validate(nil, candidate(june15, 10, 0, 11, 0), nil, nil).Reason)

	a := pool()
	a.IsReservable = false
	assert.Equal(t, apperr.ReasonNotReservable, Validate(a, candidate(june15, 10, 0, 11, 0), nil, nil).Reason)

	a = pool()
	a.Limits = nil
	assert.True(t, Validate(a, candidate(june15, 0, 0, 23, 0), nil, nil).Accepted(), "no limits only checks overlap")
}

func TestValidate_WeekdaysAndExceptions(t *testing.T) {
	a := pool()
	a.Limits.AllowedWeekdays = []time.Weekday{time.Monday, time.Tuesday}

	// 2025-06-15 is a Sunday
	assert.Equal(t, apperr.ReasonClosedDay, Validate(a, candidate(june15, 10, 0, 11, 0), nil, nil).Reason)
	monday := model.NewDate(2025, time.June, 16)
	assert.True(t, Validate(a, candidate(monday, 10, 0, 11, 0), nil, nil).Accepted())

	a.Limits.ExceptionDates = []model.Date{monday}
	assert.Equal(t, apperr.ReasonClosedException, Validate(a, candidate(monday, 10, 0, 11, 0), nil, nil).Reason)

	// weekday is checked before the exception date
	a.Limits.ExceptionDates = []model.Date{june15}
	assert.Equal(t, apperr.ReasonClosedDay, Validate(a, candidate(june15, 10, 0, 11, 0), nil, nil).Reason)
}

func TestValidate_OpeningHours(t *testing.T) {
	tests := []struct {
		name       string
		open       *model.Clock
		close      *model.Clock
		start, end model.Clock
		ok         bool
	}{
		{"same day inside", clockPtr(8, 0), clockPtr(20, 0), model.NewClock(8, 0), model.NewClock(20, 0), true},
		{"same day starts early", clockPtr(8, 0), clockPtr(20, 0), model.NewClock(7, 30), model.NewClock(9, 0), false},
		{"same day ends late", clockPtr(8, 0), clockPtr(20, 0), model.NewClock(19, 0), model.NewClock(20, 30), false},
		{"wrapped evening", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(22, 0), model.NewClock(23, 30), true},
		{"wrapped until midnight", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(23, 0), model.SecondsPerDay, true},
		{"wrapped early morning", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(1, 0), model.NewClock(6, 0), true},
		{"wrapped daytime", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(12, 0), model.NewClock(13, 0), false},
		{"wrapped ends in gap", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(5, 0), model.NewClock(7, 0), false},
		{"wrapped starts in gap", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(21, 0), model.NewClock(23, 0), false},
		{"wrapped straddles gap", clockPtr(22, 0), clockPtr(6, 0), model.NewClock(5, 0), model.NewClock(23, 0), false},
		{"half configured window ignored", clockPtr(8, 0), nil, model.NewClock(1, 0), model.NewClock(2, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := pool()
			a.Limits.ScheduleStart = tt.open
			a.Limits.ScheduleEnd = tt.close
			a.Limits.MaxDurationHoursPerDay = decimal.NullDecimal{}

			c := Candidate{Date: june15, Start: tt.start, End: tt.end, ScopeKey: model.UserQuotaKey(42)}
			d := Validate(a, c, nil, nil)
			if tt.ok {
				assert.True(t, d.Accepted(), d.Message)
			} else {
				assert.Equal(t, apperr.ReasonOutsideHours, d.Reason)
			}
		})
	}
}

func TestValidate_Overlap(t *testing.T) {
	existing := []model.Reservation{
		booking(june15, 12, 0, 13, 0, model.StatusApproved, 7),
		booking(june15, 14, 0, 15, 0, model.StatusCancelled, 7),
		booking(june15, 16, 0, 17, 0, model.StatusRejected, 7),
	}
	other := booking(june15, 10, 0, 11, 0, model.StatusPending, 7)
	other.AmenityID = 2
	existing = append(existing, other)

	a := pool()
	a.Limits.MaxDurationHoursPerDay = decimal.NullDecimal{}

	assert.True(t, Validate(a, candidate(june15, 13, 0, 14, 0), existing, nil).Accepted(), "touching is allowed")
	assert.True(t, Validate(a, candidate(june15, 14, 0, 15, 0), existing, nil).Accepted(), "cancelled frees the slot")
	assert.True(t, Validate(a, candidate(june15, 16, 30, 17, 0), existing, nil).Accepted(), "rejected frees the slot")
	assert.True(t, Validate(a, candidate(june15, 10, 0, 11, 0), existing, nil).Accepted(), "other amenity")
	assert.Equal(t, apperr.ReasonSlotTaken, Validate(a, candidate(june15, 11, 0, 14, 0), existing, nil).Reason)
}

func TestValidate_MonthlyQuota(t *testing.T) {
	a := pool()
	unit := int64(300)
	charged := func(day int, status model.Status) model.Reservation {
		r := booking(model.NewDate(2025, time.June, day), 8, 0, 9, 0, status, 99)
		r.UnitID = &unit
		return r
	}
	month := []model.Reservation{
		charged(1, model.StatusApproved),
		charged(2, model.StatusPending),
		charged(3, model.StatusApproved),
		charged(4, model.StatusCancelled),
	}
	c := candidate(june15, 10, 0, 11, 0)
	c.ScopeKey = model.UnitQuotaKey(unit)

	assert.True(t, Validate(a, c, nil, month).Accepted(), "three live bookings")

	month = append(month, charged(5, model.StatusPending))
	assert.Equal(t, apperr.ReasonMonthlyLimit, Validate(a, c, nil, month).Reason)

	// another scope is unaffected
	c.ScopeKey = model.UserQuotaKey(99)
	assert.True(t, Validate(a, c, nil, month).Accepted())

	// previous month does not count
	c.ScopeKey = model.UnitQuotaKey(unit)
	c.Date = model.NewDate(2025, time.July, 1)
	assert.True(t, Validate(a, c, nil, month).Accepted())
}

func TestValidate_DailyDuration(t *testing.T) {
	a := pool()
	a.Limits.MaxDurationHoursPerDay = decimal.NewNullDecimal(decimal.RequireFromString("1.5"))

	sameDay := []model.Reservation{
		booking(june15, 8, 0, 9, 0, model.StatusApproved, 42),
		booking(june15, 9, 0, 12, 0, model.StatusApproved, 7),
		booking(june15, 12, 0, 14, 0, model.StatusCancelled, 42),
	}

	assert.True(t, Validate(a, candidate(june15, 14, 0, 14, 30), sameDay, nil).Accepted(), "exactly at the limit")
	assert.Equal(t, apperr.ReasonDailyLimit, Validate(a, candidate(june15, 14, 0, 14, 31), sameDay, nil).Reason)
}

func TestValidate_OrderIsFailFast(t *testing.T) {
	a := pool()
	existing := []model.Reservation{booking(june15, 10, 0, 11, 0, model.StatusApproved, 42)}

	// outside hours and overlapping: hours win
	d := Validate(a, candidate(june15, 7, 0, 11, 0), existing, existing)
	assert.Equal(t, apperr.ReasonOutsideHours, d.Reason)

	// overlapping and over the daily limit: overlap wins
	d = Validate(a, candidate(june15, 10, 0, 12, 30), existing, existing)
	assert.Equal(t, apperr.ReasonSlotTaken, d.Reason)
}
