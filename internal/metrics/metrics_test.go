package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(reservationRejected.WithLabelValues("SLOT_TAKEN"))
	IncReservationRejected("SLOT_TAKEN")
	assert.Equal(t, before+1, testutil.ToFloat64(reservationRejected.WithLabelValues("SLOT_TAKEN")))

	before = testutil.ToFloat64(reservationsCompleted)
	AddReservationsCompleted(3)
	assert.Equal(t, before+3, testutil.ToFloat64(reservationsCompleted))

	before = testutil.ToFloat64(httpRequests.WithLabelValues("list_reservations"))
	IncHTTP("list_reservations")
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("list_reservations")))
}
