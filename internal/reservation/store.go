package reservation

import (
	"context"

	"residia/internal/model"
	"residia/internal/notify"
)

// Store provides reservation persistence. Implementations classify failures with apperr:
// absent rows as NotFound, overlap violations as Conflict(SLOT_TAKEN) and version
// mismatches as Conflict(STALE_STATE).
type Store interface {
	// WithinBookingTx runs fn in a transaction that serializes concurrent bookings.
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error
	GetReservation(ctx context.Context, communityID, id int64) (*model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, communityID, id, version int64, status model.Status, adminNotes string) (*model.Reservation, error)
	ListReservations(ctx context.Context, q Query) ([]model.Reservation, error)
}

// BookingTx is the view of the store available inside a booking transaction.
type BookingTx interface {
	GetAmenity(ctx context.Context, communityID, amenityID int64) (*model.Amenity, error)
	IsMember(ctx context.Context, userID, communityID int64) (bool, error)
	// SubjectUnit returns the lowest unit id the user owns in the community, or nil.
	SubjectUnit(ctx context.Context, userID, communityID int64) (*int64, error)
	// ListLiveReservations returns pending and approved reservations of the amenity with from <= date < to.
	ListLiveReservations(ctx context.Context, amenityID int64, from, to model.Date) ([]model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
}

// BlockExpander expands block ids to their jurisdiction.
type BlockExpander interface {
	ExpandDescendants(ctx context.Context, communityID int64, base []int64) ([]int64, error)
}

// Notifier receives reservation events. Implementations must not block.
type Notifier interface {
	Publish(ctx context.Context, kind notify.EventKind, r *model.Reservation, actorID int64)
}
