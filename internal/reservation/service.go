// Package reservation validates, creates, transitions and lists amenity reservations.
package reservation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"residia/internal/access"
	"residia/internal/apperr"
	"residia/internal/metrics"
	"residia/internal/model"
	"residia/internal/notify"
)

// Service is the reservation lifecycle manager.
type Service struct {
	store    Store
	blocks   BlockExpander
	notifier Notifier
	logger   zerolog.Logger
}

// NewService creates a reservation service. notifier may be nil.
func NewService(store Store, blocks BlockExpander, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		blocks:   blocks,
		notifier: notifier,
		logger:   logger.With().Str("component", "reservation").Logger(),
	}
}

// Create validates and stores a reservation atomically.
// Administrative callers get an approved reservation, everyone else a pending one.
func (s *Service) Create(ctx context.Context, scope *access.Scope, req CreateRequest) (*model.Reservation, error) {
	if err := req.validate(); err != nil {
		metrics.IncReservationRejected(apperr.ReasonOf(err))
		return nil, err
	}

	subjectID, delegated, err := s.subjectOf(scope, req.Booking)
	if err != nil {
		return nil, err
	}

	status := model.StatusPending
	if scope.Can(access.CanAdminister) {
		status = model.StatusApproved
	}

	res := &model.Reservation{
		CommunityID:   scope.CommunityID,
		AmenityID:     req.AmenityID,
		SubjectUserID: subjectID,
		CreatedBy:     scope.UserID,
		Date:          req.Date,
		StartTime:     req.Start,
		EndTime:       req.End,
		Status:        status,
		Notes:         req.Notes,
	}

	err = s.store.WithinBookingTx(ctx, func(tx BookingTx) error {
		if delegated {
			member, err := tx.IsMember(ctx, subjectID, scope.CommunityID)
			if err != nil {
				return apperr.Internal("check subject membership", err)
			}
			if !member {
				return apperr.Newf(apperr.KindNotFound, "user %d is not a member of this community", subjectID)
			}
		}

		unitID, err := tx.SubjectUnit(ctx, subjectID, scope.CommunityID)
		if err != nil {
			return apperr.Internal("resolve subject unit", err)
		}
		res.UnitID = unitID

		amenity, err := tx.GetAmenity(ctx, scope.CommunityID, req.AmenityID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return apperr.Internal("load amenity", err)
		}
		if amenity != nil {
			res.AmenityName = amenity.Name
		}

		first, next := req.Date.MonthBounds()
		month, err := tx.ListLiveReservations(ctx, req.AmenityID, first, next)
		if err != nil {
			return apperr.Internal("load existing reservations", err)
		}
		sameDay := make([]model.Reservation, 0, len(month))
		for _, r := range month {
			if r.Date.SameDay(req.Date) {
				sameDay = append(sameDay, r)
			}
		}

		candidate := Candidate{Date: req.Date, Start: req.Start, End: req.End, ScopeKey: res.QuotaKey()}
		if decision := Validate(amenity, candidate, sameDay, month); !decision.Accepted() {
			return decision.Err()
		}

		return tx.InsertReservation(ctx, res)
	})
	if err != nil {
		return nil, s.failure(err, "create reservation")
	}

	metrics.IncReservationCreated(string(res.Status))
	s.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("community_id", res.CommunityID).
		Int64("amenity_id", res.AmenityID).
		Int64("subject_user_id", res.SubjectUserID).
		Int64("created_by", res.CreatedBy).
		Str("date", res.Date.String()).
		Str("status", string(res.Status)).
		Msg("reservation created")

	s.publish(ctx, notify.EventCreated, res, scope.UserID)
	return res, nil
}

// UpdateStatus moves a reservation to newStatus.
// Administrators may approve, reject or cancel; the subject or author may only cancel.
// Terminal reservations never change.
func (s *Service) UpdateStatus(ctx context.Context, scope *access.Scope, id int64, newStatus, adminNotes string) (*model.Reservation, error) {
	target, err := model.ParseStatus(newStatus)
	if err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidStatus, err.Error())
	}

	current, err := s.store.GetReservation(ctx, scope.CommunityID, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "reservation %d not found", id)
		}
		return nil, s.failure(err, "load reservation")
	}

	admin := scope.Can(access.CanAdminister)
	if err := authorizeTransition(scope, admin, current, target); err != nil {
		return nil, err
	}

	notes := current.AdminNotes
	if admin && adminNotes != "" {
		notes = adminNotes
	}

	updated, err := s.store.UpdateReservationStatus(ctx, scope.CommunityID, id, current.Version, target, notes)
	if err != nil {
		return nil, s.failure(err, "update reservation status")
	}

	metrics.IncStatusTransition(string(target))
	s.logger.Info().
		Int64("reservation_id", id).
		Int64("actor_id", scope.UserID).
		Str("from", string(current.Status)).
		Str("to", string(target)).
		Msg("reservation status updated")

	s.publish(ctx, notify.EventStatusUpdated, updated, scope.UserID)
	return updated, nil
}

func authorizeTransition(scope *access.Scope, admin bool, r *model.Reservation, target model.Status) error {
	if r.Status.IsTerminal() {
		return apperr.Newf(apperr.KindUnauthorized, "reservation is already %s", r.Status)
	}
	if admin {
		switch target {
		case model.StatusApproved, model.StatusRejected, model.StatusCancelled:
			return nil
		}
		return apperr.Newf(apperr.KindUnauthorized, "cannot move a reservation to %s", target)
	}
	if r.SubjectUserID == scope.UserID || r.CreatedBy == scope.UserID {
		if target == model.StatusCancelled {
			return nil
		}
		return apperr.New(apperr.KindUnauthorized, "only administrators may approve or reject reservations")
	}
	return apperr.New(apperr.KindUnauthorized, "not allowed to change this reservation")
}

func (s *Service) subjectOf(scope *access.Scope, booking Booking) (int64, bool, error) {
	switch b := booking.(type) {
	case nil, SelfBooking:
	case DelegatedBooking:
		if b.SubjectID != scope.UserID {
			if !scope.Can(access.CanAdminister) {
				return 0, false, apperr.New(apperr.KindUnauthorized, "only administrators may book on behalf of others")
			}
			if b.SubjectID <= 0 {
				return 0, false, apperr.Newf(apperr.KindNotFound, "user %d not found", b.SubjectID)
			}
			return b.SubjectID, true, nil
		}
	default:
		return 0, false, apperr.Internal("unsupported booking variant", nil)
	}

	if !scope.Can(access.CanBookOwn) {
		return 0, false, apperr.New(apperr.KindUnauthorized, "not allowed to book amenities")
	}
	return scope.UserID, false, nil
}

// failure records refusals and classifies unexpected errors as internal.
func (s *Service) failure(err error, op string) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(op, err)
	}

	switch appErr.Kind {
	case apperr.KindValidation, apperr.KindConflict:
		if appErr.Reason != "" {
			metrics.IncReservationRejected(appErr.Reason)
		}
		if appErr.Kind == apperr.KindConflict {
			s.logger.Warn().Err(err).Str("reason", appErr.Reason).Msg(op + ": concurrent write detected")
		}
	case apperr.KindInternal:
		s.logger.Error().Err(err).Msg(op)
	}
	return appErr
}

func (s *Service) publish(ctx context.Context, kind notify.EventKind, r *model.Reservation, actorID int64) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(context.WithoutCancel(ctx), kind, r, actorID)
}
