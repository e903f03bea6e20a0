package reservation

import (
	"context"
	"slices"
	"strings"

	"residia/internal/access"
	"residia/internal/apperr"
	"residia/internal/model"
)

const maxListLimit = 500

// List returns the reservations the caller may see under the requested scope.
// A scope wider than the caller's capabilities fails with Unauthorized instead of being narrowed.
func (s *Service) List(ctx context.Context, scope *access.Scope, f ListFilter) ([]model.Reservation, error) {
	listType := f.Type
	if listType == "" {
		listType = defaultListType(scope)
	}

	q := Query{
		CommunityID: scope.CommunityID,
		Type:        listType,
		AmenityID:   f.AmenityID,
		DateFrom:    f.DateFrom,
		DateTo:      f.DateTo,
		Search:      strings.TrimSpace(f.Search),
		Limit:       f.Limit,
	}
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if f.Status != "" {
		st, err := model.ParseStatus(f.Status)
		if err != nil {
			return nil, apperr.Validation(apperr.ReasonInvalidFilter, err.Error())
		}
		q.Status = st
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(f.DateTo.Time) {
		return nil, apperr.Validation(apperr.ReasonInvalidFilter, "date range is inverted")
	}

	switch listType {
	case ListCommunity:
		if !scope.Can(access.CanAdminister) {
			return nil, apperr.New(apperr.KindUnauthorized, "community listing requires administrative access")
		}
	case ListBlock:
		if !scope.Can(access.CanRepresentBlock) && !scope.Can(access.CanAdminister) {
			return nil, apperr.New(apperr.KindUnauthorized, "block listing requires a representative role")
		}
		if len(scope.RepresentedBlocks) == 0 {
			return []model.Reservation{}, nil
		}
		q.BlockIDs = scope.RepresentedBlocks
	case ListOwn:
		q.UserID = scope.UserID
	default:
		return nil, apperr.Validation(apperr.ReasonInvalidFilter, "unknown listing type")
	}

	list, err := s.store.ListReservations(ctx, q)
	if err != nil {
		return nil, s.failure(err, "list reservations")
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return list, nil
}

// ExpandJurisdiction expands block ids to include all their descendants.
// Representatives only get back the blocks they represent; admins see the whole expansion.
func (s *Service) ExpandJurisdiction(ctx context.Context, scope *access.Scope, base []int64) ([]int64, error) {
	if !scope.Can(access.CanRepresentBlock) && !scope.Can(access.CanAdminister) {
		return nil, apperr.New(apperr.KindUnauthorized, "jurisdiction lookup requires a representative role")
	}
	ids, err := s.blocks.ExpandDescendants(ctx, scope.CommunityID, base)
	if err != nil {
		return nil, s.failure(err, "expand jurisdiction")
	}
	if !scope.Can(access.CanAdminister) {
		ids = slices.DeleteFunc(ids, func(id int64) bool { return !scope.Represents(id) })
	}
	return ids, nil
}

func defaultListType(scope *access.Scope) ListType {
	switch {
	case scope.Can(access.CanAdminister):
		return ListCommunity
	case scope.Can(access.CanRepresentBlock):
		return ListBlock
	default:
		return ListOwn
	}
}
