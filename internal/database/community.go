package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"residia/internal/model"
)

// ListBlocks returns the flat block list of a community.
func (db *DB) ListBlocks(ctx context.Context, communityID int64) ([]model.Block, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, community_id, parent_id, name FROM blocks WHERE community_id = ? ORDER BY id`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var list []model.Block
	for rows.Next() {
		var (
			b      model.Block
			parent sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.CommunityID, &parent, &b.Name); err != nil {
			return nil, err
		}
		if parent.Valid {
			p := parent.Int64
			b.ParentID = &p
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// ListMemberships returns the user's role rows in a community.
func (db *DB) ListMemberships(ctx context.Context, userID, communityID int64) ([]model.MembershipRole, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, community_id, role, block_id FROM memberships
		WHERE user_id = ? AND community_id = ? ORDER BY id`,
		userID, communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var list []model.MembershipRole
	for rows.Next() {
		var (
			m     model.MembershipRole
			block sql.NullInt64
		)
		if err := rows.Scan(&m.UserID, &m.CommunityID, &m.Role, &block); err != nil {
			return nil, err
		}
		if block.Valid {
			b := block.Int64
			m.BlockID = &b
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// UnitsOwnedBy returns the ids of units the user owns in a community.
func (db *DB) UnitsOwnedBy(ctx context.Context, userID, communityID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT u.id FROM units u
		JOIN unit_owners o ON o.unit_id = u.id
		WHERE o.user_id = ? AND u.community_id = ?
		ORDER BY u.id`,
		userID, communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query owned units: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getAmenity(ctx context.Context, q queryer, communityID, amenityID int64) (*model.Amenity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, community_id, name, is_reservable, limits_json, created_at, updated_at
		FROM amenities WHERE id = ? AND community_id = ?`,
		amenityID, communityID,
	)
	a, err := scanAmenity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("amenity %d: %w", amenityID, ErrNotFound)
	}
	return a, err
}

// GetAmenity returns an amenity scoped to its community.
func (db *DB) GetAmenity(ctx context.Context, communityID, amenityID int64) (*model.Amenity, error) {
	return getAmenity(ctx, db, communityID, amenityID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAmenity(s scanner) (*model.Amenity, error) {
	var (
		a      model.Amenity
		limits sql.NullString
	)
	if err := s.Scan(&a.ID, &a.CommunityID, &a.Name, &a.IsReservable, &limits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if limits.Valid && limits.String != "" {
		a.Limits = &model.ReservationLimits{}
		if err := json.Unmarshal([]byte(limits.String), a.Limits); err != nil {
			return nil, fmt.Errorf("decode limits of amenity %d: %w", a.ID, err)
		}
	}
	return &a, nil
}

func isMember(ctx context.Context, q queryer, userID, communityID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = ? AND community_id = ?)`,
		userID, communityID,
	).Scan(&exists)
	return exists, err
}

func subjectUnit(ctx context.Context, q queryer, userID, communityID int64) (*int64, error) {
	var id sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT MIN(u.id) FROM units u
		JOIN unit_owners o ON o.unit_id = u.id
		WHERE o.user_id = ? AND u.community_id = ?`,
		userID, communityID,
	).Scan(&id)
	if err != nil || !id.Valid {
		return nil, err
	}
	v := id.Int64
	return &v, nil
}
