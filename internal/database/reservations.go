package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"residia/internal/apperr"
	"residia/internal/model"
	"residia/internal/reservation"
)

const reservationColumns = `r.id, r.community_id, r.amenity_id, COALESCE(a.name, ''), r.subject_user_id, r.created_by,
	r.unit_id, r.date, r.start_time, r.end_time, r.status, r.notes, r.admin_notes, r.version, r.created_at, r.updated_at`

const reservationFrom = ` FROM reservations r LEFT JOIN amenities a ON a.id = r.amenity_id`

var liveStatusSQL = statusListSQL(model.LiveStatuses)

func statusListSQL(statuses []model.Status) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// WithinBookingTx runs fn inside an IMMEDIATE transaction. Concurrent booking
// transactions wait on the database write lock, so checks and insert are atomic.
func (db *DB) WithinBookingTx(ctx context.Context, fn func(tx reservation.BookingTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type bookingTx struct {
	tx *sql.Tx
}

func (t *bookingTx) GetAmenity(ctx context.Context, communityID, amenityID int64) (*model.Amenity, error) {
	return getAmenity(ctx, t.tx, communityID, amenityID)
}

func (t *bookingTx) IsMember(ctx context.Context, userID, communityID int64) (bool, error) {
	return isMember(ctx, t.tx, userID, communityID)
}

func (t *bookingTx) SubjectUnit(ctx context.Context, userID, communityID int64) (*int64, error) {
	return subjectUnit(ctx, t.tx, userID, communityID)
}

func (t *bookingTx) ListLiveReservations(ctx context.Context, amenityID int64, from, to model.Date) ([]model.Reservation, error) {
	return queryReservations(ctx, t.tx,
		`SELECT `+reservationColumns+reservationFrom+`
		WHERE r.amenity_id = ? AND r.date >= ? AND r.date < ? AND r.status IN `+liveStatusSQL+`
		ORDER BY r.date, r.start_time`,
		amenityID, from, to,
	)
}

func (t *bookingTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (
			community_id, amenity_id, subject_user_id, created_by, unit_id, date,
			start_time, end_time, status, notes, admin_notes, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		r.CommunityID, r.AmenityID, r.SubjectUserID, r.CreatedBy, r.UnitID, r.Date,
		r.StartTime.Seconds(), r.EndTime.Seconds(), string(r.Status), r.Notes, r.AdminNotes, now, now,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reservation id: %w", err)
	}
	r.ID = id
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetReservation returns a reservation scoped to its community.
func (db *DB) GetReservation(ctx context.Context, communityID, id int64) (*model.Reservation, error) {
	return getReservation(ctx, db, communityID, id)
}

func getReservation(ctx context.Context, q queryer, communityID, id int64) (*model.Reservation, error) {
	list, err := queryReservations(ctx, q,
		`SELECT `+reservationColumns+reservationFrom+` WHERE r.id = ? AND r.community_id = ?`,
		id, communityID,
	)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return &list[0], nil
}

// UpdateReservationStatus changes status and admin notes if the stored version still matches.
func (db *DB) UpdateReservationStatus(ctx context.Context, communityID, id, version int64, status model.Status, adminNotes string) (*model.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, admin_notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND community_id = ? AND version = ?`,
		string(status), adminNotes, time.Now(), id, communityID, version,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("update reservation status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := getReservation(ctx, tx, communityID, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("reservation %d version %d: %w", id, version, ErrConcurrentModification)
	}

	updated, err := getReservation(ctx, tx, communityID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// ListReservations runs an authorized listing query.
func (db *DB) ListReservations(ctx context.Context, q reservation.Query) ([]model.Reservation, error) {
	var (
		where = []string{"r.community_id = ?"}
		args  = []any{q.CommunityID}
	)

	switch q.Type {
	case reservation.ListBlock:
		if len(q.BlockIDs) == 0 {
			return []model.Reservation{}, nil
		}
		where = append(where, "r.unit_id IN (SELECT id FROM units WHERE block_id IN ("+placeholders(len(q.BlockIDs))+"))")
		for _, id := range q.BlockIDs {
			args = append(args, id)
		}
	case reservation.ListOwn:
		where = append(where, "(r.created_by = ? OR r.subject_user_id = ? OR r.unit_id IN (SELECT unit_id FROM unit_owners WHERE user_id = ?))")
		args = append(args, q.UserID, q.UserID, q.UserID)
	case reservation.ListCommunity:
	default:
		return nil, apperr.Validation(apperr.ReasonInvalidFilter, "unknown listing type")
	}

	if q.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(q.Status))
	}
	if q.AmenityID > 0 {
		where = append(where, "r.amenity_id = ?")
		args = append(args, q.AmenityID)
	}
	if q.DateFrom != nil {
		where = append(where, "r.date >= ?")
		args = append(args, *q.DateFrom)
	}
	if q.DateTo != nil {
		where = append(where, "r.date <= ?")
		args = append(args, *q.DateTo)
	}
	if q.Search != "" {
		like := "%" + likeEscaper.Replace(q.Search) + "%"
		where = append(where, `(a.name LIKE ? ESCAPE '\' OR r.notes LIKE ? ESCAPE '\' OR r.admin_notes LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + reservationColumns + reservationFrom +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY r.date, r.start_time, r.id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	return queryReservations(ctx, db, query, args...)
}

// CompleteFinished marks approved reservations that ended before now as completed.
func (db *DB) CompleteFinished(ctx context.Context, now time.Time) (int64, error) {
	today := model.DateOf(now)
	seconds := now.Hour()*3600 + now.Minute()*60 + now.Second()

	res, err := db.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'completed', version = version + 1, updated_at = ?
		WHERE status = 'approved' AND (date < ? OR (date = ? AND end_time <= ?))`,
		now, today, today, seconds,
	)
	if err != nil {
		return 0, fmt.Errorf("complete reservations: %w", err)
	}
	return res.RowsAffected()
}

func queryReservations(ctx context.Context, q queryer, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	list := []model.Reservation{}
	for rows.Next() {
		var (
			r          model.Reservation
			unit       sql.NullInt64
			start, end int
			status     string
		)
		if err := rows.Scan(
			&r.ID, &r.CommunityID, &r.AmenityID, &r.AmenityName, &r.SubjectUserID, &r.CreatedBy,
			&unit, &r.Date, &start, &end, &status, &r.Notes, &r.AdminNotes, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		if unit.Valid {
			u := unit.Int64
			r.UnitID = &u
		}
		r.StartTime = model.Clock(start)
		r.EndTime = model.Clock(end)
		r.Status = model.Status(status)
		list = append(list, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return list, nil
}
