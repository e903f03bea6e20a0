package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"residia/internal/config"
)

// SyncCatalog applies catalog.yaml to the database in one transaction.
// It upserts communities, amenities, blocks and units, replaces unit owners and
// memberships, and marks amenities missing from the file as not reservable.
// Blocks and units missing from the file are removed. Returns the synced community ids.
func (db *DB) SyncCatalog(ctx context.Context, cfg *config.CatalogConfig) ([]int64, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	ids := make([]int64, 0, len(cfg.Communities))

	for _, com := range cfg.Communities {
		if err := syncCommunity(ctx, tx, com, now); err != nil {
			return nil, fmt.Errorf("sync community %d: %w", com.ID, err)
		}
		ids = append(ids, com.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit catalog: %w", err)
	}

	db.logger.Info().Int("communities", len(ids)).Msg("catalog synced")
	return ids, nil
}

func syncCommunity(ctx context.Context, tx *sql.Tx, com config.CommunityConfig, now time.Time) error {
	// Preserve created_at if the row already exists.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO communities (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		com.ID, com.Name, now, now,
	); err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(com.Amenities))
	for _, a := range com.Amenities {
		limits, err := a.Limits.ToModel()
		if err != nil {
			return fmt.Errorf("amenity %d limits: %w", a.ID, err)
		}
		var limitsJSON sql.NullString
		if limits != nil {
			data, err := json.Marshal(limits)
			if err != nil {
				return fmt.Errorf("encode amenity %d limits: %w", a.ID, err)
			}
			limitsJSON = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO amenities (id, community_id, name, is_reservable, limits_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				community_id = excluded.community_id,
				name = excluded.name,
				is_reservable = excluded.is_reservable,
				limits_json = excluded.limits_json,
				updated_at = excluded.updated_at`,
			a.ID, com.ID, a.Name, a.IsReservable(), limitsJSON, now, now,
		); err != nil {
			return fmt.Errorf("upsert amenity %d: %w", a.ID, err)
		}
		seen[a.ID] = struct{}{}
	}

	// Deactivate amenities that disappeared from the catalog.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM amenities WHERE community_id = ?`, com.ID)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `UPDATE amenities SET is_reservable = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate amenity %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE community_id = ?`, com.ID); err != nil {
		return err
	}
	for _, b := range com.Blocks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blocks (id, community_id, parent_id, name) VALUES (?, ?, ?, ?)`,
			b.ID, com.ID, b.Parent, b.Name,
		); err != nil {
			return fmt.Errorf("insert block %d: %w", b.ID, err)
		}
	}

	// unit_owners rows go with their units through ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE community_id = ?`, com.ID); err != nil {
		return err
	}
	for _, u := range com.Units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO units (id, community_id, block_id, label) VALUES (?, ?, ?, ?)`,
			u.ID, com.ID, u.Block, u.Label,
		); err != nil {
			return fmt.Errorf("insert unit %d: %w", u.ID, err)
		}
		for _, owner := range u.Owners {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO unit_owners (unit_id, user_id) VALUES (?, ?)`,
				u.ID, owner,
			); err != nil {
				return fmt.Errorf("insert owner %d of unit %d: %w", owner, u.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE community_id = ?`, com.ID); err != nil {
		return err
	}
	for _, m := range com.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (community_id, user_id, role, block_id) VALUES (?, ?, ?, ?)`,
			com.ID, m.User, m.Role, m.Block,
		); err != nil {
			return fmt.Errorf("insert membership of user %d: %w", m.User, err)
		}
	}

	return nil
}
