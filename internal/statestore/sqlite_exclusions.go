package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// GetExclusion returns the exclusion stored under key, or nil if absent
func (s *SQLiteStore) GetExclusion(ctx context.Context, key types.ExclusionKey) (*types.Exclusion, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM exclusions WHERE account_id = ? AND sort_key = ?
	`, key.AccountID, key.SortKey()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewTransientf("failed to query exclusion: %w", err)
	}
	return decodeExclusion(data)
}

// PutExclusion writes e and deletes replaced (if set and different) atomically
func (s *SQLiteStore) PutExclusion(ctx context.Context, e *types.Exclusion, replaced *types.ExclusionKey) error {
	if e == nil {
		return errors.NewPermanentf("exclusion is nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.NewPermanentf("failed to encode exclusion: %w", err)
	}
	key := e.Key()

	return s.executeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exclusions (account_id, sort_key, requirement_id, resource_id, status, expiration_date, data, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, sort_key) DO UPDATE SET
				status = excluded.status,
				expiration_date = excluded.expiration_date,
				data = excluded.data,
				updated_at = excluded.updated_at
		`, key.AccountID, key.SortKey(), key.RequirementID, key.ResourceID,
			e.Status, e.ExpirationDate, string(data), time.Now().Unix())
		if err != nil {
			return errors.NewTransientf("failed to put exclusion: %w", err)
		}

		if replaced != nil && *replaced != key {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM exclusions WHERE account_id = ? AND sort_key = ?
			`, replaced.AccountID, replaced.SortKey())
			if err != nil {
				return errors.NewTransientf("failed to delete replaced exclusion: %w", err)
			}
		}
		return nil
	})
}

// ListExclusions returns every stored exclusion ordered by key
func (s *SQLiteStore) ListExclusions(ctx context.Context) ([]*types.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM exclusions ORDER BY account_id, sort_key
	`)
	if err != nil {
		return nil, errors.NewTransientf("failed to query exclusions: %w", err)
	}
	defer rows.Close()
	return scanExclusions(rows)
}

// ScanExclusions pages through exclusions ordered by (account_id, sort_key)
func (s *SQLiteStore) ScanExclusions(ctx context.Context, limit int, after *types.ExclusionKey) ([]*types.Exclusion, *types.ExclusionKey, error) {
	if limit <= 0 {
		return nil, nil, errors.NewPermanentf("limit must be positive, got %d", limit)
	}

	query := `SELECT data FROM exclusions`
	args := []interface{}{}
	if after != nil {
		query += ` WHERE account_id > ? OR (account_id = ? AND sort_key > ?)`
		args = append(args, after.AccountID, after.AccountID, after.SortKey())
	}
	query += ` ORDER BY account_id, sort_key LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, errors.NewTransientf("failed to scan exclusions: %w", err)
	}
	defer rows.Close()

	items, err := scanExclusions(rows)
	if err != nil {
		return nil, nil, err
	}

	if len(items) <= limit {
		return items, nil, nil
	}
	items = items[:limit]
	next := items[limit-1].Key()
	return items, &next, nil
}

// GetExclusionStats summarizes exclusions and in-flight remediations
func (s *SQLiteStore) GetExclusionStats(ctx context.Context, now time.Time, window time.Duration) (*ExclusionStats, error) {
	exclusions, err := s.ListExclusions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ExclusionStats{ByStatus: make(map[string]int)}
	for _, e := range exclusions {
		stats.ByStatus[e.Status]++
		if e.Status == types.StatusArchived {
			continue
		}
		expiresAt, err := types.ParseDate(e.ExpirationDate)
		if err != nil {
			continue
		}
		switch until := expiresAt.Sub(now); {
		case until <= 0:
			stats.Expired++
		case until <= window:
			stats.ExpiringSoon++
		}
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM findings WHERE remediation_status = ?
	`, types.RemediationInProgress).Scan(&stats.InProgress)
	if err != nil {
		return nil, errors.NewTransientf("failed to count remediations in progress: %w", err)
	}

	return stats, nil
}

func scanExclusions(rows *sql.Rows) ([]*types.Exclusion, error) {
	var out []*types.Exclusion
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewTransientf("failed to scan exclusion row: %w", err)
		}
		e, err := decodeExclusion(data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating exclusion rows: %w", err)
	}
	return out, nil
}

func decodeExclusion(data string) (*types.Exclusion, error) {
	var e types.Exclusion
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, errors.NewPermanentf("failed to decode exclusion: %w", err)
	}
	return &e, nil
}
