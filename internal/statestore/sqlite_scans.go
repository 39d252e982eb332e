package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// RecordScan inserts a scan run
func (s *SQLiteStore) RecordScan(ctx context.Context, scan *types.Scan) error {
	if scan == nil || scan.ScanID == "" {
		return errors.NewPermanentf("scan id is required")
	}
	state := scan.ProcessState
	if state == "" {
		state = types.ScanInProgress
	}
	createdAt := scan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, process_state, created_at) VALUES (?, ?, ?)
	`, scan.ScanID, state, createdAt.UnixNano())
	if err != nil {
		return errors.NewTransientf("failed to record scan: %w", err)
	}
	return nil
}

// CompleteScan marks a scan as completed
func (s *SQLiteStore) CompleteScan(ctx context.Context, scanID string) error {
	return s.updateScan(ctx, `UPDATE scans SET process_state = ? WHERE scan_id = ?`, types.ScanCompleted, scanID)
}

// MarkExclusionsApplied records when exclusions were last applied to a scan
func (s *SQLiteStore) MarkExclusionsApplied(ctx context.Context, scanID string, at time.Time) error {
	return s.updateScan(ctx, `UPDATE scans SET exclusions_applied_at = ? WHERE scan_id = ?`, at.UnixNano(), scanID)
}

func (s *SQLiteStore) updateScan(ctx context.Context, query string, value interface{}, scanID string) error {
	result, err := s.db.ExecContext(ctx, query, value, scanID)
	if err != nil {
		return errors.NewTransientf("failed to update scan %s: %w", scanID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("scan %s: %w", scanID, ErrScanNotFound)
	}
	return nil
}

// GetScan returns one scan or ErrScanNotFound
func (s *SQLiteStore) GetScan(ctx context.Context, scanID string) (*types.Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT scan_id, process_state, created_at, exclusions_applied_at FROM scans WHERE scan_id = ?
	`, scanID)
	return scanScan(row)
}

// GetLatestCompletedScan returns the newest completed scan or ErrScanNotFound
func (s *SQLiteStore) GetLatestCompletedScan(ctx context.Context) (*types.Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT scan_id, process_state, created_at, exclusions_applied_at FROM scans
		WHERE process_state = ?
		ORDER BY created_at DESC, scan_id DESC
		LIMIT 1
	`, types.ScanCompleted)
	return scanScan(row)
}

// ListScans returns up to limit scans, newest first
func (s *SQLiteStore) ListScans(ctx context.Context, limit int) ([]*types.Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, process_state, created_at, exclusions_applied_at FROM scans
		ORDER BY created_at DESC, scan_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.NewTransientf("failed to query scans: %w", err)
	}
	defer rows.Close()

	out := []*types.Scan{}
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating scan rows: %w", err)
	}
	return out, nil
}

// ListScansPendingExclusions returns completed scans exclusions were never applied to
func (s *SQLiteStore) ListScansPendingExclusions(ctx context.Context) ([]*types.Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, process_state, created_at, exclusions_applied_at FROM scans
		WHERE process_state = ? AND exclusions_applied_at IS NULL
		ORDER BY created_at
	`, types.ScanCompleted)
	if err != nil {
		return nil, errors.NewTransientf("failed to query pending scans: %w", err)
	}
	defer rows.Close()

	var out []*types.Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating scan rows: %w", err)
	}
	return out, nil
}

// PruneScans deletes all but the newest keep scans together with their
// findings and returns the deleted scan ids
func (s *SQLiteStore) PruneScans(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, errors.NewPermanentf("keep must be positive, got %d", keep)
	}

	var deleted []string
	err := s.executeTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT scan_id FROM scans
			ORDER BY created_at DESC, scan_id DESC
			LIMIT -1 OFFSET ?
		`, keep)
		if err != nil {
			return errors.NewTransientf("failed to query excess scans: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.NewTransientf("failed to scan scan id: %w", err)
			}
			deleted = append(deleted, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return errors.NewTransientf("error iterating scan ids: %w", err)
		}
		rows.Close()

		if len(deleted) == 0 {
			return nil
		}

		placeholders := make([]string, len(deleted))
		args := make([]interface{}, len(deleted))
		for i, id := range deleted {
			placeholders[i] = "?"
			args[i] = id
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM scans WHERE scan_id IN (%s)
		`, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return errors.NewTransientf("failed to delete excess scans: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func scanScan(row rowScanner) (*types.Scan, error) {
	var scan types.Scan
	var createdAt int64
	var appliedAt sql.NullInt64
	if err := row.Scan(&scan.ScanID, &scan.ProcessState, &createdAt, &appliedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrScanNotFound
		}
		return nil, errors.NewTransientf("failed to scan scan row: %w", err)
	}
	scan.CreatedAt = time.Unix(0, createdAt).UTC()
	if appliedAt.Valid {
		t := time.Unix(0, appliedAt.Int64).UTC()
		scan.ExclusionsAppliedAt = &t
	}
	return &scan, nil
}
