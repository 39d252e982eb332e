package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// GetFinding returns the finding with the given key, or nil if absent
func (s *SQLiteStore) GetFinding(ctx context.Context, key types.FindingKey) (*types.Finding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data, remediation_status FROM findings WHERE scan_id = ? AND sort_key = ?
	`, key.ScanID, key.SortKey())

	f, err := scanFinding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// PutFinding upserts a single finding
func (s *SQLiteStore) PutFinding(ctx context.Context, f *types.Finding) error {
	if f == nil {
		return errors.NewPermanentf("finding is nil")
	}
	return s.BatchPutFindings(ctx, []types.Finding{*f})
}

// BatchPutFindings upserts findings in a single transaction. The remediation
// status column of existing rows is left untouched so exclusion runs never
// clobber a held remediation lock.
func (s *SQLiteStore) BatchPutFindings(ctx context.Context, findings []types.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	return s.executeTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (scan_id, sort_key, account_id, resource_id, requirement_id,
				exclusion_applied, is_hidden, remediation_status, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(scan_id, sort_key) DO UPDATE SET
				exclusion_applied = excluded.exclusion_applied,
				is_hidden = excluded.is_hidden,
				data = excluded.data
		`)
		if err != nil {
			return errors.NewTransientf("failed to prepare finding upsert: %w", err)
		}
		defer stmt.Close()

		for i := range findings {
			f := findings[i]
			status := f.RemediationStatus
			f.RemediationStatus = nil
			f.AllowedActions = nil

			data, err := json.Marshal(f)
			if err != nil {
				return errors.NewPermanentf("failed to encode finding %s: %w", f.NCRID(), err)
			}
			key := f.Key()
			if _, err := stmt.ExecContext(ctx, key.ScanID, key.SortKey(), f.AccountID, f.ResourceID, f.RequirementID,
				f.ExclusionApplied, f.IsHidden, status, string(data)); err != nil {
				return errors.NewTransientf("failed to put finding %s: %w", f.NCRID(), err)
			}
		}
		return nil
	})
}

// ListFindings returns the findings of filter.ScanID, optionally restricted to
// accounts and a requirement
func (s *SQLiteStore) ListFindings(ctx context.Context, filter FindingFilter) ([]types.Finding, error) {
	if filter.ScanID == "" {
		return nil, errors.NewPermanentf("scan id is required")
	}

	query := `SELECT data, remediation_status FROM findings WHERE scan_id = ?`
	args := []interface{}{filter.ScanID}

	if len(filter.AccountIDs) > 0 {
		placeholders := make([]string, len(filter.AccountIDs))
		for i, id := range filter.AccountIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(` AND account_id IN (%s)`, strings.Join(placeholders, ","))
	}
	if filter.RequirementID != "" {
		query += ` AND requirement_id = ?`
		args = append(args, filter.RequirementID)
	}
	query += ` ORDER BY sort_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var out []types.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating finding rows: %w", err)
	}
	return out, nil
}

// AcquireRemediationLock performs the conditional write that guards a
// remediation: it succeeds only when remediation_status is NULL.
func (s *SQLiteStore) AcquireRemediationLock(ctx context.Context, key types.FindingKey) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE findings SET remediation_status = ?
		WHERE scan_id = ? AND sort_key = ? AND remediation_status IS NULL
	`, types.RemediationInProgress, key.ScanID, key.SortKey())
	if err != nil {
		return false, errors.NewTransientf("failed to acquire remediation lock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewTransientf("failed to get affected rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	existing, err := s.GetFinding(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, errors.NotFoundf("finding %s", key.NCRID())
	}
	return false, nil
}

// SetRemediationStatus overwrites the remediation status and returns the finding
func (s *SQLiteStore) SetRemediationStatus(ctx context.Context, key types.FindingKey, status *string) (*types.Finding, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE findings SET remediation_status = ? WHERE scan_id = ? AND sort_key = ?
	`, status, key.ScanID, key.SortKey())
	if err != nil {
		return nil, errors.NewTransientf("failed to set remediation status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, errors.NotFoundf("finding %s", key.NCRID())
	}
	return s.GetFinding(ctx, key)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFinding(row rowScanner) (*types.Finding, error) {
	var data string
	var status sql.NullString
	if err := row.Scan(&data, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.NewTransientf("failed to scan finding row: %w", err)
	}

	var f types.Finding
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, errors.NewPermanentf("failed to decode finding: %w", err)
	}
	if status.Valid {
		v := status.String
		f.RemediationStatus = &v
	}
	return &f, nil
}
