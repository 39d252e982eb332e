package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/daimoniac/scorecard/internal/errors"
)

// PutAuditRecord appends an audit entry
func (s *SQLiteStore) PutAuditRecord(ctx context.Context, record *AuditRecord) error {
	if record == nil {
		return errors.NewPermanentf("audit record is nil")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	params, err := json.Marshal(record.Parameters)
	if err != nil {
		return errors.NewPermanentf("failed to encode audit parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, occurred_at, user_email, action, parameters)
		VALUES (?, ?, ?, ?, ?)
	`, record.ID, record.OccurredAt.UnixNano(), record.User, record.Action, string(params))
	if err != nil {
		return errors.NewTransientf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns audit entries, newest first
func (s *SQLiteStore) ListAuditRecords(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	query := `SELECT id, occurred_at, user_email, action, parameters FROM audit_records WHERE 1=1`
	args := []interface{}{}

	if filter.User != "" {
		query += ` AND user_email = ?`
		args = append(args, filter.User)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}
	query += ` ORDER BY occurred_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []*AuditRecord
	for rows.Next() {
		var r AuditRecord
		var occurredAt int64
		var params string
		if err := rows.Scan(&r.ID, &occurredAt, &r.User, &r.Action, &params); err != nil {
			return nil, errors.NewTransientf("failed to scan audit row: %w", err)
		}
		r.OccurredAt = time.Unix(0, occurredAt).UTC()
		if params != "" {
			if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
				return nil, errors.NewPermanentf("failed to decode audit parameters: %w", err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating audit rows: %w", err)
	}
	return out, nil
}
