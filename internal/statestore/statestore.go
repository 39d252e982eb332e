package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/daimoniac/scorecard/internal/types"
)

// ErrScanNotFound is returned when no completed scan exists yet.
// Callers should use errors.Is() to check for this specific error.
var ErrScanNotFound = errors.New("scan not found")

// ExclusionStore persists exclusions keyed by (accountId, requirementId#resourceId).
type ExclusionStore interface {
	// GetExclusion returns the exclusion with the given key, or nil if absent
	GetExclusion(ctx context.Context, key types.ExclusionKey) (*types.Exclusion, error)

	// PutExclusion writes e and, when replaced is non-nil, deletes the record
	// at replaced in the same transaction
	PutExclusion(ctx context.Context, e *types.Exclusion, replaced *types.ExclusionKey) error

	// ListExclusions returns every exclusion
	ListExclusions(ctx context.Context) ([]*types.Exclusion, error)

	// ScanExclusions returns up to limit exclusions ordered by key, starting
	// after the given key. next is nil on the last page.
	ScanExclusions(ctx context.Context, limit int, after *types.ExclusionKey) (items []*types.Exclusion, next *types.ExclusionKey, err error)
}

// FindingStore persists findings keyed by (scanId, accountId#resourceId#requirementId).
type FindingStore interface {
	// GetFinding returns the finding with the given key, or nil if absent
	GetFinding(ctx context.Context, key types.FindingKey) (*types.Finding, error)

	// PutFinding upserts one finding; the remediation status of an existing row is preserved
	PutFinding(ctx context.Context, f *types.Finding) error

	// BatchPutFindings upserts findings in one transaction
	BatchPutFindings(ctx context.Context, findings []types.Finding) error

	// ListFindings returns the findings of a scan matching filter
	ListFindings(ctx context.Context, filter FindingFilter) ([]types.Finding, error)

	// AcquireRemediationLock sets the remediation status to in-progress only if
	// it is currently unset. It reports whether the lock was taken.
	AcquireRemediationLock(ctx context.Context, key types.FindingKey) (bool, error)

	// SetRemediationStatus overwrites the remediation status (nil clears it)
	// and returns the updated finding
	SetRemediationStatus(ctx context.Context, key types.FindingKey, status *string) (*types.Finding, error)
}

// ScanStore tracks scan runs.
type ScanStore interface {
	RecordScan(ctx context.Context, scan *types.Scan) error
	CompleteScan(ctx context.Context, scanID string) error
	GetScan(ctx context.Context, scanID string) (*types.Scan, error)
	GetLatestCompletedScan(ctx context.Context) (*types.Scan, error)
	ListScansPendingExclusions(ctx context.Context) ([]*types.Scan, error)
	MarkExclusionsApplied(ctx context.Context, scanID string, at time.Time) error
	PruneScans(ctx context.Context, keep int) ([]string, error)
}

// AuditStore is an append-only audit trail.
type AuditStore interface {
	PutAuditRecord(ctx context.Context, record *AuditRecord) error
	ListAuditRecords(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}

// StateStore is the full persistence surface.
type StateStore interface {
	ExclusionStore
	FindingStore
	ScanStore
	AuditStore
	Ping(ctx context.Context) error
	Close() error
}

// FindingFilter defines criteria for listing findings
type FindingFilter struct {
	ScanID        string
	AccountIDs    []string
	RequirementID string
}

// AuditRecord is one entry in the audit trail
type AuditRecord struct {
	ID         string
	User       string
	Action     string
	Parameters map[string]any
	OccurredAt time.Time
}

// AuditFilter defines criteria for listing audit records
type AuditFilter struct {
	User   string
	Action string
	Limit  int
}

// ExclusionStats summarizes stored exclusions for metrics
type ExclusionStats struct {
	ByStatus     map[string]int
	Expired      int
	ExpiringSoon int
	InProgress   int
}

// Audit actions
const (
	AuditPutExclusionAdmin       = "Put Exclusion - Admin"
	AuditPutExclusionUser        = "Put Exclusion - User"
	AuditRemediationStarted      = "Remediation started"
	AuditRemediationCompleted    = "Remediation completed"
	AuditRemediationErrored      = "Remediation errored"
	AuditRemediationInvalidInput = "Remediation aborted - invalid input"
	AuditRemediationIacOverride  = "Remediation aborted - iac override required"
)
