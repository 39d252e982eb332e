package statestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func recordCompletedScan(t *testing.T, store *SQLiteStore, id string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.RecordScan(ctx, &types.Scan{ScanID: id, CreatedAt: createdAt}))
	require.NoError(t, store.CompleteScan(ctx, id))
}

func testFinding(scanID, account, resource, requirement string) types.Finding {
	return types.Finding{
		ScanID:        scanID,
		AccountID:     account,
		ResourceID:    resource,
		RequirementID: requirement,
		ResourceName:  resource,
		ResourceType:  "AWS::S3::Bucket",
		Region:        "eu-west-1",
	}
}

func TestExclusionRoundTrip(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	e := &types.Exclusion{
		AccountID:      "111111111111",
		RequirementID:  "s3-public",
		ResourceID:     "bucket-a",
		Status:         types.StatusInitial,
		ExpirationDate: "2027/01/01",
		FormFields:     map[string]string{"reason": "legacy"},
	}
	require.NoError(t, store.PutExclusion(ctx, e, nil))

	got, err := store.GetExclusion(ctx, e.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e, got)

	missing, err := store.GetExclusion(ctx, types.ExclusionKey{AccountID: "x", RequirementID: "y", ResourceID: "z"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	e.Status = types.StatusApproved
	require.NoError(t, store.PutExclusion(ctx, e, nil))
	all, err := store.ListExclusions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.StatusApproved, all[0].Status)
}

func TestPutExclusionReplacesAtomically(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	old := &types.Exclusion{AccountID: "111111111111", RequirementID: "r1", ResourceID: "bucket-*", Status: types.StatusApproved}
	require.NoError(t, store.PutExclusion(ctx, old, nil))

	renamed := old.Clone()
	renamed.ResourceID = "bucket-a*"
	oldKey := old.Key()
	require.NoError(t, store.PutExclusion(ctx, renamed, &oldKey))

	gone, err := store.GetExclusion(ctx, oldKey)
	require.NoError(t, err)
	assert.Nil(t, gone)

	all, err := store.ListExclusions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bucket-a*", all[0].ResourceID)

	// replacing with the same key keeps the record
	sameKey := renamed.Key()
	require.NoError(t, store.PutExclusion(ctx, renamed, &sameKey))
	all, err = store.ListExclusions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScanExclusionsPagination(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		e := &types.Exclusion{
			AccountID:     fmt.Sprintf("acct-%d", i%3),
			RequirementID: "r1",
			ResourceID:    fmt.Sprintf("res-%d", i),
			Status:        types.StatusInitial,
		}
		require.NoError(t, store.PutExclusion(ctx, e, nil))
	}

	var seen []string
	var after *types.ExclusionKey
	pages := 0
	for {
		items, next, err := store.ScanExclusions(ctx, 3, after)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(items), 3)
		for _, e := range items {
			seen = append(seen, e.ID())
		}
		pages++
		if next == nil {
			break
		}
		after = next
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 7)
	assert.IsIncreasing(t, seen)

	_, _, err := store.ScanExclusions(ctx, 0, nil)
	assert.Error(t, err)
}

func TestFindingsPreserveRemediationStatus(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	recordCompletedScan(t, store, "2026-10-17T00:00:00Z#aaaaaaaa", time.Now())

	f := testFinding("2026-10-17T00:00:00Z#aaaaaaaa", "111111111111", "bucket-a", "s3-public")
	require.NoError(t, store.PutFinding(ctx, &f))

	ok, err := store.AcquireRemediationLock(ctx, f.Key())
	require.NoError(t, err)
	require.True(t, ok)

	// a later exclusion run rewrites the finding but not its remediation status
	f.ExclusionApplied = true
	f.IsHidden = true
	require.NoError(t, store.BatchPutFindings(ctx, []types.Finding{f}))

	got, err := store.GetFinding(ctx, f.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExclusionApplied)
	assert.True(t, got.IsHidden)
	require.NotNil(t, got.RemediationStatus)
	assert.Equal(t, types.RemediationInProgress, *got.RemediationStatus)

	ok, err = store.AcquireRemediationLock(ctx, f.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = store.SetRemediationStatus(ctx, f.Key(), nil)
	require.NoError(t, err)
	assert.Nil(t, got.RemediationStatus)

	ok, err = store.AcquireRemediationLock(ctx, f.Key())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireRemediationLockMissingFinding(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.AcquireRemediationLock(ctx, types.FindingKey{ScanID: "s#1", AccountID: "a", ResourceID: "r", RequirementID: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = store.SetRemediationStatus(ctx, types.FindingKey{ScanID: "s#1", AccountID: "a", ResourceID: "r", RequirementID: "q"}, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAcquireRemediationLockIsExclusive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	recordCompletedScan(t, store, "2026-10-17T00:00:00Z#bbbbbbbb", time.Now())

	f := testFinding("2026-10-17T00:00:00Z#bbbbbbbb", "111111111111", "bucket-a", "s3-public")
	require.NoError(t, store.PutFinding(ctx, &f))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.AcquireRemediationLock(ctx, f.Key())
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestListFindingsFilter(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	scanID := "2026-10-17T00:00:00Z#cccccccc"
	recordCompletedScan(t, store, scanID, time.Now())

	findings := []types.Finding{
		testFinding(scanID, "a1", "res-1", "r1"),
		testFinding(scanID, "a1", "res-2", "r2"),
		testFinding(scanID, "a2", "res-3", "r1"),
		testFinding(scanID, "a3", "res-4", "r1"),
	}
	require.NoError(t, store.BatchPutFindings(ctx, findings))

	all, err := store.ListFindings(ctx, FindingFilter{ScanID: scanID})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	scoped, err := store.ListFindings(ctx, FindingFilter{ScanID: scanID, AccountIDs: []string{"a1", "a2"}, RequirementID: "r1"})
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, "res-1", scoped[0].ResourceID)
	assert.Equal(t, "res-3", scoped[1].ResourceID)

	_, err = store.ListFindings(ctx, FindingFilter{})
	assert.Error(t, err)
}

func TestScanLifecycle(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.GetLatestCompletedScan(ctx)
	assert.ErrorIs(t, err, ErrScanNotFound)

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	recordCompletedScan(t, store, "older", base)
	recordCompletedScan(t, store, "newer", base.Add(time.Hour))
	require.NoError(t, store.RecordScan(ctx, &types.Scan{ScanID: "running", CreatedAt: base.Add(2 * time.Hour)}))

	latest, err := store.GetLatestCompletedScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer", latest.ScanID)

	pending, err := store.ListScansPendingExclusions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "older", pending[0].ScanID)

	appliedAt := base.Add(3 * time.Hour)
	require.NoError(t, store.MarkExclusionsApplied(ctx, "older", appliedAt))
	pending, err = store.ListScansPendingExclusions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "newer", pending[0].ScanID)

	scan, err := store.GetScan(ctx, "older")
	require.NoError(t, err)
	require.NotNil(t, scan.ExclusionsAppliedAt)
	assert.True(t, appliedAt.Equal(*scan.ExclusionsAppliedAt))

	assert.ErrorIs(t, store.CompleteScan(ctx, "missing"), ErrScanNotFound)
	_, err = store.GetScan(ctx, "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestListScansNewestFirst(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	scans, err := store.ListScans(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, scans)
	assert.NotNil(t, scans)

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	recordCompletedScan(t, store, "first", base)
	recordCompletedScan(t, store, "second", base.Add(time.Hour))
	require.NoError(t, store.RecordScan(ctx, &types.Scan{ScanID: "third", CreatedAt: base.Add(2 * time.Hour)}))

	scans, err = store.ListScans(ctx, 2)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "third", scans[0].ScanID)
	assert.Equal(t, types.ScanInProgress, scans[0].ProcessState)
	assert.Equal(t, "second", scans[1].ScanID)
}

func TestPruneScansCascadesFindings(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("scan-%d", i)
		recordCompletedScan(t, store, id, base.Add(time.Duration(i)*time.Hour))
		f := testFinding(id, "a1", "res", "r1")
		require.NoError(t, store.PutFinding(ctx, &f))
	}

	deleted, err := store.PruneScans(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scan-0", "scan-1"}, deleted)

	f, err := store.GetFinding(ctx, types.FindingKey{ScanID: "scan-0", AccountID: "a1", ResourceID: "res", RequirementID: "r1"})
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = store.GetFinding(ctx, types.FindingKey{ScanID: "scan-2", AccountID: "a1", ResourceID: "res", RequirementID: "r1"})
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = store.PruneScans(ctx, 0)
	assert.Error(t, err)
}

func TestAuditRecords(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutAuditRecord(ctx, &AuditRecord{
		User: "admin@example.com", Action: "Put Exclusion - Admin",
		Parameters: map[string]any{"accountId": "111111111111"}, OccurredAt: base,
	}))
	require.NoError(t, store.PutAuditRecord(ctx, &AuditRecord{
		User: "user@example.com", Action: "Remediation started", OccurredAt: base.Add(time.Minute),
	}))

	all, err := store.ListAuditRecords(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Remediation started", all[0].Action)
	assert.NotEmpty(t, all[1].ID)
	assert.Equal(t, "111111111111", all[1].Parameters["accountId"])

	admin, err := store.ListAuditRecords(ctx, AuditFilter{User: "admin@example.com"})
	require.NoError(t, err)
	require.Len(t, admin, 1)

	limited, err := store.ListAuditRecords(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestExclusionStats(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	put := func(res, status, expiry string) {
		require.NoError(t, store.PutExclusion(ctx, &types.Exclusion{
			AccountID: "a1", RequirementID: "r1", ResourceID: res, Status: status, ExpirationDate: expiry,
		}, nil))
	}
	put("expired", types.StatusApproved, "2026/10/01")
	put("soon", types.StatusApproved, "2026/10/20")
	put("later", types.StatusInitial, "2027/06/01")
	put("archived", types.StatusArchived, "2026/01/01")

	stats, err := store.GetExclusionStats(ctx, now, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[types.StatusApproved])
	assert.Equal(t, 1, stats.ByStatus[types.StatusArchived])
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.ExpiringSoon)
	assert.Equal(t, 0, stats.InProgress)
}
