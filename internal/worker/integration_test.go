package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimoniac/scorecard/internal/matcher"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
	"github.com/daimoniac/scorecard/internal/watcher"
)

// seedSQLite loads the fakeStore fixture into a real SQLite database
func seedSQLite(t *testing.T) *statestore.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	fixture := newStore()

	store, err := statestore.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.RecordScan(ctx, &types.Scan{ScanID: testScanID, CreatedAt: fixture.scan.CreatedAt}))
	require.NoError(t, store.CompleteScan(ctx, testScanID))
	require.NoError(t, store.BatchPutFindings(ctx, fixture.findings))
	for _, e := range fixture.exclusions {
		require.NoError(t, store.PutExclusion(ctx, e, nil))
	}
	return store
}

func TestApplyNowAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store := seedSQLite(t)
	w := newTestWorker(newMockQueue(1), store, nil)

	result, err := w.ApplyNow(ctx, testScanID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Findings)
	assert.Equal(t, 1, result.Updated)

	findings, err := store.ListFindings(ctx, statestore.FindingFilter{ScanID: testScanID, AccountIDs: []string{"111111111111"}})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	byResource := map[string]types.Finding{}
	for _, f := range findings {
		byResource[f.ResourceID] = f
	}
	assert.True(t, byResource["sg-0a12"].ExclusionApplied)
	assert.True(t, byResource["sg-0a12"].IsHidden)
	assert.False(t, byResource["sg-0b34"].ExclusionApplied)

	scan, err := store.GetScan(ctx, testScanID)
	require.NoError(t, err)
	require.NotNil(t, scan.ExclusionsAppliedAt)
	assert.True(t, scan.ExclusionsAppliedAt.Equal(testNow))

	pending, err := store.ListScansPendingExclusions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExpiredExclusionIsClearedOnReapply(t *testing.T) {
	ctx := context.Background()
	store := seedSQLite(t)
	w := newTestWorker(newMockQueue(1), store, nil)

	_, err := w.ApplyNow(ctx, testScanID)
	require.NoError(t, err)

	// Exclusion expires 30 days out; re-running after that drops the stamp
	later := testNow.AddDate(0, 0, 31)
	w.now = func() time.Time { return later }
	w.matcher = matcher.New(
		map[string]types.ExclusionType{"standard": {MaxDurationInDays: 90}},
		matcher.WithClock(w.now),
	)

	result, err := w.ApplyNow(ctx, testScanID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	f, err := store.GetFinding(ctx, types.FindingKey{ScanID: testScanID, AccountID: "111111111111", ResourceID: "sg-0a12", RequirementID: "sg-open-ssh"})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.False(t, f.ExclusionApplied)
	assert.False(t, f.IsHidden)
	require.NotNil(t, f.Exclusion)
}

func TestWatcherFeedsWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := seedSQLite(t)
	q := queue.NewInMemoryQueue(10)
	w := newTestWorker(q, store, nil)

	scanWatcher := watcher.NewWatcher(store, q, watcher.Config{
		PollInterval:    time.Hour,
		ReapplyInterval: time.Hour,
	}, nil)
	require.NoError(t, scanWatcher.Discover(ctx))

	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool {
		scan, err := store.GetScan(ctx, testScanID)
		return err == nil && scan.ExclusionsAppliedAt != nil
	}, 5*time.Second, 20*time.Millisecond)

	f, err := store.GetFinding(ctx, types.FindingKey{ScanID: testScanID, AccountID: "111111111111", ResourceID: "sg-0a12", RequirementID: "sg-open-ssh"})
	require.NoError(t, err)
	assert.True(t, f.ExclusionApplied)
}
