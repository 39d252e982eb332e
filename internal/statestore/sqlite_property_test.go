package statestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/daimoniac/scorecard/internal/types"
)

// TestPruneScansProperty checks that pruning keeps exactly the newest scans
func TestPruneScansProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only the most recent N scans are preserved", prop.ForAll(
		func(scanCount int, keep int) bool {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prune.db"))
			if err != nil {
				t.Logf("Failed to create store: %v", err)
				return false
			}
			defer store.Close()

			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < scanCount; i++ {
				scan := &types.Scan{ScanID: fmt.Sprintf("scan-%02d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
				if err := store.RecordScan(ctx, scan); err != nil {
					t.Logf("Failed to record scan %d: %v", i, err)
					return false
				}
			}

			deleted, err := store.PruneScans(ctx, keep)
			if err != nil {
				t.Logf("Prune failed: %v", err)
				return false
			}

			expectedDeleted := scanCount - keep
			if expectedDeleted < 0 {
				expectedDeleted = 0
			}
			if len(deleted) != expectedDeleted {
				return false
			}
			for _, id := range deleted {
				var idx int
				if _, err := fmt.Sscanf(id, "scan-%02d", &idx); err != nil || idx >= expectedDeleted {
					return false
				}
			}

			var remaining int
			if err := store.db.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&remaining); err != nil {
				return false
			}
			return remaining == scanCount-expectedDeleted
		},
		gen.IntRange(0, 6),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestExclusionPaginationProperty checks that paging visits every key once in order
func TestExclusionPaginationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("pages partition the exclusion set", prop.ForAll(
		func(count int, pageSize int) bool {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pages.db"))
			if err != nil {
				return false
			}
			defer store.Close()

			ctx := context.Background()
			for i := 0; i < count; i++ {
				e := &types.Exclusion{
					AccountID:     fmt.Sprintf("acct-%d", i%4),
					RequirementID: fmt.Sprintf("req-%d", i%3),
					ResourceID:    fmt.Sprintf("res-%02d", i),
					Status:        types.StatusInitial,
				}
				if err := store.PutExclusion(ctx, e, nil); err != nil {
					return false
				}
			}

			seen := map[string]bool{}
			prev := ""
			var after *types.ExclusionKey
			for {
				items, next, err := store.ScanExclusions(ctx, pageSize, after)
				if err != nil || len(items) > pageSize {
					return false
				}
				for _, e := range items {
					id := e.Key().AccountID + "\x00" + e.Key().SortKey()
					if seen[id] || id <= prev {
						return false
					}
					seen[id] = true
					prev = id
				}
				if next == nil {
					break
				}
				after = next
			}
			return len(seen) == count
		},
		gen.IntRange(0, 12),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
