package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStatsSource struct {
	stats  *statestore.ExclusionStats
	err    error
	window time.Duration
}

func (f *fakeStatsSource) GetExclusionStats(_ context.Context, _ time.Time, window time.Duration) (*statestore.ExclusionStats, error) {
	f.window = window
	return f.stats, f.err
}

func TestExclusionCollector(t *testing.T) {
	source := &fakeStatsSource{stats: &statestore.ExclusionStats{
		ByStatus:     map[string]int{"approved": 3, "initial": 1},
		Expired:      1,
		ExpiringSoon: 2,
		InProgress:   1,
	}}
	c := NewExclusionCollector(source, 14*24*time.Hour, NewLogger("error"))

	expected := `
# HELP scorecard_exclusions Current number of stored exclusions by status
# TYPE scorecard_exclusions gauge
scorecard_exclusions{status="approved"} 3
scorecard_exclusions{status="initial"} 1
# HELP scorecard_expired_exclusions Number of non-archived exclusions past their expiration date
# TYPE scorecard_expired_exclusions gauge
scorecard_expired_exclusions 1
# HELP scorecard_expiring_exclusions_soon Number of non-archived exclusions expiring within the warning window
# TYPE scorecard_expiring_exclusions_soon gauge
scorecard_expiring_exclusions_soon 2
# HELP scorecard_remediations_in_progress Number of findings currently holding the remediation lock
# TYPE scorecard_remediations_in_progress gauge
scorecard_remediations_in_progress 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if source.window != 14*24*time.Hour {
		t.Errorf("expected warning window to be passed through, got %v", source.window)
	}
}

func TestExclusionCollectorStoreError(t *testing.T) {
	source := &fakeStatsSource{err: errors.New("database is locked")}
	c := NewExclusionCollector(source, time.Hour, NewLogger("error"))

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("expected no metrics when the store fails, got %d", n)
	}
}
