package matcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/daimoniac/scorecard/internal/types"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

var exclusionTypes = map[string]types.ExclusionType{
	"exception": {MaxDurationInDays: 90},
	"lenient": {
		MaxDurationInDays: 90,
		States:            map[string]types.StateSettings{types.StatusInitial: {Effective: true}},
	},
}

func newMatcher() *Matcher {
	return New(exclusionTypes, WithClock(func() time.Time { return now }))
}

func excl(account, resource, status string, days int) *types.Exclusion {
	return &types.Exclusion{
		AccountID:      account,
		RequirementID:  "R1",
		ResourceID:     resource,
		Type:           "exception",
		Status:         status,
		ExpirationDate: types.FormatDate(now.AddDate(0, 0, days)),
	}
}

func finding(account, resource string) types.Finding {
	return types.Finding{ScanID: "s#1", AccountID: account, ResourceID: resource, RequirementID: "R1"}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"sg-1", "sg-1", true},
		{"sg-1", "sg-10", false},
		{"sg-?", "sg-1", true},
		{"sg-?", "sg-10", false},
		{"*", "anything/at:all", true},
		{"arn:aws:s3:::logs-*", "arn:aws:s3:::logs-2026/x", true},
		{"*-prod", "db-prod", true},
		{"*-prod", "db-production", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
		{"sg-[0-9]", "sg-7", true},
		{"sg-[!0-9]", "sg-7", false},
		{"sg-[", "sg-[", true},
		{"", "", true},
		{"", "x", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s~%s", tt.pattern, tt.name), func(t *testing.T) {
			if got := Glob(tt.pattern, tt.name); got != tt.want {
				t.Errorf("Glob(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
			}
		})
	}
}

func TestIsEffective(t *testing.T) {
	m := newMatcher()

	lenient := excl("111122223333", "sg-1", types.StatusInitial, 5)
	lenient.Type = "lenient"

	tests := []struct {
		name string
		e    *types.Exclusion
		want bool
	}{
		{name: "nil", e: nil, want: false},
		{name: "empty", e: &types.Exclusion{}, want: false},
		{name: "approved future", e: excl("1", "r", types.StatusApproved, 5), want: true},
		{name: "approved expired yesterday", e: excl("1", "r", types.StatusApproved, -1), want: false},
		{name: "approved expiring today", e: excl("1", "r", types.StatusApproved, 0), want: false},
		{name: "initial not effective by default", e: excl("1", "r", types.StatusInitial, 5), want: false},
		{name: "initial effective by type", e: lenient, want: true},
		{name: "rejected", e: excl("1", "r", types.StatusRejected, 5), want: false},
		{name: "no expiration", e: &types.Exclusion{AccountID: "1", Status: types.StatusApproved}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsEffective(tt.e); got != tt.want {
				t.Errorf("IsEffective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	m := newMatcher()
	archived := excl("111122223333", "sg-1", types.StatusArchived, 5)
	exact := excl("111122223333", "sg-1", types.StatusApproved, 5)
	otherAccount := excl("999988887777", "sg-1", types.StatusApproved, 5)
	wildcard := excl("*", "sg-*", types.StatusApproved, 5)
	otherRequirement := excl("111122223333", "sg-1", types.StatusApproved, 5)
	otherRequirement.RequirementID = "R2"

	idx := Group([]*types.Exclusion{archived, exact, otherAccount, wildcard, otherRequirement})
	f := finding("111122223333", "sg-1")
	got := m.Match(&f, idx)

	if len(got) != 2 || got[0] != wildcard || got[1] != exact {
		t.Fatalf("Match() = %v, want [wildcard exact]", got)
	}
}

func TestPrioritize(t *testing.T) {
	m := newMatcher()

	effectiveNarrow := excl("111122223333", "sg-1", types.StatusApproved, 5)
	expiredWildcard := excl("*", "*", types.StatusApproved, -1)
	effectiveWildcard := excl("*", "*", types.StatusApproved, 5)

	if got := m.Prioritize(nil); got != nil {
		t.Errorf("Prioritize(nil) = %v", got)
	}
	if got := m.Prioritize([]*types.Exclusion{expiredWildcard, effectiveNarrow}); got != effectiveNarrow {
		t.Errorf("ineffective wildcard must not beat effective narrow exclusion")
	}
	if got := m.Prioritize([]*types.Exclusion{effectiveNarrow, effectiveWildcard}); got != effectiveWildcard {
		t.Errorf("effective account wildcard should win: got %+v", got)
	}

	first := excl("111122223333", "sg-1", types.StatusApproved, 5)
	second := excl("111122223333", "sg-1", types.StatusApproved, 6)
	if got := m.Prioritize([]*types.Exclusion{first, second}); got != first {
		t.Error("ties must resolve to the first candidate")
	}
}

func TestApply(t *testing.T) {
	m := newMatcher()

	hiding := excl("111122223333", "sg-1", types.StatusApproved, 5)
	hiding.HidesResources = true
	got := m.Apply(finding("111122223333", "sg-1"), hiding)
	if !got.ExclusionApplied || !got.IsHidden || got.Exclusion == nil {
		t.Errorf("Apply(effective hiding) = %+v", got)
	}

	expired := excl("111122223333", "sg-1", types.StatusApproved, -1)
	expired.HidesResources = true
	got = m.Apply(finding("111122223333", "sg-1"), expired)
	if got.ExclusionApplied || got.IsHidden || got.Exclusion == nil {
		t.Errorf("expired exclusion must be stamped but not applied: %+v", got)
	}
}

func TestApplyAll(t *testing.T) {
	m := newMatcher()
	adminWildcard := excl("*", "*", types.StatusApproved, 30)

	findings := make([]types.Finding, 0, 50)
	for i := 0; i < 50; i++ {
		findings = append(findings, finding(fmt.Sprintf("1111222233%02d", i), fmt.Sprintf("sg-%d", i)))
	}
	other := finding("111122223333", "bucket")
	other.RequirementID = "R9"
	findings = append(findings, other)

	updated, err := m.ApplyAll(context.Background(), findings, []*types.Exclusion{adminWildcard}, 4)
	if err != nil {
		t.Fatalf("ApplyAll() error = %v", err)
	}
	if len(updated) != 50 {
		t.Fatalf("updated %d findings, want 50", len(updated))
	}
	for _, f := range updated {
		if f.RequirementID != "R1" || !f.ExclusionApplied {
			t.Errorf("unexpected finding %+v", f)
		}
	}
}

func TestApplyAllClearsStaleStamp(t *testing.T) {
	m := newMatcher()
	stale := finding("111122223333", "sg-1")
	stale.Exclusion = excl("111122223333", "sg-1", types.StatusApproved, 5)
	stale.ExclusionApplied = true

	updated, err := m.ApplyAll(context.Background(), []types.Finding{stale}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 || updated[0].Exclusion != nil || updated[0].ExclusionApplied {
		t.Errorf("stale stamp not cleared: %+v", updated)
	}
}

func TestApplyAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newMatcher().ApplyAll(ctx, []types.Finding{finding("1", "r")}, nil, 1); err == nil {
		t.Error("expected context error")
	}
}

func TestMatchingProperties(t *testing.T) {
	m := newMatcher()
	properties := gopter.NewProperties(nil)

	properties.Property("literal resource ids match only themselves", prop.ForAll(
		func(a, b string) bool {
			return Glob(a, b) == (a == b)
		},
		gen.AlphaString(), gen.AlphaString(),
	))

	properties.Property("prioritize is deterministic and order does not change the winning score", prop.ForAll(
		func(days []int, wild []bool) bool {
			var candidates []*types.Exclusion
			for i, d := range days {
				account := "111122223333"
				if i < len(wild) && wild[i] {
					account = "*"
				}
				candidates = append(candidates, excl(account, "sg-1", types.StatusApproved, d))
			}
			if len(candidates) == 0 {
				return m.Prioritize(candidates) == nil
			}
			first := m.Prioritize(candidates)
			if m.Prioritize(candidates) != first {
				return false
			}
			reversed := make([]*types.Exclusion, len(candidates))
			for i, c := range candidates {
				reversed[len(candidates)-1-i] = c
			}
			return m.Priority(m.Prioritize(reversed)) == m.Priority(first)
		},
		gen.SliceOf(gen.IntRange(-3, 3)), gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
