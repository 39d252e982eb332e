// Package matcher selects and applies the best exclusion for each finding.
package matcher

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daimoniac/scorecard/internal/types"
)

// Index groups exclusions by requirement id, then account id.
type Index map[string]map[string][]*types.Exclusion

// Group builds an Index preserving input order within each bucket.
func Group(exclusions []*types.Exclusion) Index {
	idx := make(Index)
	for _, e := range exclusions {
		if e == nil {
			continue
		}
		byAccount, ok := idx[e.RequirementID]
		if !ok {
			byAccount = make(map[string][]*types.Exclusion)
			idx[e.RequirementID] = byAccount
		}
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}
	return idx
}

// Matcher evaluates exclusions against findings.
type Matcher struct {
	exclusionTypes map[string]types.ExclusionType
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithClock overrides the time source used for expiration checks.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithLogger sets the matcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// New creates a Matcher over the configured exclusion types.
func New(exclusionTypes map[string]types.ExclusionType, opts ...Option) *Matcher {
	m := &Matcher{
		exclusionTypes: exclusionTypes,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsEffective reports whether e currently suppresses the findings it matches.
func (m *Matcher) IsEffective(e *types.Exclusion) bool {
	if e == nil || (e.AccountID == "" && e.RequirementID == "" && e.ResourceID == "" && e.Status == "") {
		return false
	}
	if e.Status == "" || e.ExpirationDate == "" {
		m.logger.Info("exclusion has no status and/or expiration date, therefore not effective",
			"exclusion_id", e.ID())
		return false
	}

	expiration, err := types.ParseDate(e.ExpirationDate)
	if err != nil {
		m.logger.Warn("exclusion has unparseable expiration date",
			"exclusion_id", e.ID(),
			"expiration_date", e.ExpirationDate)
		return false
	}
	if !m.now().Before(expiration) {
		return false
	}

	switch e.Status {
	case types.StatusApproved:
		return true
	case types.StatusInitial:
		return m.exclusionTypes[e.Type].EffectiveIn(types.StatusInitial)
	default:
		return false
	}
}

// Match returns the candidate exclusions for f: same requirement, account
// equal to f's or '*', resource pattern matching f's resource, not archived.
func (m *Matcher) Match(f *types.Finding, idx Index) []*types.Exclusion {
	byAccount := idx[f.RequirementID]
	if byAccount == nil {
		return nil
	}
	pool := make([]*types.Exclusion, 0, len(byAccount[types.Wildcard])+len(byAccount[f.AccountID]))
	pool = append(pool, byAccount[types.Wildcard]...)
	if f.AccountID != types.Wildcard {
		pool = append(pool, byAccount[f.AccountID]...)
	}

	var candidates []*types.Exclusion
	for _, e := range pool {
		if e.Status == types.StatusArchived {
			continue
		}
		if Glob(e.ResourceID, f.ResourceID) {
			candidates = append(candidates, e)
		}
	}
	return candidates
}

// Priority scores a candidate: +100 effective, +10 account wildcard,
// +1 wildcard in the resource pattern.
func (m *Matcher) Priority(e *types.Exclusion) int {
	p := 0
	if m.IsEffective(e) {
		p += 100
	}
	if e.AccountID == types.Wildcard {
		p += 10
	}
	if strings.Contains(e.ResourceID, types.Wildcard) {
		p++
	}
	return p
}

// Prioritize returns the highest scoring candidate, the first seen on ties,
// or nil when there are none.
func (m *Matcher) Prioritize(candidates []*types.Exclusion) *types.Exclusion {
	if len(candidates) == 0 {
		return nil
	}
	scored := make([]*types.Exclusion, len(candidates))
	copy(scored, candidates)
	scores := make(map[*types.Exclusion]int, len(scored))
	for _, e := range scored {
		scores[e] = m.Priority(e)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scores[scored[i]] > scores[scored[j]]
	})
	return scored[0]
}

// Apply stamps best onto a copy of f. A nil best clears any previous stamp.
func (m *Matcher) Apply(f types.Finding, best *types.Exclusion) types.Finding {
	if best == nil {
		f.Exclusion = nil
		f.ExclusionApplied = false
		f.IsHidden = false
		return f
	}
	effective := m.IsEffective(best)
	f.Exclusion = best.Clone()
	f.ExclusionApplied = effective
	f.IsHidden = best.HidesResources && effective
	return f
}

// Resolve runs match, prioritize and apply for one finding. changed is false
// when the finding had no stamp and nothing matched.
func (m *Matcher) Resolve(f types.Finding, idx Index) (updated types.Finding, changed bool) {
	best := m.Prioritize(m.Match(&f, idx))
	if best == nil && f.Exclusion == nil && !f.ExclusionApplied && !f.IsHidden {
		return f, false
	}
	return m.Apply(f, best), true
}

// ApplyAll resolves every finding concurrently and returns the ones that
// changed, in no particular order.
func (m *Matcher) ApplyAll(ctx context.Context, findings []types.Finding, exclusions []*types.Exclusion, concurrency int) ([]types.Finding, error) {
	idx := Group(exclusions)
	results := make([]*types.Finding, len(findings))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i := range findings {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if updated, changed := m.Resolve(findings[i], idx); changed {
				results[i] = &updated
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var updated []types.Finding
	for _, r := range results {
		if r != nil {
			updated = append(updated, *r)
		}
	}
	m.logger.Info("applied exclusions",
		"findings", len(findings),
		"exclusions", len(exclusions),
		"updated", len(updated))
	return updated, nil
}
