package exclusion

import (
	"context"
	"log/slog"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// Engine validates and applies exclusion updates.
type Engine struct {
	lookup Lookup
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine. lookup may be nil when only admin requests
// are processed.
func NewEngine(lookup Lookup, opts ...Option) *Engine {
	e := &Engine{
		lookup: lookup,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Transition is the outcome of a validated update.
type Transition struct {
	From State
	To   State
}

// Validate checks request against old under the caller's transition table
// and returns the transition it performs.
func (e *Engine) Validate(ctx context.Context, old *types.Exclusion, request map[string]any, cfg types.ExclusionType, isAdmin bool) (Transition, error) {
	oldRecord := types.ExclusionToMap(old)
	prospective := Merge(oldRecord, request)

	from, err := DeriveState(oldRecord)
	if err != nil {
		return Transition{}, err
	}
	to, err := DeriveState(prospective)
	if err != nil {
		return Transition{}, err
	}

	schema, ok := TableFor(isAdmin).Lookup(from, to)
	if !ok {
		return Transition{}, &errors.StateTransitionError{
			Message:  "cannot go from " + string(from) + " to " + string(to),
			OldState: string(from),
			NewState: string(to),
			Request:  request,
		}
	}

	var missing, extra []string
	for _, key := range schema.Keys() {
		if _, present := request[key]; schema[key].Required && !present {
			missing = append(missing, key)
		}
	}
	for key := range request {
		if _, known := schema[key]; !known {
			extra = append(extra, key)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sortStrings(extra)
		return Transition{}, &errors.StateTransitionError{
			Message:     "Invalid request keys",
			OldState:    string(from),
			NewState:    string(to),
			Request:     request,
			MissingKeys: missing,
			ExtraKeys:   extra,
		}
	}

	in := &Input{
		Old:         oldRecord,
		Prospective: prospective,
		Request:     request,
		Type:        cfg,
		IsAdmin:     isAdmin,
		Now:         e.now(),
		Lookup:      e.lookup,
	}

	var violations []errors.FieldViolation
	for _, key := range schema.Keys() {
		rule := schema[key]
		if _, present := request[key]; !present || rule.Validate == nil {
			continue
		}
		v, err := rule.Validate(ctx, in)
		if err != nil {
			return Transition{}, err
		}
		if v != nil {
			v.Property = key
			violations = append(violations, *v)
		}
	}
	if len(violations) > 0 {
		return Transition{}, &errors.StateTransitionError{
			Message:          "Invalid field values",
			OldState:         string(from),
			NewState:         string(to),
			Request:          request,
			ValidationErrors: violations,
		}
	}

	return Transition{From: from, To: to}, nil
}

// UpdateExclusion validates request against old and returns the merged
// record. lastStatusChangeDate is stamped when the status changes.
func (e *Engine) UpdateExclusion(ctx context.Context, old *types.Exclusion, request map[string]any, cfg types.ExclusionType, isAdmin bool) (*types.Exclusion, error) {
	if len(request) == 0 {
		return nil, errors.InvalidRequestf("Must supply exclusion in the body")
	}

	transition, err := e.Validate(ctx, old, request, cfg, isAdmin)
	if err != nil {
		return nil, err
	}

	merged := Merge(types.ExclusionToMap(old), request)
	updated, err := types.ExclusionFromMap(merged)
	if err != nil {
		return nil, errors.InvalidRequestf("%v", err)
	}

	oldStatus := ""
	if old != nil {
		oldStatus = old.Status
	}
	if updated.Status != oldStatus {
		updated.LastStatusChangeDate = e.now().UTC().Format(time.RFC3339)
	}

	e.logger.Debug("exclusion updated",
		"exclusion_id", updated.ID(),
		"from", transition.From,
		"to", transition.To,
		"admin", isAdmin)

	return updated, nil
}
