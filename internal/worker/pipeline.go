package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/daimoniac/scorecard/internal/policy"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/daimoniac/scorecard/internal/worker"

// Result summarizes one exclude run
type Result struct {
	ScanID     string                   `json:"scanId"`
	Findings   int                      `json:"findings"`
	Exclusions int                      `json:"exclusions"`
	Updated    int                      `json:"updated"`
	AppliedAt  time.Time                `json:"appliedAt"`
	Decisions  []*policy.PolicyDecision `json:"decisions,omitempty"`
}

// Pipeline orchestrates the exclude workflow for one scan
type Pipeline struct {
	worker *ExcludeWorker
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline creates a new pipeline instance
func NewPipeline(worker *ExcludeWorker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		worker: worker,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

type snapshot struct {
	exclusions []*types.Exclusion
	findings   []types.Finding
}

// Execute runs snapshot, match, persist and policy for the task's scan
func (p *Pipeline) Execute(ctx context.Context, task *queue.ExcludeTask) (result *Result, err error) {
	startTime := time.Now()
	metrics := observability.GetMetrics()
	metrics.ExclusionRunsTotal.Inc()

	ctx, span := p.tracer.Start(ctx, "exclude.run", trace.WithAttributes(
		attribute.String("scan_id", task.ScanID),
		attribute.String("reason", string(task.Reason)),
	))
	defer func() {
		if err != nil {
			metrics.ExclusionRunsFailed.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ExclusionRunDuration.Observe(time.Since(startTime).Seconds())
	}()

	p.logger.Info("starting exclude workflow",
		"task_id", task.ID,
		"scan_id", task.ScanID,
		"reason", task.Reason)

	if err := p.validateDependencies(); err != nil {
		return nil, err
	}

	// Phase 1: Snapshot
	snap, err := p.snapshotPhase(ctx, task.ScanID)
	if err != nil {
		return nil, err
	}

	// Phase 2: Match
	updated, err := p.matchPhase(ctx, snap)
	if err != nil {
		return nil, err
	}

	// Phase 3: Persistence
	appliedAt, err := p.persistencePhase(ctx, task.ScanID, updated)
	if err != nil {
		return nil, err
	}

	result = &Result{
		ScanID:     task.ScanID,
		Findings:   len(snap.findings),
		Exclusions: len(snap.exclusions),
		Updated:    len(updated),
		AppliedAt:  appliedAt,
	}

	// Phase 4: Policy, advisory only
	result.Decisions = p.policyPhase(ctx, task.ScanID, merge(snap.findings, updated))

	p.logger.Info("exclude workflow completed",
		"task_id", task.ID,
		"scan_id", task.ScanID,
		"findings", result.Findings,
		"exclusions", result.Exclusions,
		"updated", result.Updated,
		"total_duration", time.Since(startTime))

	return result, nil
}

// validateDependencies ensures all required components are configured
func (p *Pipeline) validateDependencies() error {
	if p.worker.store == nil {
		return errors.NewPermanentf("state store is not configured")
	}
	if p.worker.matcher == nil {
		return errors.NewPermanentf("matcher is not configured")
	}
	return nil
}

// snapshotPhase loads every exclusion and the scan's findings
func (p *Pipeline) snapshotPhase(ctx context.Context, scanID string) (*snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "exclude.snapshot")
	defer span.End()

	scan, err := p.worker.store.GetScan(ctx, scanID)
	if err != nil {
		if errors.Is(err, statestore.ErrScanNotFound) {
			return nil, errors.NewPermanent(fmt.Errorf("scan %s: %w", scanID, err))
		}
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}
	if scan.ProcessState != types.ScanCompleted {
		return nil, errors.NewPermanentf("scan %s is %s, exclusions apply to completed scans only", scanID, scan.ProcessState)
	}

	exclusions, err := p.worker.store.ListExclusions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusions: %w", err)
	}

	findings, err := p.worker.store.ListFindings(ctx, statestore.FindingFilter{ScanID: scanID})
	if err != nil {
		return nil, fmt.Errorf("failed to load findings: %w", err)
	}

	span.SetAttributes(
		attribute.Int("exclusions", len(exclusions)),
		attribute.Int("findings", len(findings)),
	)
	p.logger.Debug("snapshot loaded",
		"scan_id", scanID,
		"exclusions", len(exclusions),
		"findings", len(findings))

	return &snapshot{exclusions: exclusions, findings: findings}, nil
}

// matchPhase resolves the winning exclusion per finding and returns the findings that changed
func (p *Pipeline) matchPhase(ctx context.Context, snap *snapshot) ([]types.Finding, error) {
	ctx, span := p.tracer.Start(ctx, "exclude.match")
	defer span.End()

	updated, err := p.worker.matcher.ApplyAll(ctx, snap.findings, snap.exclusions, p.worker.config.MatchConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to match exclusions: %w", err)
	}

	metrics := observability.GetMetrics()
	metrics.FindingsProcessed.Add(float64(len(snap.findings)))
	for _, f := range updated {
		status := "none"
		if f.Exclusion != nil {
			status = f.Exclusion.Status
		}
		metrics.ExclusionsApplied.WithLabelValues(status).Inc()
	}

	span.SetAttributes(attribute.Int("updated", len(updated)))
	return updated, nil
}

// persistencePhase writes changed findings and stamps the scan
func (p *Pipeline) persistencePhase(ctx context.Context, scanID string, updated []types.Finding) (time.Time, error) {
	ctx, span := p.tracer.Start(ctx, "exclude.persist")
	defer span.End()

	if len(updated) > 0 {
		if err := p.worker.store.BatchPutFindings(ctx, updated); err != nil {
			return time.Time{}, fmt.Errorf("failed to store findings: %w", err)
		}
	}

	appliedAt := p.worker.now().UTC()
	if err := p.worker.store.MarkExclusionsApplied(ctx, scanID, appliedAt); err != nil {
		return time.Time{}, fmt.Errorf("failed to mark exclusions applied: %w", err)
	}

	p.logger.Info("exclusion results recorded", "scan_id", scanID, "updated", len(updated))
	return appliedAt, nil
}

// policyPhase evaluates the score gate per account. Failures are logged, never returned.
func (p *Pipeline) policyPhase(ctx context.Context, scanID string, findings []types.Finding) []*policy.PolicyDecision {
	if p.worker.policy == nil {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "exclude.policy")
	defer span.End()

	var severities map[string]string
	if p.worker.catalog != nil {
		severities = p.worker.catalog.RequirementSeverities()
	}

	byAccount := make(map[string][]types.Finding)
	for _, f := range findings {
		byAccount[f.AccountID] = append(byAccount[f.AccountID], f)
	}
	accounts := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)

	metrics := observability.GetMetrics()
	decisions := make([]*policy.PolicyDecision, 0, len(accounts))
	for _, accountID := range accounts {
		decision, err := p.worker.policy.Evaluate(ctx, accountID, byAccount[accountID], severities)
		if err != nil {
			p.logger.Error("failed to evaluate policy",
				"scan_id", scanID,
				"account_id", accountID,
				"error", err)
			continue
		}
		decisions = append(decisions, decision)

		if decision.Passed {
			metrics.PolicyPassed.Inc()
		} else {
			metrics.PolicyFailed.Inc()
			p.logger.Warn("account failed policy evaluation",
				"scan_id", scanID,
				"account_id", accountID,
				"non_compliant", decision.NonCompliantCount,
				"critical", decision.CriticalCount,
				"reason", decision.Reason)
		}

		for _, expiring := range decision.ExpiringExclusions {
			p.logger.Warn("exclusion expiring soon",
				"exclusion_id", expiring.ExclusionID,
				"expires_at", expiring.ExpiresAt,
				"days_until_expiry", expiring.DaysUntil,
				"account_id", accountID)
		}
	}
	return decisions
}

// merge overlays the updated findings onto the snapshot, keyed by finding identity
func merge(base, updated []types.Finding) []types.Finding {
	if len(updated) == 0 {
		return base
	}
	byKey := make(map[types.FindingKey]types.Finding, len(updated))
	for i := range updated {
		byKey[updated[i].Key()] = updated[i]
	}
	out := make([]types.Finding, len(base))
	for i := range base {
		if u, ok := byKey[base[i].Key()]; ok {
			out[i] = u
		} else {
			out[i] = base[i]
		}
	}
	return out
}
