package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/daimoniac/scorecard/internal/types"
)

// PolicyEngine defines the interface for account compliance evaluation
type PolicyEngine interface {
	// Evaluate decides whether an account passes after exclusions were applied
	Evaluate(ctx context.Context, accountID string, findings []types.Finding, severities map[string]string) (*PolicyDecision, error)
}

// PolicyConfig defines a CEL-based policy configuration
type PolicyConfig struct {
	// Expression is the CEL expression that must evaluate to true for the account to pass
	// Available variables:
	//   - findings: list of maps with fields:
	//       requirementId, resourceId, severity, excluded, hidden, exclusionStatus
	//   - accountId: the evaluated account
	//   - nonCompliantCount: findings not covered by an effective exclusion
	//   - excludedCount: findings covered by an effective exclusion
	//   - hiddenCount: excluded findings that are also hidden
	//   - criticalCount, highCount: non-compliant findings by requirement severity
	Expression string `yaml:"expression" json:"expression"`

	// FailureMessage is the message to return when the policy fails (optional)
	FailureMessage string `yaml:"failureMessage" json:"failureMessage"`
}

// PolicyDecision represents the result of policy evaluation
type PolicyDecision struct {
	AccountID          string
	Passed             bool
	Reason             string
	NonCompliantCount  int
	ExcludedCount      int
	HiddenCount        int
	CriticalCount      int
	ExpiringExclusions []ExpiringExclusion
}

// ExpiringExclusion is an applied exclusion that lapses within the warning window
type ExpiringExclusion struct {
	ExclusionID string
	ExpiresAt   time.Time
	DaysUntil   int
}

// Engine implements PolicyEngine using CEL expressions
type Engine struct {
	logger              *slog.Logger
	expiryWarningWindow time.Duration
	now                 func() time.Time
	config              PolicyConfig
	celProgram          cel.Program
}

// NewEngine creates a new policy engine with a CEL-based policy
func NewEngine(logger *slog.Logger, config PolicyConfig) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Default policy: every finding is either fixed or excluded
	if config.Expression == "" {
		config.Expression = `nonCompliantCount == 0`
		if config.FailureMessage == "" {
			config.FailureMessage = "non-compliant resources found"
		}
	}

	env, err := cel.NewEnv(
		cel.Variable("findings", cel.ListType(cel.MapType(cel.StringType, cel.AnyType))),
		cel.Variable("accountId", cel.StringType),
		cel.Variable("nonCompliantCount", cel.IntType),
		cel.Variable("excludedCount", cel.IntType),
		cel.Variable("hiddenCount", cel.IntType),
		cel.Variable("criticalCount", cel.IntType),
		cel.Variable("highCount", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(config.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy expression must return a boolean, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Engine{
		logger:              logger,
		expiryWarningWindow: 7 * 24 * time.Hour,
		now:                 time.Now,
		config:              config,
		celProgram:          program,
	}, nil
}

// Evaluate runs the policy over one account's findings. severities maps
// requirement ids to severity names.
func (e *Engine) Evaluate(ctx context.Context, accountID string, findings []types.Finding, severities map[string]string) (*PolicyDecision, error) {
	decision := &PolicyDecision{
		AccountID:          accountID,
		ExpiringExclusions: make([]ExpiringExclusion, 0),
	}

	now := e.now()
	seen := make(map[string]bool)
	enriched := make([]map[string]interface{}, 0, len(findings))
	highCount := 0

	for _, f := range findings {
		severity := strings.ToUpper(severities[f.RequirementID])
		entry := map[string]interface{}{
			"requirementId":   f.RequirementID,
			"resourceId":      f.ResourceID,
			"severity":        severity,
			"excluded":        f.ExclusionApplied,
			"hidden":          f.IsHidden,
			"exclusionStatus": "",
		}
		if f.Exclusion != nil {
			entry["exclusionStatus"] = f.Exclusion.Status
		}
		enriched = append(enriched, entry)

		if f.ExclusionApplied {
			decision.ExcludedCount++
			if f.IsHidden {
				decision.HiddenCount++
			}
			e.trackExpiry(decision, f.Exclusion, now, seen)
			continue
		}

		decision.NonCompliantCount++
		switch severity {
		case "CRITICAL":
			decision.CriticalCount++
		case "HIGH":
			highCount++
		}
	}

	out, _, err := e.celProgram.ContextEval(ctx, map[string]interface{}{
		"findings":          enriched,
		"accountId":         accountID,
		"nonCompliantCount": decision.NonCompliantCount,
		"excludedCount":     decision.ExcludedCount,
		"hiddenCount":       decision.HiddenCount,
		"criticalCount":     decision.CriticalCount,
		"highCount":         highCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("policy expression did not return a boolean: %v", out.Value())
	}
	decision.Passed = passed

	if passed {
		decision.Reason = fmt.Sprintf("policy passed: noncompliant=%d, excluded=%d (hidden=%d)",
			decision.NonCompliantCount, decision.ExcludedCount, decision.HiddenCount)
		e.logger.Info("policy evaluation passed",
			"account_id", accountID,
			"noncompliant", decision.NonCompliantCount,
			"excluded", decision.ExcludedCount)
	} else {
		decision.Reason = e.config.FailureMessage
		if decision.Reason == "" {
			decision.Reason = fmt.Sprintf("policy failed: noncompliant=%d, critical=%d, high=%d, excluded=%d",
				decision.NonCompliantCount, decision.CriticalCount, highCount, decision.ExcludedCount)
		}
		e.logger.Warn("policy evaluation failed",
			"account_id", accountID,
			"noncompliant", decision.NonCompliantCount,
			"critical", decision.CriticalCount,
			"high", highCount,
			"expression", e.config.Expression)
	}

	return decision, nil
}

func (e *Engine) trackExpiry(decision *PolicyDecision, ex *types.Exclusion, now time.Time, seen map[string]bool) {
	if ex == nil || seen[ex.ID()] {
		return
	}
	seen[ex.ID()] = true

	expiresAt, err := types.ParseDate(ex.ExpirationDate)
	if err != nil {
		return
	}
	until := expiresAt.Sub(now)
	if until <= 0 || until > e.expiryWarningWindow {
		return
	}
	days := int(until.Hours() / 24)
	decision.ExpiringExclusions = append(decision.ExpiringExclusions, ExpiringExclusion{
		ExclusionID: ex.ID(),
		ExpiresAt:   expiresAt,
		DaysUntil:   days,
	})
	e.logger.Warn("exclusion expiring soon",
		"exclusion_id", ex.ID(),
		"expires_at", expiresAt,
		"days_until_expiry", days,
		"account_id", decision.AccountID)
}

// SetExpiryWarningWindow sets the duration before expiry to trigger warnings
func (e *Engine) SetExpiryWarningWindow(duration time.Duration) {
	e.expiryWarningWindow = duration
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
