package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/daimoniac/scorecard/internal/authz"
	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/notify"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// Catalog resolves requirements, remediation definitions and accounts.
type Catalog interface {
	Requirement(id string) (*types.Requirement, bool)
	Remediation(id string) (*types.RemediationDefinition, bool)
	Account(id string) (*types.Account, bool)
}

// Store is the persistence used by Manager.
type Store interface {
	GetFinding(ctx context.Context, key types.FindingKey) (*types.Finding, error)
	AcquireRemediationLock(ctx context.Context, key types.FindingKey) (bool, error)
	SetRemediationStatus(ctx context.Context, key types.FindingKey, status *string) (*types.Finding, error)
	PutAuditRecord(ctx context.Context, record *statestore.AuditRecord) error
}

// Input is a remediation request from a user.
type Input struct {
	NCRID                 string         `json:"ncrId"`
	RemediationParameters map[string]any `json:"remediationParameters"`
	OverrideIacWarning    bool           `json:"overrideIacWarning"`
}

// Result is returned to the caller after the pipeline finished.
type Result struct {
	Status     string         `json:"status"`
	Message    string         `json:"message"`
	UpdatedNCR *types.Finding `json:"updatedNcr,omitempty"`
}

// Manager guards pipeline runs with the per-finding lock and records
// their outcome.
type Manager struct {
	store           Store
	catalog         Catalog
	registry        *Registry
	pipeline        *Pipeline
	elevator        Elevator
	notifier        notify.Notifier
	logger          *slog.Logger
	now             func() time.Time
	remediationRole string
	preflight       bool
	notifyTimeout   time.Duration
}

// DefaultNotifyTimeout bounds the best-effort notification after a run.
const DefaultNotifyTimeout = 5 * time.Second

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier sets the notification sink
func WithNotifier(n notify.Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock sets the time source used for notifications
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithNotifyTimeout bounds how long a notification may block
func WithNotifyTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.notifyTimeout = d }
}

// WithRolePreflight makes Remediate assume both roles before taking the lock
func WithRolePreflight(enabled bool) ManagerOption {
	return func(m *Manager) { m.preflight = enabled }
}

// NewManager creates a manager. remediationRoleName is the role name that
// every account deploys for mutations.
func NewManager(store Store, catalog Catalog, registry *Registry, elevator Elevator, remediationRoleName string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:           store,
		catalog:         catalog,
		registry:        registry,
		elevator:        elevator,
		logger:          slog.Default(),
		now:             time.Now,
		remediationRole: remediationRoleName,
		notifyTimeout:   DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pipeline = NewPipeline(elevator, m.logger)
	return m
}

// RemediationRoleARN returns the mutating role of an account
func (m *Manager) RemediationRoleARN(accountID string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, m.remediationRole)
}

// Remediate validates in, takes the finding's lock, runs the worker and
// records the outcome. Once the lock is held the run no longer observes
// cancellation of ctx, so the stored status always settles.
func (m *Manager) Remediate(ctx context.Context, user *types.User, in Input) (*Result, error) {
	key, err := types.ParseNCRID(in.NCRID)
	if err != nil {
		return nil, errors.InvalidRequestf("invalid NCR ID")
	}

	finding, err := m.store.GetFinding(ctx, key)
	if err != nil {
		return nil, err
	}
	if finding == nil {
		return nil, errors.NotFoundf("record for ncrId %s not found", in.NCRID)
	}

	requirement, ok := m.catalog.Requirement(finding.RequirementID)
	if !ok {
		return nil, errors.NotFoundf("requirement %s", finding.RequirementID)
	}
	if requirement.Remediation == nil {
		return nil, errors.InvalidRequestf("No remediation available for this resource type")
	}
	definition, ok := m.catalog.Remediation(requirement.Remediation.RemediationID)
	if !ok {
		return nil, errors.InvalidRequestf("No remediation available for this resource type")
	}

	params := in.RemediationParameters
	if params == nil {
		params = map[string]any{}
	}
	if err := checkParameters(params, definition); err != nil {
		return nil, err
	}

	if err := authz.RequireCanRemediate(user, finding.AccountID); err != nil {
		return nil, err
	}

	account, ok := m.catalog.Account(finding.AccountID)
	if !ok {
		return nil, errors.NotFoundf("no account record found for accountId %s", finding.AccountID)
	}
	readonlyRole := account.ReadonlyRoleARN
	remediationRole := m.RemediationRoleARN(finding.AccountID)

	worker, err := m.registry.New(definition.Worker)
	if err != nil {
		return nil, errors.NewPermanent(err)
	}

	if m.preflight {
		if err := m.checkRoles(ctx, user.Email, readonlyRole, remediationRole); err != nil {
			return nil, err
		}
	}

	locked, err := m.store.AcquireRemediationLock(ctx, key)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("%w: remediation for ncrId %s failed as remediation in progress",
			errors.ErrRemediationInProgress, in.NCRID)
	}
	ctx = context.WithoutCancel(ctx)

	m.audit(ctx, user.Email, statestore.AuditRemediationStarted, params)

	req := &Request{
		Finding:               *finding,
		RemediationParameters: params,
		RequirementParameters: requirement.Remediation.RequirementBasedParameters,
		OverrideIacWarning:    in.OverrideIacWarning,
		ReadonlyRole:          readonlyRole,
		RemediationRole:       remediationRole,
		UserEmail:             user.Email,
	}
	if req.RequirementParameters == nil {
		req.RequirementParameters = map[string]any{}
	}

	outcome := m.pipeline.Run(ctx, worker, req)

	action, status := m.settle(outcome)
	m.audit(ctx, user.Email, action, params)

	m.logger.Info("remediation finished",
		"user", user.Email,
		"ncr_id", in.NCRID,
		"status", outcome.Status,
		"stage", outcome.Stage)

	updated, err := m.store.SetRemediationStatus(ctx, key, status)
	if err != nil {
		return nil, err
	}

	m.notify(ctx, notify.Event{
		Timestamp:   m.now().UTC(),
		Status:      outcome.Status,
		Message:     outcome.Message,
		User:        user.Email,
		Finding:     *finding,
		Requirement: requirement,
		Parameters:  params,
	}, in.NCRID)

	result := &Result{Status: outcome.Status, Message: outcome.Message}
	if outcome.Status == StatusSuccess {
		result.UpdatedNCR = updated
	}
	return result, nil
}

func (m *Manager) notify(ctx context.Context, event notify.Event, ncrID string) {
	if m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.logger.Warn("failed to publish remediation notification",
			"ncr_id", ncrID,
			"error", err)
	}
}

// settle maps an outcome to its audit action and the stored remediation
// status. A nil status releases the lock so the finding can be retried.
func (m *Manager) settle(outcome Outcome) (string, *string) {
	switch outcome.Status {
	case StatusSuccess:
		return statestore.AuditRemediationCompleted, strPtr(types.RemediationSuccess)
	case StatusValidationError:
		return statestore.AuditRemediationInvalidInput, nil
	case StatusIacOverrideRequired:
		return statestore.AuditRemediationIacOverride, nil
	default:
		if outcome.Stage == StageReadonlyCredentials || outcome.Stage == StageRemediationCredentials {
			return statestore.AuditRemediationErrored, nil
		}
		return statestore.AuditRemediationErrored, strPtr(types.RemediationError)
	}
}

func (m *Manager) checkRoles(ctx context.Context, email, readonlyRole, remediationRole string) error {
	sessionName := "remediation_" + email + "_role_check"
	if len(sessionName) > 64 {
		sessionName = sessionName[:64]
	}

	var failed []string
	if _, err := m.elevator.AssumeRole(ctx, readonlyRole, sessionName); err != nil {
		m.logger.Warn("role preflight failed", "role", readonlyRole, "error", err)
		failed = append(failed, "readonly role")
	}
	if _, err := m.elevator.AssumeRole(ctx, remediationRole, sessionName); err != nil {
		m.logger.Warn("role preflight failed", "role", remediationRole, "error", err)
		failed = append(failed, "remediation role")
	}
	if len(failed) > 0 {
		return errors.InvalidRequestf("remediation must be done manually: unable to assume %s", strings.Join(failed, " and "))
	}
	return nil
}

func (m *Manager) audit(ctx context.Context, email, action string, params map[string]any) {
	err := m.store.PutAuditRecord(ctx, &statestore.AuditRecord{
		User:       email,
		Action:     action,
		Parameters: params,
		OccurredAt: m.now().UTC(),
	})
	if err != nil {
		m.logger.Warn("failed to write audit record", "action", action, "user", email, "error", err)
	}
}

func checkParameters(params map[string]any, definition *types.RemediationDefinition) error {
	var missing, extra []string
	for name := range definition.Parameters {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range params {
		if _, ok := definition.Parameters[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return errors.InvalidRequestf("Invalid remediation parameters, missing keys: %s, extra keys %s",
		strings.Join(missing, ", "), strings.Join(extra, ", "))
}

func strPtr(s string) *string { return &s }
