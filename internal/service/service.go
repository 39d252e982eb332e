// Package service holds the request-level flows behind the HTTP API:
// admin and user exclusion writes, exclusion listing, and finding listing.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/daimoniac/scorecard/internal/exclusion"
	"github.com/daimoniac/scorecard/internal/matcher"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// Store is the persistence the services use
type Store interface {
	GetExclusion(ctx context.Context, key types.ExclusionKey) (*types.Exclusion, error)
	PutExclusion(ctx context.Context, e *types.Exclusion, replaced *types.ExclusionKey) error
	ScanExclusions(ctx context.Context, limit int, after *types.ExclusionKey) ([]*types.Exclusion, *types.ExclusionKey, error)
	GetFinding(ctx context.Context, key types.FindingKey) (*types.Finding, error)
	PutFinding(ctx context.Context, f *types.Finding) error
	ListFindings(ctx context.Context, filter statestore.FindingFilter) ([]types.Finding, error)
	GetLatestCompletedScan(ctx context.Context) (*types.Scan, error)
	PutAuditRecord(ctx context.Context, record *statestore.AuditRecord) error
}

// Catalog resolves requirements and exclusion types
type Catalog interface {
	Requirement(id string) (*types.Requirement, bool)
	ExclusionType(name string) (types.ExclusionType, bool)
	ExclusionTypeConfigs() map[string]types.ExclusionType
}

// ExclusionService validates and stores exclusion changes
type ExclusionService struct {
	store   Store
	catalog Catalog
	engine  *exclusion.Engine
	matcher *matcher.Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures ExclusionService
type Option func(*ExclusionService)

// WithClock overrides the time source for validation and matching
func WithClock(now func() time.Time) Option {
	return func(s *ExclusionService) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *ExclusionService) { s.logger = logger }
}

// NewExclusionService wires the lifecycle engine and matcher to store and catalog
func NewExclusionService(store Store, catalog Catalog, opts ...Option) *ExclusionService {
	s := &ExclusionService{
		store:   store,
		catalog: catalog,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = exclusion.NewEngine(NewLookup(store, catalog),
		exclusion.WithClock(s.now),
		exclusion.WithLogger(s.logger))
	s.matcher = matcher.New(catalog.ExclusionTypeConfigs(),
		matcher.WithClock(s.now),
		matcher.WithLogger(s.logger))
	return s
}

func (s *ExclusionService) audit(ctx context.Context, email, action string, params map[string]any) {
	if email == "" {
		return
	}
	err := s.store.PutAuditRecord(ctx, &statestore.AuditRecord{
		User:       email,
		Action:     action,
		Parameters: params,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to write audit record", "user", email, "action", action, "error", err)
	}
}
