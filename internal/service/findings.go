package service

import (
	"context"
	"log/slog"

	"github.com/daimoniac/scorecard/internal/authz"
	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// FindingStore is the persistence FindingService reads
type FindingStore interface {
	GetExclusion(ctx context.Context, key types.ExclusionKey) (*types.Exclusion, error)
	ListFindings(ctx context.Context, filter statestore.FindingFilter) ([]types.Finding, error)
	GetLatestCompletedScan(ctx context.Context) (*types.Scan, error)
}

// FindingService lists findings of the latest completed scan
type FindingService struct {
	store   FindingStore
	catalog requirementCatalog
	logger  *slog.Logger
}

// NewFindingService creates a FindingService
func NewFindingService(store FindingStore, catalog requirementCatalog, logger *slog.Logger) *FindingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FindingService{store: store, catalog: catalog, logger: logger}
}

// ListFindings returns the findings of the given accounts in the latest
// completed scan, each with the caller's allowed actions. An empty
// requirementID lists every requirement.
func (s *FindingService) ListFindings(ctx context.Context, user *types.User, accountIDs []string, requirementID string) ([]*FindingView, error) {
	if len(accountIDs) == 0 {
		return nil, errors.InvalidRequestf("Must supply accountId")
	}
	if err := authz.RequireCanReadAccount(user, accountIDs...); err != nil {
		return nil, err
	}

	latest, err := s.store.GetLatestCompletedScan(ctx)
	if err != nil {
		if errors.Is(err, statestore.ErrScanNotFound) {
			return []*FindingView{}, nil
		}
		return nil, err
	}

	findings, err := s.store.ListFindings(ctx, statestore.FindingFilter{
		ScanID:        latest.ScanID,
		AccountIDs:    accountIDs,
		RequirementID: requirementID,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*FindingView, 0, len(findings))
	for i := range findings {
		f := &findings[i]
		requirement, ok := s.catalog.Requirement(f.RequirementID)
		if !ok {
			s.logger.Warn("finding references unknown requirement",
				"ncr_id", f.NCRID(),
				"requirement_id", f.RequirementID)
			continue
		}
		current, err := s.store.GetExclusion(ctx, types.ExclusionKey{
			AccountID:     f.AccountID,
			RequirementID: f.RequirementID,
			ResourceID:    f.ResourceID,
		})
		if err != nil {
			return nil, err
		}
		allowed, err := authz.AllowedActions(user, f.AccountID, requirement, current)
		if err != nil {
			return nil, err
		}
		out = append(out, &FindingView{NCRID: f.NCRID(), Resource: f, AllowedActions: allowed})
	}
	return out, nil
}
