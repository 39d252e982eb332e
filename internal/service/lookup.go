package service

import (
	"context"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

type lookupStore interface {
	GetFinding(ctx context.Context, key types.FindingKey) (*types.Finding, error)
	GetLatestCompletedScan(ctx context.Context) (*types.Scan, error)
}

type requirementCatalog interface {
	Requirement(id string) (*types.Requirement, bool)
}

// Lookup answers the exclusion validators' existence checks from the state store and catalog
type Lookup struct {
	store   lookupStore
	catalog requirementCatalog
}

// NewLookup creates a Lookup
func NewLookup(store lookupStore, catalog requirementCatalog) *Lookup {
	return &Lookup{store: store, catalog: catalog}
}

// LatestCompletedScanID returns the id of the newest completed scan
func (l *Lookup) LatestCompletedScanID(ctx context.Context) (string, error) {
	scan, err := l.store.GetLatestCompletedScan(ctx)
	if err != nil {
		if errors.Is(err, statestore.ErrScanNotFound) {
			return "", errors.NotFoundf("no completed scan")
		}
		return "", err
	}
	return scan.ScanID, nil
}

// FindingExists reports whether the finding is stored
func (l *Lookup) FindingExists(ctx context.Context, key types.FindingKey) (bool, error) {
	f, err := l.store.GetFinding(ctx, key)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

// RequirementExists reports whether the catalog defines the requirement
func (l *Lookup) RequirementExists(_ context.Context, requirementID string) (bool, error) {
	_, ok := l.catalog.Requirement(requirementID)
	return ok, nil
}
