package service

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/daimoniac/scorecard/internal/authz"
	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/exclusion"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// Page size bounds for ListExclusions
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// AdminPutRequest addresses an existing exclusion by id, or creates one when ExclusionID is empty
type AdminPutRequest struct {
	ExclusionID string         `json:"exclusionId,omitempty"`
	Exclusion   map[string]any `json:"exclusion"`
}

// UserPutRequest addresses the exclusion of one finding by its ncr id
type UserPutRequest struct {
	NCRID     string         `json:"ncrId"`
	Exclusion map[string]any `json:"exclusion"`
}

// ExclusionView is a stored exclusion with its id
type ExclusionView struct {
	*types.Exclusion
	ExclusionID string `json:"exclusionId"`
}

func view(e *types.Exclusion) *ExclusionView {
	if e == nil {
		return nil
	}
	return &ExclusionView{Exclusion: e, ExclusionID: e.ID()}
}

// AdminPutResult reports the written exclusion and the one it replaced, if any
type AdminPutResult struct {
	NewExclusion    *ExclusionView `json:"newExclusion"`
	DeleteExclusion *ExclusionView `json:"deleteExclusion,omitempty"`
}

// FindingView is a finding with its id and what the caller may do with it
type FindingView struct {
	NCRID          string               `json:"ncrId"`
	Resource       *types.Finding       `json:"resource"`
	AllowedActions types.AllowedActions `json:"allowedActions"`
}

// UserPutResult reports the written exclusion and the re-stamped finding
type UserPutResult struct {
	NewExclusion *ExclusionView `json:"newExclusion"`
	NewNCR       *FindingView   `json:"newNcr"`
}

// ExclusionPage is one page of ListExclusions
type ExclusionPage struct {
	Exclusions []*ExclusionView `json:"exclusions"`
	NextToken  *string          `json:"nextToken"`
}

// PutAdmin creates or updates an exclusion under the admin transition table.
// Identity changes delete the old record in the same transaction.
func (s *ExclusionService) PutAdmin(ctx context.Context, user *types.User, req AdminPutRequest) (*AdminPutResult, error) {
	if err := authz.RequireAdmin(user); err != nil {
		return nil, err
	}

	var requirementID string
	var current *types.Exclusion
	if req.ExclusionID != "" {
		key, err := types.ParseExclusionID(req.ExclusionID)
		if err != nil {
			return nil, errors.InvalidRequestf("Invalid exclusionId")
		}
		requirementID = key.RequirementID
		if len(req.Exclusion) == 0 {
			return nil, errors.InvalidRequestf("Must supply exclusion to put")
		}
		current, err = s.store.GetExclusion(ctx, key)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, errors.NotFoundf("Exclusion %s not found", req.ExclusionID)
		}
	} else {
		requirementID, _ = req.Exclusion["requirementId"].(string)
		if len(req.Exclusion) == 0 {
			return nil, errors.InvalidRequestf("Must supply exclusion to put")
		}
	}

	prospective := exclusion.Merge(types.ExclusionToMap(current), req.Exclusion)
	targetAccount, _ := prospective["accountId"].(string)
	var replaced *types.Exclusion
	if exclusion.RequiresReplacement(current, req.Exclusion) {
		replaced = current
	}

	requirement, ok := s.catalog.Requirement(requirementID)
	if !ok {
		return nil, errors.NotFoundf("Requirement not found: %s", requirementID)
	}
	cfg, ok := s.catalog.ExclusionType(requirement.ExclusionType)
	if !ok {
		return nil, errors.InvalidRequestf("Cannot find exclusion type: %s", requirement.ExclusionType)
	}

	if err := authz.RequireCanRequestExclusion(user, targetAccount); err != nil {
		return nil, err
	}

	updated, err := s.engine.UpdateExclusion(ctx, current, req.Exclusion, cfg, true)
	if err != nil {
		return nil, err
	}
	updated.LastModifiedByAdmin = user.Email
	updated.Type = requirement.ExclusionType

	var replacedKey *types.ExclusionKey
	if replaced != nil {
		k := replaced.Key()
		replacedKey = &k
	}
	if err := s.store.PutExclusion(ctx, updated, replacedKey); err != nil {
		return nil, err
	}
	observability.GetMetrics().ExclusionWrites.WithLabelValues("admin").Inc()

	result := &AdminPutResult{NewExclusion: view(updated), DeleteExclusion: view(replaced)}
	s.audit(ctx, user.Email, statestore.AuditPutExclusionAdmin, map[string]any{
		"updateRequest":   req.Exclusion,
		"newExclusion":    result.NewExclusion,
		"deleteExclusion": result.DeleteExclusion,
	})
	s.logger.Info("exclusion written",
		"user", user.Email,
		"action", statestore.AuditPutExclusionAdmin,
		"exclusion_id", updated.ID(),
		"status", updated.Status,
		"replaced", replaced != nil)

	return result, nil
}

// PutForUser requests or changes the exclusion of one finding of the latest completed scan
func (s *ExclusionService) PutForUser(ctx context.Context, user *types.User, req UserPutRequest) (*UserPutResult, error) {
	if user == nil {
		return nil, errors.ErrUnauthorized
	}
	key, err := types.ParseNCRID(req.NCRID)
	if err != nil {
		return nil, errors.InvalidRequestf("Invalid ncrId")
	}

	latest, err := s.store.GetLatestCompletedScan(ctx)
	if err != nil && !errors.Is(err, statestore.ErrScanNotFound) {
		return nil, err
	}
	if latest == nil || latest.ScanID != key.ScanID {
		return nil, errors.InvalidRequestf("Can only exclude ncrs from latest scans")
	}
	if len(req.Exclusion) == 0 {
		return nil, errors.InvalidRequestf("Must supply exclusion to put")
	}

	requirement, ok := s.catalog.Requirement(key.RequirementID)
	if !ok {
		return nil, errors.NotFoundf("Requirement not found: %s", key.RequirementID)
	}
	finding, err := s.store.GetFinding(ctx, key)
	if err != nil {
		return nil, err
	}
	if finding == nil {
		return nil, errors.NotFoundf("NCR does not exist: %s", req.NCRID)
	}
	cfg, ok := s.catalog.ExclusionType(requirement.ExclusionType)
	if !ok {
		return nil, errors.InvalidRequestf("Cannot find exclusion type: %s", requirement.ExclusionType)
	}

	current, err := s.store.GetExclusion(ctx, types.ExclusionKey{
		AccountID:     key.AccountID,
		RequirementID: key.RequirementID,
		ResourceID:    key.ResourceID,
	})
	if err != nil {
		return nil, err
	}

	if current.IsWildcard() {
		return nil, errors.Forbiddenf("Wildcard exclusion applied to ncr")
	}
	allowed, err := authz.AllowedActions(user, key.AccountID, requirement, current)
	if err != nil {
		return nil, err
	}
	prospective, err := exclusion.DeriveState(exclusion.Merge(types.ExclusionToMap(current), req.Exclusion))
	if err != nil {
		return nil, err
	}
	if stateIn(prospective, authz.RequestExclusionStates) && !allowed.RequestExclusion {
		return nil, errors.Forbiddenf("Cannot requestExclusion")
	}
	if stateIn(prospective, authz.RequestExclusionChangeStates) && !allowed.RequestExclusionChange {
		return nil, errors.Forbiddenf("Cannot requestExclusionChange")
	}

	updated, err := s.engine.UpdateExclusion(ctx, current, req.Exclusion, cfg, false)
	if err != nil {
		return nil, err
	}
	updated.AccountID = key.AccountID
	updated.ResourceID = key.ResourceID
	updated.RequirementID = key.RequirementID
	updated.Type = requirement.ExclusionType
	updated.LastModifiedByUser = user.Email

	if err := s.store.PutExclusion(ctx, updated, nil); err != nil {
		return nil, err
	}
	observability.GetMetrics().ExclusionWrites.WithLabelValues("user").Inc()

	s.audit(ctx, user.Email, statestore.AuditPutExclusionUser, map[string]any{
		"updateRequest":   req.Exclusion,
		"newExclusion":    view(updated),
		"deleteExclusion": nil,
	})

	newAllowed, err := authz.AllowedActions(user, key.AccountID, requirement, updated)
	if err != nil {
		return nil, err
	}
	stamped := s.matcher.Apply(*finding, updated)
	if err := s.store.PutFinding(ctx, &stamped); err != nil {
		return nil, err
	}

	s.logger.Info("exclusion written",
		"user", user.Email,
		"action", statestore.AuditPutExclusionUser,
		"exclusion_id", updated.ID(),
		"ncr_id", req.NCRID,
		"status", updated.Status)

	return &UserPutResult{
		NewExclusion: view(updated),
		NewNCR: &FindingView{
			NCRID:          req.NCRID,
			Resource:       &stamped,
			AllowedActions: newAllowed,
		},
	}, nil
}

// ListExclusions returns one page of exclusions. An unreadable nextToken starts from the beginning.
func (s *ExclusionService) ListExclusions(ctx context.Context, user *types.User, limit int, nextToken string) (*ExclusionPage, error) {
	if err := authz.RequireAdmin(user); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	after, err := decodeToken(nextToken)
	if err != nil {
		s.logger.Debug("ignoring unreadable nextToken", "error", err)
		after = nil
	}

	items, next, err := s.store.ScanExclusions(ctx, limit, after)
	if err != nil {
		return nil, err
	}

	page := &ExclusionPage{Exclusions: make([]*ExclusionView, 0, len(items))}
	for _, e := range items {
		page.Exclusions = append(page.Exclusions, view(e))
	}
	if next != nil {
		token, err := encodeToken(next)
		if err != nil {
			return nil, err
		}
		page.NextToken = &token
	}
	return page, nil
}

func encodeToken(key *types.ExclusionKey) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeToken(token string) (*types.ExclusionKey, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var key types.ExclusionKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

func stateIn(s exclusion.State, states []exclusion.State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
