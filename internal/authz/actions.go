package authz

import (
	"github.com/daimoniac/scorecard/internal/exclusion"
	"github.com/daimoniac/scorecard/internal/types"
)

// States a user transition must reach for each exclusion action.
var (
	RequestExclusionStates       = []exclusion.State{exclusion.Initial}
	RequestExclusionChangeStates = []exclusion.State{exclusion.ApprovedPendingChanges}
)

// AllowedActions computes what user may do with the finding identified by
// accountID and requirement, given its current exclusion (nil if none).
func AllowedActions(user *types.User, accountID string, requirement *types.Requirement, current *types.Exclusion) (types.AllowedActions, error) {
	var actions types.AllowedActions

	state, err := exclusion.StateOf(current)
	if err != nil {
		return actions, err
	}
	targets := exclusion.UserTransitions.Targets(state)

	if ok, _ := CanRequestExclusion(user, accountID); ok {
		actions.RequestExclusion = intersects(targets, RequestExclusionStates)
		actions.RequestExclusionChange = intersects(targets, RequestExclusionChangeStates)
	}

	if Remediable(requirement) {
		actions.Remediate, _ = CanRemediate(user, accountID)
	}
	return actions, nil
}

// Remediable reports whether requirement declares a remediation.
func Remediable(requirement *types.Requirement) bool {
	return requirement != nil && requirement.Remediation != nil
}

func intersects(a, b []exclusion.State) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
