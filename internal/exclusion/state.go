// Package exclusion implements the exclusion lifecycle: derived states,
// per-role transition tables, field validators and the update operation.
package exclusion

import (
	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

// State is a lifecycle state. Start and ApprovedPendingChanges are never
// stored; they are derived from the record.
type State string

const (
	Start                  State = "start"
	Initial                State = types.StatusInitial
	Approved               State = types.StatusApproved
	ApprovedPendingChanges State = "approvedPendingChanges"
	Rejected               State = types.StatusRejected
	Archived               State = types.StatusArchived
)

// DeriveState computes the state of a wire-form record.
func DeriveState(record map[string]any) (State, error) {
	status, hasStatus := record["status"]
	pending := hasPendingChange(record["updateRequested"])

	if pending && status != types.StatusApproved {
		return "", errors.InvalidRequestf("Invalid state, cannot have updateRequested if status is not approved")
	}
	if !hasStatus || status == nil {
		return Start, nil
	}

	s, ok := status.(string)
	if !ok {
		return "", errors.InvalidRequestf("Exclusion status invalid: %v", status)
	}
	switch State(s) {
	case Start, Initial, Rejected, Archived:
		return State(s), nil
	case Approved:
		if pending {
			return ApprovedPendingChanges, nil
		}
		return Approved, nil
	default:
		return "", errors.InvalidRequestf("Exclusion status invalid: %s", s)
	}
}

// StateOf derives the state of a typed record. A nil record is in Start.
func StateOf(e *types.Exclusion) (State, error) {
	if e == nil {
		return Start, nil
	}
	return DeriveState(types.ExclusionToMap(e))
}

func hasPendingChange(v any) bool {
	switch u := v.(type) {
	case nil:
		return false
	case map[string]any:
		return len(u) > 0
	case string:
		return u != ""
	case bool:
		return u
	default:
		return true
	}
}
