package exclusion

import (
	"sort"

	"github.com/daimoniac/scorecard/internal/types"
)

var identityFields = []string{"accountId", "requirementId", "resourceId"}

// RequiresReplacement reports whether applying request to current moves the
// exclusion to a different identity, in which case the old record has to be
// deleted in the same transaction that writes the new one.
func RequiresReplacement(current *types.Exclusion, request map[string]any) bool {
	if current == nil {
		return false
	}
	touched := false
	for _, f := range identityFields {
		if _, ok := request[f]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return false
	}
	merged, err := types.ExclusionFromMap(Merge(types.ExclusionToMap(current), request))
	if err != nil {
		return false
	}
	return merged.ID() != current.ID()
}

func sortStrings(s []string) {
	sort.Strings(s)
}
