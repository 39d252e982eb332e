package types

import (
	"encoding/json"
	"fmt"
)

// ExclusionToMap renders e in its wire form. A nil exclusion yields an empty map.
func ExclusionToMap(e *Exclusion) map[string]any {
	out := map[string]any{}
	if e == nil {
		return out
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// ExclusionFromMap decodes a wire-form record. Keys with a null value are
// treated as absent.
func ExclusionFromMap(m map[string]any) (*Exclusion, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			clean[k] = v
		}
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode exclusion: %w", err)
	}
	var e Exclusion
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode exclusion: %w", err)
	}
	if e.UpdateRequested.IsEmpty() {
		e.UpdateRequested = nil
	}
	return &e, nil
}
