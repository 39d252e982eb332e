package exclusion

// Merge returns a deep copy of target with source laid over it. Nested maps
// merge key by key; every other value, nil included, replaces the target's.
func Merge(target, source map[string]any) map[string]any {
	result := deepCopy(target)
	for k, v := range source {
		if existing, ok := result[k].(map[string]any); ok {
			if incoming, ok := v.(map[string]any); ok {
				result[k] = Merge(existing, incoming)
				continue
			}
		}
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = deepCopyValue(t[i])
		}
		return out
	default:
		return v
	}
}
