package engine

// copyContext deep-copies a run context so step input snapshots stay
// stable as the walk keeps mutating the live context.
func copyContext(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyContext(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// mergeContext merges an executor's context patch into the run context.
// Nested maps merge key-by-key so a patch like {lead: {stage: X}} keeps
// the lead's other fields; everything else replaces.
func mergeContext(dst, patch map[string]interface{}) {
	for k, v := range patch {
		if patchMap, ok := v.(map[string]interface{}); ok {
			if dstMap, ok := dst[k].(map[string]interface{}); ok {
				mergeContext(dstMap, patchMap)
				continue
			}
		}
		dst[k] = copyValue(v)
	}
}
