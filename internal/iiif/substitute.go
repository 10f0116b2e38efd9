package iiif

// ReplaceID rewrites every "id" or "@id" string equal to oldID to newID,
// walking objects and lists below v. Other strings are left alone, even
// when they contain oldID. It returns the number of replacements.
func ReplaceID(v any, oldID, newID string) int {
	if oldID == "" || oldID == newID {
		return 0
	}
	count := 0
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			if key == "id" || key == "@id" {
				if s, ok := child.(string); ok && s == oldID {
					t[key] = newID
					count++
					continue
				}
			}
			count += ReplaceID(child, oldID, newID)
		}
	case []any:
		for _, child := range t {
			count += ReplaceID(child, oldID, newID)
		}
	}
	return count
}

// ReplaceIDs applies every oldID to newID rewrite in ids in a single walk.
func ReplaceIDs(v any, ids map[string]string) int {
	if len(ids) == 0 {
		return 0
	}
	count := 0
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			if key == "id" || key == "@id" {
				if s, ok := child.(string); ok {
					if newID, ok := ids[s]; ok && newID != s {
						t[key] = newID
						count++
						continue
					}
				}
			}
			count += ReplaceIDs(child, ids)
		}
	case []any:
		for _, child := range t {
			count += ReplaceIDs(child, ids)
		}
	}
	return count
}

// Clone deep-copies decoded JSON. Scalars are shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}
