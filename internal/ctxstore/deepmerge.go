package ctxstore

// deepMerge recursively merges src into dst: when both sides map at the same
// key, recurse; otherwise the right side (src) overwrites. Lists and scalars
// are replaced, never concatenated. Returns a new map; dst is not mutated.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if dv, ok := out[k]; ok {
			dm, dOk := dv.(map[string]any)
			sm, sOk := sv.(map[string]any)
			if dOk && sOk {
				out[k] = deepMerge(dm, sm)
				continue
			}
		}
		out[k] = sv
	}
	return out
}

// setDotted builds/overwrites a nested value at the dotted path inside m,
// creating intermediate maps as needed. m is mutated in place.
func setDotted(m map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[path[0]] = child
	}
	setDotted(child, path[1:], value)
}

// getDotted resolves path inside m, returning (value, true) if every segment
// of the path resolves, else (nil, false).
func getDotted(m map[string]any, path []string) (any, bool) {
	cur := any(m)
	for _, seg := range path {
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := cm[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
