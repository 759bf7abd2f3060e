package schema

// IndexInfo is an index as reported by the server.
type IndexInfo struct {
	Name   string `json:"name"`
	Keys   []Key  `json:"keys"`
	Unique bool   `json:"unique,omitempty"`
}

// Satisfies reports whether an existing index covers the declared one: same
// key fields in the same order and direction, and unique if uniqueness is
// required.
func (i IndexInfo) Satisfies(want Index) bool {
	if len(i.Keys) != len(want.Keys) {
		return false
	}
	for n, k := range want.Keys {
		if i.Keys[n] != k {
			return false
		}
	}
	return i.Unique || !want.Unique
}
