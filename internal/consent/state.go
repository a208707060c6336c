package consent

import "maps"

// State holds allow flags per group. A group that is absent is allowed.
type State map[string]bool

func (s State) Allowed(group string) bool {
	allowed, ok := s[group]
	return !ok || allowed
}

func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}
