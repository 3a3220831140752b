package transport

import "strings"

// ProtectedSet decides which paths carry a credential whose rejection means the
// session is over. Public endpoints and payment callbacks can answer 401 without
// that implication.
type ProtectedSet struct {
	prefixes []string
}

// NewProtectedSet builds a set from path prefixes. Blank entries are ignored.
func NewProtectedSet(prefixes ...string) *ProtectedSet {
	ps := &ProtectedSet{}
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ps.prefixes = append(ps.prefixes, p)
	}
	return ps
}

// Matches reports whether path falls under a protected prefix.
// Query strings and fragments are ignored.
func (ps *ProtectedSet) Matches(path string) bool {
	if ps == nil {
		return false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, prefix := range ps.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the configured prefixes.
func (ps *ProtectedSet) Prefixes() []string {
	if ps == nil {
		return nil
	}
	return append([]string(nil), ps.prefixes...)
}
