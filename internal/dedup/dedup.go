// Package dedup remembers which proposals have already been announced during
// the life of the process.
package dedup

// Set is a grow-only set of proposal identifiers. It is owned by a single
// runner and is not safe for concurrent use.
type Set struct {
	seen map[string]struct{}
}

func New() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// IsNew reports whether id has not been marked seen yet.
func (s *Set) IsNew(id string) bool {
	_, ok := s.seen[id]
	return !ok
}

// MarkSeen records id. Marking an id twice is a no-op.
func (s *Set) MarkSeen(id string) {
	s.seen[id] = struct{}{}
}

// Len returns the number of distinct identifiers seen.
func (s *Set) Len() int {
	return len(s.seen)
}
