package tracker

import (
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"
)

// Set is an insertion ordered collection of unique tracker addresses. Adding
// an address that is already present leaves its original position untouched.
type Set struct {
	entries *linkedhashset.Set
}

// NewSet creates a set seeded with addrs in order, skipping duplicates.
func NewSet(addrs ...string) *Set {
	s := &Set{entries: linkedhashset.New()}
	for _, addr := range addrs {
		s.Add(addr)
	}

	return s
}

// Add appends addr if it is not yet present and reports whether it was added.
func (s *Set) Add(addr string) bool {
	if s.entries.Contains(addr) {
		return false
	}
	s.entries.Add(addr)

	return true
}

// Contains reports whether addr is a member of the set.
func (s *Set) Contains(addr string) bool {
	return s.entries.Contains(addr)
}

// Len returns the number of addresses in the set.
func (s *Set) Len() int {
	return s.entries.Size()
}

// Slice returns the addresses in insertion order. The returned slice is a
// copy.
func (s *Set) Slice() []string {
	values := s.entries.Values()
	addrs := make([]string, 0, len(values))
	for _, v := range values {
		addrs = append(addrs, v.(string))
	}

	return addrs
}

// String returns the addresses joined with commas, the form aria2 expects for
// its bt-tracker option.
func (s *Set) String() string {
	return strings.Join(s.Slice(), ",")
}
