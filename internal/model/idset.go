package model

import (
	"encoding/json"
	"sort"
)

// IDSet is a set of identifiers. The zero value is an empty set ready to use
// for reads; Add allocates on first use.
type IDSet map[string]struct{}

// NewIDSet builds a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was newly added.
func (s *IDSet) Add(id string) bool {
	if *s == nil {
		*s = make(IDSet)
	}
	if _, ok := (*s)[id]; ok {
		return false
	}
	(*s)[id] = struct{}{}
	return true
}

// Contains reports whether id is a member.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Remove deletes id and reports whether it was present.
func (s IDSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Len returns the number of members.
func (s IDSet) Len() int {
	return len(s)
}

// Slice returns the members in ascending order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as {"id": true, ...} to match the flag-map
// shape clients already consume.
func (s IDSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]bool, len(s))
	for id := range s {
		m[id] = true
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flag-map shape; false flags are not members.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = make(IDSet, len(m))
	for id, ok := range m {
		if ok {
			(*s)[id] = struct{}{}
		}
	}
	return nil
}
