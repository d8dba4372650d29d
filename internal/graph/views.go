package graph

import "slices"

// Counts summarizes the size of the normalized permission tables.
type Counts struct {
	Resources         int
	URIAccesses       int
	PermissionSchemes int
	Attachments       int // scheme IDs attached across all entity collections
}

// Counts returns the current table sizes.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{
		Resources:         len(s.resources),
		URIAccesses:       len(s.accesses),
		PermissionSchemes: len(s.schemes),
	}
	for _, u := range s.users {
		c.Attachments += len(u.perms)
	}
	for _, g := range s.groups {
		c.Attachments += len(g.perms)
	}
	for _, r := range s.roles {
		c.Attachments += len(r.perms)
	}
	return c
}

// Resources returns a copy of the resource table ordered by ID.
func (s *Store) Resources() []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Resource, 0, len(s.resources))
	for _, id := range sortedKeys(s.resources) {
		out = append(out, s.resources[id].Resource)
	}
	return out
}

// URIAccesses returns a copy of the URI access table ordered by ID.
func (s *Store) URIAccesses() []URIAccess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]URIAccess, 0, len(s.accesses))
	for _, id := range sortedKeys(s.accesses) {
		out = append(out, s.accesses[id].URIAccess)
	}
	return out
}

// PermissionSchemes returns a copy of the permission scheme table ordered by ID.
func (s *Store) PermissionSchemes() []PermissionScheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PermissionScheme, 0, len(s.schemes))
	for _, id := range sortedKeys(s.schemes) {
		out = append(out, s.schemes[id].PermissionScheme)
	}
	return out
}

// VerbTypes returns the verb reference table.
func (s *Store) VerbTypes() []VerbType {
	return slices.Clone(s.verbTypes)
}

// SchemeTypes returns the scheme reference table.
func (s *Store) SchemeTypes() []SchemeType {
	return slices.Clone(s.schemeTypes)
}
