package graph

import (
	"cmp"
	"slices"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// EntityPermissions returns the permissions attached directly to target.
func (s *Store) EntityPermissions(target EntityRef) ([]EffectivePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms, err := s.permsOf(target)
	if err != nil {
		return nil, err
	}
	out := make([]EffectivePermission, 0, len(*perms))
	for _, id := range *perms {
		out = append(out, s.describeLocked(s.schemes[id]))
	}
	sortPermissions(out)
	return out, nil
}

// EffectivePermissions resolves everything that applies to a user: its own
// schemes, those of every group it belongs to directly or through a parent
// group, and those of roles assigned to the user or any of those groups.
// When both a grant and a deny apply to the same URI, verb and scheme, only
// the deny is returned.
func (s *Store) EffectivePermissions(userID int64) ([]EffectivePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound("user %d not found", userID)
	}

	sources := []EntityRef{UserRef(userID)}
	roleSeen := make(map[int64]struct{})
	addRoles := func(ids []int64) {
		for _, id := range ids {
			if _, seen := roleSeen[id]; seen {
				continue
			}
			roleSeen[id] = struct{}{}
			sources = append(sources, RoleRef(id))
		}
	}
	addRoles(u.roles)
	for _, gid := range s.ancestorsLocked(u.groups) {
		sources = append(sources, GroupRef(gid))
		if g, ok := s.groups[gid]; ok {
			addRoles(g.roles)
		}
	}

	type key struct {
		uri    string
		verb   HTTPVerb
		scheme SchemeName
	}
	resolved := make(map[key]EffectivePermission)
	for _, src := range sources {
		perms, err := s.permsOf(src)
		if err != nil {
			continue
		}
		for _, id := range *perms {
			ep := s.describeLocked(s.schemes[id])
			k := key{uri: ep.URI, verb: ep.Verb, scheme: ep.Scheme}
			if prev, ok := resolved[k]; ok && prev.Deny {
				continue
			}
			resolved[k] = ep
		}
	}

	out := make([]EffectivePermission, 0, len(resolved))
	for _, ep := range resolved {
		out = append(out, ep)
	}
	sortPermissions(out)
	return out, nil
}

// CheckAccess reports whether the user is granted verb on uri under the
// given scheme and not denied it by any applicable source.
func (s *Store) CheckAccess(userID int64, uri string, verb HTTPVerb, scheme SchemeName) (bool, error) {
	v, err := ParseHTTPVerb(string(verb))
	if err != nil {
		return false, err
	}
	perms, err := s.EffectivePermissions(userID)
	if err != nil {
		return false, err
	}
	uri = normalizeURI(uri)
	for _, p := range perms {
		if p.URI == uri && p.Verb == v && p.Scheme == scheme {
			return p.Grant && !p.Deny, nil
		}
	}
	return false, nil
}

func (s *Store) describeLocked(row *schemeRow) EffectivePermission {
	access := s.accesses[row.URIAccessID]
	resource := s.resources[access.ResourceID]
	ep := EffectivePermission{
		URI:    resource.URI,
		Grant:  row.Grant,
		Deny:   row.Deny,
		Source: row.Entity,
	}
	for _, vt := range s.verbTypes {
		if vt.ID == access.VerbTypeID {
			ep.Verb = vt.Name
		}
	}
	for _, st := range s.schemeTypes {
		if st.ID == row.SchemeTypeID {
			ep.Scheme = st.Name
		}
	}
	return ep
}

func sortPermissions(perms []EffectivePermission) {
	slices.SortFunc(perms, func(a, b EffectivePermission) int {
		return cmp.Or(
			cmp.Compare(a.URI, b.URI),
			cmp.Compare(a.Verb, b.Verb),
			cmp.Compare(a.Scheme, b.Scheme),
		)
	})
}
