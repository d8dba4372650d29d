package graph

import (
	"slices"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

func (s *Store) verbTypeID(v HTTPVerb) (int64, bool) {
	for _, vt := range s.verbTypes {
		if vt.Name == v {
			return vt.ID, true
		}
	}
	return 0, false
}

func (s *Store) schemeTypeID(name SchemeName) (int64, bool) {
	for _, st := range s.schemeTypes {
		if st.Name == name {
			return st.ID, true
		}
	}
	return 0, false
}

// AddPermissionToEntity grants or denies p on the target entity.
//
// The Resource, URIAccess and PermissionScheme rows are resolved or created
// and the scheme is attached to the entity as one step. Each add takes one
// reference on every row it touches, so a matching remove restores the
// tables exactly. Re-adding a tuple with the opposite outcome is a
// ConflictError and changes nothing.
func (s *Store) AddPermissionToEntity(p Permission, target EntityRef) (PermissionScheme, error) {
	if err := p.Validate(); err != nil {
		return PermissionScheme{}, err
	}
	verb, _ := ParseHTTPVerb(string(p.Verb))
	uri := normalizeURI(p.URI)

	s.mu.Lock()
	defer s.mu.Unlock()

	perms, err := s.permsOf(target)
	if err != nil {
		return PermissionScheme{}, err
	}
	verbID, _ := s.verbTypeID(verb)
	schemeTypeID, ok := s.schemeTypeID(p.Scheme)
	if !ok {
		return PermissionScheme{}, domain.ErrValidation("unsupported permission scheme %q", p.Scheme)
	}

	// Resolve everything before touching any table.
	resourceID, haveResource := s.resourceByURI[uri]
	var accessID int64
	haveAccess := false
	if haveResource {
		accessID, haveAccess = s.accessByKey[accessKey{resourceID: resourceID, verbTypeID: verbID}]
	}
	var existing *schemeRow
	if haveAccess {
		if id, ok := s.schemeByKey[schemeKey{entity: target, uriAccessID: accessID, schemeTypeID: schemeTypeID}]; ok {
			existing = s.schemes[id]
		}
	}
	if existing != nil && existing.Grant != p.Grant {
		return PermissionScheme{}, domain.ErrConflict("%s already has the opposite outcome for %s %s", target, verb, uri)
	}

	if !haveResource {
		resourceID = s.allocRowID()
		s.resources[resourceID] = &resourceRow{Resource: Resource{ID: resourceID, URI: uri}}
		s.resourceByURI[uri] = resourceID
	}
	s.resources[resourceID].refs++

	if !haveAccess {
		accessID = s.allocRowID()
		s.accesses[accessID] = &accessRow{URIAccess: URIAccess{ID: accessID, ResourceID: resourceID, VerbTypeID: verbID}}
		s.accessByKey[accessKey{resourceID: resourceID, verbTypeID: verbID}] = accessID
	}
	s.accesses[accessID].refs++

	if existing == nil {
		id := s.allocRowID()
		existing = &schemeRow{PermissionScheme: PermissionScheme{
			ID:           id,
			Entity:       target,
			SchemeTypeID: schemeTypeID,
			URIAccessID:  accessID,
			Grant:        p.Grant,
			Deny:         p.Deny,
		}}
		s.schemes[id] = existing
		s.schemeByKey[schemeKey{entity: target, uriAccessID: accessID, schemeTypeID: schemeTypeID}] = id
		*perms = append(*perms, id)
	}
	existing.refs++

	return existing.PermissionScheme, nil
}

// RemovePermissionFromEntity is the inverse of AddPermissionToEntity. It
// drops one reference from each row and deletes rows that reach zero.
func (s *Store) RemovePermissionFromEntity(p Permission, target EntityRef) error {
	if err := p.Validate(); err != nil {
		return err
	}
	verb, _ := ParseHTTPVerb(string(p.Verb))
	uri := normalizeURI(p.URI)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.permsOf(target); err != nil {
		return err
	}
	verbID, _ := s.verbTypeID(verb)
	schemeTypeID, ok := s.schemeTypeID(p.Scheme)
	if !ok {
		return domain.ErrValidation("unsupported permission scheme %q", p.Scheme)
	}

	notFound := domain.ErrNotFound("%s has no %s permission for %s %s", target, outcome(p), verb, uri)
	resourceID, ok := s.resourceByURI[uri]
	if !ok {
		return notFound
	}
	accessID, ok := s.accessByKey[accessKey{resourceID: resourceID, verbTypeID: verbID}]
	if !ok {
		return notFound
	}
	schemeID, ok := s.schemeByKey[schemeKey{entity: target, uriAccessID: accessID, schemeTypeID: schemeTypeID}]
	if !ok {
		return notFound
	}
	row := s.schemes[schemeID]
	if row.Grant != p.Grant {
		return notFound
	}

	s.releaseSchemeLocked(row)
	return nil
}

// releaseSchemeLocked drops one reference held by a single add of row.
func (s *Store) releaseSchemeLocked(row *schemeRow) {
	access := s.accesses[row.URIAccessID]
	resource := s.resources[access.ResourceID]

	row.refs--
	if row.refs == 0 {
		delete(s.schemes, row.ID)
		delete(s.schemeByKey, schemeKey{entity: row.Entity, uriAccessID: row.URIAccessID, schemeTypeID: row.SchemeTypeID})
		if perms, err := s.permsOf(row.Entity); err == nil {
			*perms = slices.DeleteFunc(*perms, func(id int64) bool { return id == row.ID })
		}
	}

	access.refs--
	if access.refs == 0 {
		delete(s.accesses, access.ID)
		delete(s.accessByKey, accessKey{resourceID: access.ResourceID, verbTypeID: access.VerbTypeID})
	}

	resource.refs--
	if resource.refs == 0 {
		delete(s.resources, resource.ID)
		delete(s.resourceByURI, resource.URI)
	}
}

func outcome(p Permission) string {
	if p.Deny {
		return "deny"
	}
	return "grant"
}
