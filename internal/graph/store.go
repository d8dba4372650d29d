package graph

import (
	"slices"
	"strings"
	"sync"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

type userNode struct {
	name   string
	groups []int64
	roles  []int64
	perms  []int64
}

type groupNode struct {
	name     string
	children []int64
	users    []int64
	roles    []int64
	perms    []int64
}

type roleNode struct {
	name  string
	perms []int64
}

type accessKey struct {
	resourceID int64
	verbTypeID int64
}

type schemeKey struct {
	entity       EntityRef
	uriAccessID  int64
	schemeTypeID int64
}

type resourceRow struct {
	Resource
	refs int
}

type accessRow struct {
	URIAccess
	refs int
}

type schemeRow struct {
	PermissionScheme
	refs int
}

// Store is one access-control graph. Each Store is independent, so several
// graphs (for example one per tenant) can coexist in a process.
type Store struct {
	mu sync.RWMutex

	users  map[int64]*userNode
	groups map[int64]*groupNode
	roles  map[int64]*roleNode
	nextID map[EntityKind]int64

	verbTypes   []VerbType
	schemeTypes []SchemeType

	resources     map[int64]*resourceRow
	resourceByURI map[string]int64
	accesses      map[int64]*accessRow
	accessByKey   map[accessKey]int64
	schemes       map[int64]*schemeRow
	schemeByKey   map[schemeKey]int64
	nextRowID     int64
}

// NewStore creates an empty graph with the verb and scheme reference tables seeded.
func NewStore() *Store {
	s := &Store{
		users:         make(map[int64]*userNode),
		groups:        make(map[int64]*groupNode),
		roles:         make(map[int64]*roleNode),
		nextID:        make(map[EntityKind]int64),
		resources:     make(map[int64]*resourceRow),
		resourceByURI: make(map[string]int64),
		accesses:      make(map[int64]*accessRow),
		accessByKey:   make(map[accessKey]int64),
		schemes:       make(map[int64]*schemeRow),
		schemeByKey:   make(map[schemeKey]int64),
	}
	for i, v := range verbOrder {
		s.verbTypes = append(s.verbTypes, VerbType{ID: int64(i + 1), Name: v})
	}
	for i, sc := range schemeOrder {
		s.schemeTypes = append(s.schemeTypes, SchemeType{ID: int64(i + 1), Name: sc})
	}
	return s
}

func (s *Store) allocID(kind EntityKind) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Store) allocRowID() int64 {
	s.nextRowID++
	return s.nextRowID
}

func validateName(kind EntityKind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrValidation("%s name is required", kind)
	}
	return name, nil
}

// CreateUser adds a user and returns it with its assigned ID.
func (s *Store) CreateUser(name string) (User, error) {
	name, err := validateName(KindUser, name)
	if err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID(KindUser)
	s.users[id] = &userNode{name: name}
	return User{ID: id, Name: name}, nil
}

// CreateGroup adds a group and returns it with its assigned ID.
func (s *Store) CreateGroup(name string) (Group, error) {
	name, err := validateName(KindGroup, name)
	if err != nil {
		return Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID(KindGroup)
	s.groups[id] = &groupNode{name: name}
	return Group{ID: id, Name: name}, nil
}

// CreateRole adds a role and returns it with its assigned ID.
func (s *Store) CreateRole(name string) (Role, error) {
	name, err := validateName(KindRole, name)
	if err != nil {
		return Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID(KindRole)
	s.roles[id] = &roleNode{name: name}
	return Role{ID: id, Name: name}, nil
}

// User returns a snapshot of the user with the given ID.
func (s *Store) User(id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, domain.ErrNotFound("user %d not found", id)
	}
	return User{ID: id, Name: u.name, Groups: slices.Clone(u.groups), Roles: slices.Clone(u.roles)}, nil
}

// Group returns a snapshot of the group with the given ID.
func (s *Store) Group(id int64) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, domain.ErrNotFound("group %d not found", id)
	}
	return g.snapshot(id), nil
}

// Role returns a snapshot of the role with the given ID.
func (s *Store) Role(id int64) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, domain.ErrNotFound("role %d not found", id)
	}
	return Role{ID: id, Name: r.name}, nil
}

// Groups returns snapshots of all groups ordered by ID.
func (s *Store) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedKeys(s.groups)
	out := make([]Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.groups[id].snapshot(id))
	}
	return out
}

func (g *groupNode) snapshot(id int64) Group {
	return Group{
		ID:     id,
		Name:   g.name,
		Groups: slices.Clone(g.children),
		Users:  slices.Clone(g.users),
		Roles:  slices.Clone(g.roles),
	}
}

// AddUserToGroup makes the user a direct member of the group.
func (s *Store) AddUserToGroup(userID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound("user %d not found", userID)
	}
	g, ok := s.groups[groupID]
	if !ok {
		return domain.ErrNotFound("group %d not found", groupID)
	}
	if slices.Contains(g.users, userID) {
		return domain.ErrConflict("user %d is already a member of group %d", userID, groupID)
	}
	g.users = append(g.users, userID)
	u.groups = append(u.groups, groupID)
	return nil
}

// AssignRole assigns a role to a user or group.
func (s *Store) AssignRole(target EntityRef, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return domain.ErrNotFound("role %d not found", roleID)
	}
	var roles *[]int64
	switch target.Kind {
	case KindUser:
		u, ok := s.users[target.ID]
		if !ok {
			return domain.ErrNotFound("user %d not found", target.ID)
		}
		roles = &u.roles
	case KindGroup:
		g, ok := s.groups[target.ID]
		if !ok {
			return domain.ErrNotFound("group %d not found", target.ID)
		}
		roles = &g.roles
	default:
		return domain.ErrValidation("roles can only be assigned to users or groups, got %s", target.Kind)
	}
	if slices.Contains(*roles, roleID) {
		return domain.ErrConflict("role %d is already assigned to %s", roleID, target)
	}
	*roles = append(*roles, roleID)
	return nil
}

// DeleteUser removes a user, its group memberships, and every permission
// scheme attached to it, releasing the normalized rows those schemes held.
func (s *Store) DeleteUser(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound("user %d not found", id)
	}
	for _, gid := range u.groups {
		if g, ok := s.groups[gid]; ok {
			g.users = slices.DeleteFunc(g.users, func(v int64) bool { return v == id })
		}
	}
	for _, schemeID := range slices.Clone(u.perms) {
		row := s.schemes[schemeID]
		for row != nil && row.refs > 0 {
			s.releaseSchemeLocked(row)
		}
	}
	delete(s.users, id)
	return nil
}

// permsOf returns the permission collection of the referenced entity.
func (s *Store) permsOf(ref EntityRef) (*[]int64, error) {
	switch ref.Kind {
	case KindUser:
		if u, ok := s.users[ref.ID]; ok {
			return &u.perms, nil
		}
	case KindGroup:
		if g, ok := s.groups[ref.ID]; ok {
			return &g.perms, nil
		}
	case KindRole:
		if r, ok := s.roles[ref.ID]; ok {
			return &r.perms, nil
		}
	default:
		return nil, domain.ErrValidation("unknown entity kind %q", ref.Kind)
	}
	return nil, domain.ErrNotFound("%s %d not found", ref.Kind, ref.ID)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
