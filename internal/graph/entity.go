// Package graph holds the in-memory access-control graph: users, groups,
// roles, and the normalized permission tables that hang off them.
//
// Entities live in per-kind arenas keyed by integer ID and hierarchy edges
// are stored as ID lists, so cycle detection is a reachability search over
// integers rather than a walk over object pointers. A Store admits a single
// writer at a time; the cycle check and the edge append of AddGroup run
// under the same lock.
package graph

import (
	"fmt"
)

// EntityKind names the variant of an Entity.
type EntityKind string

// Entity kinds.
const (
	KindUser  EntityKind = "user"
	KindGroup EntityKind = "group"
	KindRole  EntityKind = "role"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindRole:
		return true
	}
	return false
}

// EntityRef identifies an entity by kind and ID. IDs are unique within a kind.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
}

// UserRef returns a reference to the user with the given ID.
func UserRef(id int64) EntityRef { return EntityRef{Kind: KindUser, ID: id} }

// GroupRef returns a reference to the group with the given ID.
func GroupRef(id int64) EntityRef { return EntityRef{Kind: KindGroup, ID: id} }

// RoleRef returns a reference to the role with the given ID.
func RoleRef(id int64) EntityRef { return EntityRef{Kind: KindRole, ID: id} }

func (r EntityRef) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

// User is a snapshot of a user entity.
type User struct {
	ID     int64
	Name   string
	Groups []int64 // groups the user is a direct member of
	Roles  []int64
}

// Group is a snapshot of a group entity. Groups lists child groups in the
// order the edges were added.
type Group struct {
	ID     int64
	Name   string
	Groups []int64
	Users  []int64
	Roles  []int64
}

// Role is a snapshot of a role entity.
type Role struct {
	ID   int64
	Name string
}
