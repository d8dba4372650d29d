package command

import "github.com/JoshuaRamirez/ACS-sub004/internal/graph"

// Command type tags.
const (
	TypeGetUser              = "GetUser"
	TypeGetGroup             = "GetGroup"
	TypeListGroups           = "ListGroups"
	TypeGetEntityPermissions = "GetEntityPermissions"
	TypeCheckAccess          = "CheckAccess"

	TypeCreateUser                 = "CreateUser"
	TypeCreateGroup                = "CreateGroup"
	TypeCreateRole                 = "CreateRole"
	TypeDeleteUser                 = "DeleteUser"
	TypeAddGroupToGroup            = "AddGroupToGroup"
	TypeRemoveGroupFromGroup       = "RemoveGroupFromGroup"
	TypeAddUserToGroup             = "AddUserToGroup"
	TypeAssignRole                 = "AssignRole"
	TypeAddPermissionToEntity      = "AddPermissionToEntity"
	TypeRemovePermissionFromEntity = "RemovePermissionFromEntity"
)

// GetUser reads one user.
type GetUser struct {
	Envelope
	UserID int64 `json:"user_id"`
}

func (GetUser) CommandType() string { return TypeGetUser }

// GetGroup reads one group and its child edges.
type GetGroup struct {
	Envelope
	GroupID int64 `json:"group_id"`
}

func (GetGroup) CommandType() string { return TypeGetGroup }

// ListGroups reads every group.
type ListGroups struct {
	Envelope
}

func (ListGroups) CommandType() string { return TypeListGroups }

// GetEntityPermissions reads the permissions attached directly to an entity.
type GetEntityPermissions struct {
	Envelope
	Entity graph.EntityRef `json:"entity"`
}

func (GetEntityPermissions) CommandType() string { return TypeGetEntityPermissions }

// CheckAccess evaluates a user's effective access to a URI and verb.
type CheckAccess struct {
	Envelope
	UserID int64            `json:"user_id"`
	URI    string           `json:"uri"`
	Verb   graph.HTTPVerb   `json:"verb"`
	Scheme graph.SchemeName `json:"scheme,omitempty"`
}

func (CheckAccess) CommandType() string { return TypeCheckAccess }

// CreateUser adds a user.
type CreateUser struct {
	Envelope
	Name string `json:"name"`
}

func (CreateUser) CommandType() string { return TypeCreateUser }

// CreateGroup adds a group.
type CreateGroup struct {
	Envelope
	Name string `json:"name"`
}

func (CreateGroup) CommandType() string { return TypeCreateGroup }

// CreateRole adds a role.
type CreateRole struct {
	Envelope
	Name string `json:"name"`
}

func (CreateRole) CommandType() string { return TypeCreateRole }

// DeleteUser removes a user and everything attached to it.
type DeleteUser struct {
	Envelope
	UserID int64 `json:"user_id"`
}

func (DeleteUser) CommandType() string { return TypeDeleteUser }

// AddGroupToGroup adds a hierarchy edge parent → child.
type AddGroupToGroup struct {
	Envelope
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

func (AddGroupToGroup) CommandType() string { return TypeAddGroupToGroup }

// RemoveGroupFromGroup removes a hierarchy edge parent → child.
type RemoveGroupFromGroup struct {
	Envelope
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

func (RemoveGroupFromGroup) CommandType() string { return TypeRemoveGroupFromGroup }

// AddUserToGroup makes a user a direct member of a group.
type AddUserToGroup struct {
	Envelope
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
}

func (AddUserToGroup) CommandType() string { return TypeAddUserToGroup }

// AssignRole assigns a role to a user or group.
type AssignRole struct {
	Envelope
	Entity graph.EntityRef `json:"entity"`
	RoleID int64           `json:"role_id"`
}

func (AssignRole) CommandType() string { return TypeAssignRole }

// AddPermissionToEntity grants or denies a permission on an entity.
type AddPermissionToEntity struct {
	Envelope
	Entity     graph.EntityRef  `json:"entity"`
	Permission graph.Permission `json:"permission"`
}

func (AddPermissionToEntity) CommandType() string { return TypeAddPermissionToEntity }

// RemovePermissionFromEntity removes a previously added permission.
type RemovePermissionFromEntity struct {
	Envelope
	Entity     graph.EntityRef  `json:"entity"`
	Permission graph.Permission `json:"permission"`
}

func (RemovePermissionFromEntity) CommandType() string { return TypeRemovePermissionFromEntity }

// Catalog returns a registry holding every built-in command type.
func Catalog() *Registry {
	r := NewRegistry()
	queries := map[string]func() Command{
		TypeGetUser:              func() Command { return &GetUser{} },
		TypeGetGroup:             func() Command { return &GetGroup{} },
		TypeListGroups:           func() Command { return &ListGroups{} },
		TypeGetEntityPermissions: func() Command { return &GetEntityPermissions{} },
		TypeCheckAccess:          func() Command { return &CheckAccess{} },
	}
	mutations := map[string]func() Command{
		TypeCreateUser:                 func() Command { return &CreateUser{} },
		TypeCreateGroup:                func() Command { return &CreateGroup{} },
		TypeCreateRole:                 func() Command { return &CreateRole{} },
		TypeDeleteUser:                 func() Command { return &DeleteUser{} },
		TypeAddGroupToGroup:            func() Command { return &AddGroupToGroup{} },
		TypeRemoveGroupFromGroup:       func() Command { return &RemoveGroupFromGroup{} },
		TypeAddUserToGroup:             func() Command { return &AddUserToGroup{} },
		TypeAssignRole:                 func() Command { return &AssignRole{} },
		TypeAddPermissionToEntity:      func() Command { return &AddPermissionToEntity{} },
		TypeRemovePermissionFromEntity: func() Command { return &RemovePermissionFromEntity{} },
	}
	for t, f := range queries {
		r.MustRegister(t, KindQuery, f)
	}
	for t, f := range mutations {
		r.MustRegister(t, KindMutation, f)
	}
	return r
}
