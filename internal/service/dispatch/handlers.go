package dispatch

import (
	"context"
	"fmt"

	"github.com/JoshuaRamirez/ACS-sub004/internal/command"
	"github.com/JoshuaRamirez/ACS-sub004/internal/graph"
)

// AccessDecision is the result of a CheckAccess command.
type AccessDecision struct {
	UserID  int64            `json:"user_id"`
	URI     string           `json:"uri"`
	Verb    graph.HTTPVerb   `json:"verb"`
	Scheme  graph.SchemeName `json:"scheme"`
	Allowed bool             `json:"allowed"`
}

// handler adapts a typed operation to a HandlerFunc.
func handler[C command.Command](fn func(context.Context, C) (any, error)) HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (any, error) {
		c, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("handler for %s received %T", cmd.CommandType(), cmd)
		}
		return fn(ctx, c)
	}
}

func query[C command.Command](fn func(C) (any, error)) HandlerFunc {
	return handler(func(_ context.Context, c C) (any, error) { return fn(c) })
}

// mutation skips the write once the attempt context is done, so an attempt
// abandoned at its deadline cannot commit after the executor has retried.
func mutation[C command.Command](fn func(C) (any, error)) HandlerFunc {
	return handler(func(ctx context.Context, c C) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(c)
	})
}

func graphHandlers(s *graph.Store) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		command.TypeGetUser: query(func(c command.GetUser) (any, error) {
			return s.User(c.UserID)
		}),
		command.TypeGetGroup: query(func(c command.GetGroup) (any, error) {
			return s.Group(c.GroupID)
		}),
		command.TypeListGroups: query(func(command.ListGroups) (any, error) {
			return s.Groups(), nil
		}),
		command.TypeGetEntityPermissions: query(func(c command.GetEntityPermissions) (any, error) {
			return s.EntityPermissions(c.Entity)
		}),
		command.TypeCheckAccess: query(func(c command.CheckAccess) (any, error) {
			scheme := c.Scheme
			if scheme == "" {
				scheme = graph.SchemeAPIURIAuthorization
			}
			ok, err := s.CheckAccess(c.UserID, c.URI, c.Verb, scheme)
			if err != nil {
				return nil, err
			}
			return AccessDecision{UserID: c.UserID, URI: c.URI, Verb: c.Verb, Scheme: scheme, Allowed: ok}, nil
		}),

		command.TypeCreateUser: mutation(func(c command.CreateUser) (any, error) {
			return s.CreateUser(c.Name)
		}),
		command.TypeCreateGroup: mutation(func(c command.CreateGroup) (any, error) {
			return s.CreateGroup(c.Name)
		}),
		command.TypeCreateRole: mutation(func(c command.CreateRole) (any, error) {
			return s.CreateRole(c.Name)
		}),
		command.TypeDeleteUser: mutation(func(c command.DeleteUser) (any, error) {
			return nil, s.DeleteUser(c.UserID)
		}),
		command.TypeAddGroupToGroup: mutation(func(c command.AddGroupToGroup) (any, error) {
			if err := s.AddGroup(c.ParentID, c.ChildID); err != nil {
				return nil, err
			}
			return s.Group(c.ParentID)
		}),
		command.TypeRemoveGroupFromGroup: mutation(func(c command.RemoveGroupFromGroup) (any, error) {
			if err := s.RemoveGroup(c.ParentID, c.ChildID); err != nil {
				return nil, err
			}
			return s.Group(c.ParentID)
		}),
		command.TypeAddUserToGroup: mutation(func(c command.AddUserToGroup) (any, error) {
			if err := s.AddUserToGroup(c.UserID, c.GroupID); err != nil {
				return nil, err
			}
			return s.User(c.UserID)
		}),
		command.TypeAssignRole: mutation(func(c command.AssignRole) (any, error) {
			return nil, s.AssignRole(c.Entity, c.RoleID)
		}),
		command.TypeAddPermissionToEntity: mutation(func(c command.AddPermissionToEntity) (any, error) {
			return s.AddPermissionToEntity(c.Permission, c.Entity)
		}),
		command.TypeRemovePermissionFromEntity: mutation(func(c command.RemovePermissionFromEntity) (any, error) {
			return nil, s.RemovePermissionFromEntity(c.Permission, c.Entity)
		}),
	}
}
