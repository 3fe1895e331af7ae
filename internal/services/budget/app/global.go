package app

import (
	"context"
	"sort"
	"strings"

	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/global"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// ListGlobalPermissions returns the global permission map.
func (s *Service) ListGlobalPermissions(ctx context.Context, actor identity.ServiceUser) (permission.Permissions, error) {
	return query(ctx, s, "global.listPermissions", actor, func(ctx context.Context) (permission.Permissions, error) {
		state, err := repository{s}.GlobalState(ctx)
		if err != nil {
			return nil, err
		}
		return global.ListPermissions(actor, state)
	})
}

// GrantGlobalPermission grants a global intent to identity.
func (s *Service) GrantGlobalPermission(ctx context.Context, actor identity.ServiceUser, intent permission.Intent, target string) (permission.Permissions, error) {
	return s.changeGlobalPermission(ctx, "global.grantPermission", actor, intent, target, global.Grant)
}

// RevokeGlobalPermission revokes a global intent from identity.
func (s *Service) RevokeGlobalPermission(ctx context.Context, actor identity.ServiceUser, intent permission.Intent, target string) (permission.Permissions, error) {
	return s.changeGlobalPermission(ctx, "global.revokePermission", actor, intent, target, global.Revoke)
}

type globalChange func(command.Env, identity.ServiceUser, global.State, permission.Intent, string) (command.Result[global.State], error)

func (s *Service) changeGlobalPermission(ctx context.Context, name string, actor identity.ServiceUser, intent permission.Intent, target string, change globalChange) (permission.Permissions, error) {
	state, err := execute(ctx, s, name, actor, func(ctx context.Context, env command.Env) (command.Result[global.State], error) {
		state, err := repository{s}.GlobalState(ctx)
		if err != nil {
			return command.Result[global.State]{}, err
		}
		return change(env, actor, state, intent, target)
	})
	if err != nil {
		return nil, err
	}
	return state.Permissions.Clone(), nil
}

type directoryChange func(env command.Env, state global.State, dir identity.Directory) (command.Result[identity.Directory], error)

func (s *Service) changeDirectory(ctx context.Context, name string, actor identity.ServiceUser, change directoryChange) (identity.Directory, error) {
	return execute(ctx, s, name, actor, func(ctx context.Context, env command.Env) (command.Result[identity.Directory], error) {
		repo := repository{s}
		state, err := repo.GlobalState(ctx)
		if err != nil {
			return command.Result[identity.Directory]{}, err
		}
		dir, err := repo.Directory(ctx)
		if err != nil {
			return command.Result[identity.Directory]{}, err
		}
		return change(env, state, dir)
	})
}

// CreateUser adds a user to the directory.
func (s *Service) CreateUser(ctx context.Context, actor identity.ServiceUser, input global.NewUser) (identity.User, error) {
	dir, err := s.changeDirectory(ctx, "global.createUser", actor, func(env command.Env, state global.State, dir identity.Directory) (command.Result[identity.Directory], error) {
		return global.CreateUser(env, actor, state, dir, input)
	})
	if err != nil {
		return identity.User{}, err
	}
	return dir.Users[strings.TrimSpace(input.ID)], nil
}

// CreateGroup adds a group to the directory.
func (s *Service) CreateGroup(ctx context.Context, actor identity.ServiceUser, input global.NewGroup) (identity.Group, error) {
	dir, err := s.changeDirectory(ctx, "global.createGroup", actor, func(env command.Env, state global.State, dir identity.Directory) (command.Result[identity.Directory], error) {
		return global.CreateGroup(env, actor, state, dir, input)
	})
	if err != nil {
		return identity.Group{}, err
	}
	return dir.Groups[strings.TrimSpace(input.ID)], nil
}

// AddGroupMember adds userID to groupID.
func (s *Service) AddGroupMember(ctx context.Context, actor identity.ServiceUser, groupID, userID string) (identity.Group, error) {
	dir, err := s.changeDirectory(ctx, "group.addUser", actor, func(env command.Env, state global.State, dir identity.Directory) (command.Result[identity.Directory], error) {
		return global.AddGroupMember(env, actor, state, dir, groupID, userID)
	})
	if err != nil {
		return identity.Group{}, err
	}
	return dir.Groups[groupID], nil
}

// RemoveGroupMember removes userID from groupID.
func (s *Service) RemoveGroupMember(ctx context.Context, actor identity.ServiceUser, groupID, userID string) (identity.Group, error) {
	dir, err := s.changeDirectory(ctx, "group.removeUser", actor, func(env command.Env, state global.State, dir identity.Directory) (command.Result[identity.Directory], error) {
		return global.RemoveGroupMember(env, actor, state, dir, groupID, userID)
	})
	if err != nil {
		return identity.Group{}, err
	}
	return dir.Groups[groupID], nil
}

// ListUsers returns the directory users ordered by id.
func (s *Service) ListUsers(ctx context.Context, actor identity.ServiceUser) ([]identity.User, error) {
	return query(ctx, s, "user.list", actor, func(ctx context.Context) ([]identity.User, error) {
		dir, err := repository{s}.Directory(ctx)
		if err != nil {
			return nil, err
		}
		users := make([]identity.User, 0, len(dir.Users))
		for _, u := range dir.Users {
			users = append(users, u)
		}
		sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
		return users, nil
	})
}

// ListGroups returns the directory groups ordered by id.
func (s *Service) ListGroups(ctx context.Context, actor identity.ServiceUser) ([]identity.Group, error) {
	return query(ctx, s, "group.list", actor, func(ctx context.Context) ([]identity.Group, error) {
		dir, err := repository{s}.Directory(ctx)
		if err != nil {
			return nil, err
		}
		groups := make([]identity.Group, 0, len(dir.Groups))
		for _, g := range dir.Groups {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
		return groups, nil
	})
}
