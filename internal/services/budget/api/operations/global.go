package operations

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/global"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

func init() {
	register(
		Operation{Name: "global.listPermissions", Method: Read, Handle: handle(listGlobalPermissions)},
		Operation{Name: "global.grantPermission", Method: Write, Handle: handle(grantGlobalPermission)},
		Operation{Name: "global.revokePermission", Method: Write, Handle: handle(revokeGlobalPermission)},
		Operation{Name: "global.createUser", Method: Write, Handle: handle(createUser)},
		Operation{Name: "global.createGroup", Method: Write, Handle: handle(createGroup)},
		Operation{Name: "group.addUser", Method: Write, Handle: handle(addGroupMember)},
		Operation{Name: "group.removeUser", Method: Write, Handle: handle(removeGroupMember)},
		Operation{Name: "user.list", Method: Read, Handle: handle(listUsers)},
		Operation{Name: "group.list", Method: Read, Handle: handle(listGroups)},
	)
}

func listGlobalPermissions(ctx context.Context, svc *app.Service, actor identity.ServiceUser, _ noInput) (any, error) {
	perms, err := svc.ListGlobalPermissions(ctx, actor)
	if err != nil {
		return nil, err
	}
	return permissionsView(perms), nil
}

func grantGlobalPermission(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in permissionRequest) (any, error) {
	if _, err := svc.GrantGlobalPermission(ctx, actor, permission.Intent(in.Intent), in.Identity); err != nil {
		return nil, err
	}
	return "OK", nil
}

func revokeGlobalPermission(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in permissionRequest) (any, error) {
	if _, err := svc.RevokeGlobalPermission(ctx, actor, permission.Intent(in.Intent), in.Identity); err != nil {
		return nil, err
	}
	return "OK", nil
}

func createUser(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in createUserRequest) (any, error) {
	organization := in.Organization
	if organization == "" {
		organization = svc.Organization()
	}
	user, err := svc.CreateUser(ctx, actor, global.NewUser{
		ID:           in.ID,
		DisplayName:  in.DisplayName,
		Organization: organization,
		Address:      in.Address,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": newUserView(user)}, nil
}

func createGroup(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in createGroupRequest) (any, error) {
	group, err := svc.CreateGroup(ctx, actor, global.NewGroup{ID: in.ID, DisplayName: in.DisplayName, Members: in.Members})
	if err != nil {
		return nil, err
	}
	return map[string]any{"group": newGroupView(group)}, nil
}

func addGroupMember(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in groupMemberRequest) (any, error) {
	group, err := svc.AddGroupMember(ctx, actor, in.GroupID, in.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group": newGroupView(group)}, nil
}

func removeGroupMember(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in groupMemberRequest) (any, error) {
	group, err := svc.RemoveGroupMember(ctx, actor, in.GroupID, in.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group": newGroupView(group)}, nil
}

func listUsers(ctx context.Context, svc *app.Service, actor identity.ServiceUser, _ noInput) (any, error) {
	users, err := svc.ListUsers(ctx, actor)
	if err != nil {
		return nil, err
	}
	items := make([]userView, len(users))
	for i, u := range users {
		items[i] = newUserView(u)
	}
	return map[string]any{"items": items}, nil
}

func listGroups(ctx context.Context, svc *app.Service, actor identity.ServiceUser, _ noInput) (any, error) {
	groups, err := svc.ListGroups(ctx, actor)
	if err != nil {
		return nil, err
	}
	items := make([]groupView, len(groups))
	for i, g := range groups {
		items[i] = newGroupView(g)
	}
	return map[string]any{"groups": items}, nil
}
