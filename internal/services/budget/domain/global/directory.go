package global

import (
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// NewUser is the input of CreateUser.
type NewUser struct {
	ID           string
	DisplayName  string
	Organization string
	Address      string
}

// NewGroup is the input of CreateGroup.
type NewGroup struct {
	ID          string
	DisplayName string
	Members     []string
}

func requireGlobal(actor identity.ServiceUser, state State, intent permission.Intent) error {
	if !permission.Permits(state.Permissions, actor, intent) {
		return apperrors.NotAuthorized(actor.ID, string(intent))
	}
	return nil
}

func requireNewIdentity(dir identity.Directory, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.InvalidInput(apperrors.CodeInvalidInput, "id is required")
	}
	if dir.Exists(id) {
		return "", apperrors.WithMetadata(apperrors.CodeAlreadyExists, fmt.Sprintf("identity %q already exists", id), map[string]string{"Identity": id})
	}
	return id, nil
}

func accept(env command.Env, actor identity.ServiceUser, dir identity.Directory, typ event.Type, payload any) (command.Result[identity.Directory], error) {
	evt, err := env.Event(typ, actor.ID, payload)
	if err != nil {
		return command.Result[identity.Directory]{}, apperrors.Unexpected("build "+string(typ), err)
	}
	next, err := identity.FoldDirectory(cloneDirectory(dir), evt)
	if err != nil {
		return command.Result[identity.Directory]{}, apperrors.Unexpected("fold "+string(typ), err)
	}
	return command.Accept(next, evt), nil
}

// CreateUser registers a user in the directory.
func CreateUser(env command.Env, actor identity.ServiceUser, state State, dir identity.Directory, input NewUser) (command.Result[identity.Directory], error) {
	if err := requireGlobal(actor, state, permission.GlobalCreateUser); err != nil {
		return command.Result[identity.Directory]{}, err
	}
	userID, err := requireNewIdentity(dir, input.ID)
	if err != nil {
		return command.Result[identity.Directory]{}, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return command.Result[identity.Directory]{}, apperrors.InvalidInput(apperrors.CodeDisplayNameEmpty, "display name is required")
	}
	organization := strings.TrimSpace(input.Organization)
	if organization == "" {
		return command.Result[identity.Directory]{}, apperrors.InvalidInput(apperrors.CodeOrganizationEmpty, "organization is required")
	}
	return accept(env, actor, dir, event.TypeUserCreated, identity.UserCreatedPayload{
		UserID:       userID,
		DisplayName:  displayName,
		Organization: organization,
		Address:      strings.TrimSpace(input.Address),
	})
}

// CreateGroup registers a group whose initial members must be known users.
func CreateGroup(env command.Env, actor identity.ServiceUser, state State, dir identity.Directory, input NewGroup) (command.Result[identity.Directory], error) {
	if err := requireGlobal(actor, state, permission.GlobalCreateGroup); err != nil {
		return command.Result[identity.Directory]{}, err
	}
	groupID, err := requireNewIdentity(dir, input.ID)
	if err != nil {
		return command.Result[identity.Directory]{}, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return command.Result[identity.Directory]{}, apperrors.InvalidInput(apperrors.CodeDisplayNameEmpty, "display name is required")
	}
	for _, member := range input.Members {
		if _, ok := dir.Users[member]; !ok {
			return command.Result[identity.Directory]{}, apperrors.NotFound("user", member)
		}
	}
	return accept(env, actor, dir, event.TypeGroupCreated, identity.GroupCreatedPayload{
		GroupID:     groupID,
		DisplayName: displayName,
		Members:     slices.Clone(input.Members),
	})
}

// AddGroupMember adds a known user to a known group. Adding a current
// member is accepted without events.
func AddGroupMember(env command.Env, actor identity.ServiceUser, state State, dir identity.Directory, groupID, userID string) (command.Result[identity.Directory], error) {
	return changeMember(env, actor, state, dir, groupID, userID, true)
}

// RemoveGroupMember removes a user from a known group. Removing a
// non-member is accepted without events.
func RemoveGroupMember(env command.Env, actor identity.ServiceUser, state State, dir identity.Directory, groupID, userID string) (command.Result[identity.Directory], error) {
	return changeMember(env, actor, state, dir, groupID, userID, false)
}

func changeMember(env command.Env, actor identity.ServiceUser, state State, dir identity.Directory, groupID, userID string, add bool) (command.Result[identity.Directory], error) {
	if err := requireGlobal(actor, state, permission.GlobalManageGroups); err != nil {
		return command.Result[identity.Directory]{}, err
	}
	group, ok := dir.Groups[groupID]
	if !ok {
		return command.Result[identity.Directory]{}, apperrors.NotFound("group", groupID)
	}
	if _, ok := dir.Users[userID]; !ok {
		return command.Result[identity.Directory]{}, apperrors.NotFound("user", userID)
	}
	if slices.Contains(group.Members, userID) == add {
		return command.Accept(dir), nil
	}
	typ := event.TypeGroupMemberAdded
	if !add {
		typ = event.TypeGroupMemberRemoved
	}
	return accept(env, actor, dir, typ, identity.GroupMemberPayload{GroupID: groupID, UserID: userID})
}

func cloneDirectory(dir identity.Directory) identity.Directory {
	out := identity.NewDirectory()
	for id, u := range dir.Users {
		out.Users[id] = u
	}
	for id, g := range dir.Groups {
		out.Groups[id] = g
	}
	return out
}
