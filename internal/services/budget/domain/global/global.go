// Package global folds the organization-wide permission map and decides the
// commands it gates: permission grants and the user and group directory.
package global

import (
	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// State is the folded global stream.
type State struct {
	Permissions permission.Permissions
}

// PermissionPayload is the payload of global_permission_granted and
// global_permission_revoked.
type PermissionPayload struct {
	Intent   permission.Intent `json:"intent"`
	Identity string            `json:"identity"`
}

// Fold applies one global-stream event.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case event.TypeGlobalPermissionGranted:
		var payload PermissionPayload
		if err := evt.Decode(&payload); err != nil {
			return state, err
		}
		state.Permissions, _ = state.Permissions.Grant(payload.Intent, payload.Identity)
	case event.TypeGlobalPermissionRevoked:
		var payload PermissionPayload
		if err := evt.Decode(&payload); err != nil {
			return state, err
		}
		state.Permissions, _ = state.Permissions.Revoke(payload.Intent, payload.Identity)
	}
	return state, nil
}

// FromEvents folds the global stream in order.
func FromEvents(events []event.Event) (State, error) {
	state := State{Permissions: permission.Permissions{}}
	for _, evt := range events {
		var err error
		if state, err = Fold(state, evt); err != nil {
			return State{}, apperrors.Unexpected("fold global stream", err)
		}
	}
	return state, nil
}

// ListPermissions returns the global permission map.
func ListPermissions(actor identity.ServiceUser, state State) (permission.Permissions, error) {
	if !permission.Permits(state.Permissions, actor, permission.GlobalListPermissions) {
		return nil, apperrors.NotAuthorized(actor.ID, string(permission.GlobalListPermissions))
	}
	return state.Permissions.Clone(), nil
}

// Grant adds identity to a global intent. Granting an intent the identity
// already holds is accepted without events.
func Grant(env command.Env, actor identity.ServiceUser, state State, intent permission.Intent, grantee string) (command.Result[State], error) {
	return changePermission(env, actor, state, intent, grantee, true)
}

// Revoke removes identity from a global intent. Revoking an intent the
// identity does not hold is accepted without events.
func Revoke(env command.Env, actor identity.ServiceUser, state State, intent permission.Intent, revokee string) (command.Result[State], error) {
	return changePermission(env, actor, state, intent, revokee, false)
}

func changePermission(env command.Env, actor identity.ServiceUser, state State, intent permission.Intent, target string, grant bool) (command.Result[State], error) {
	change, changed, err := permission.Decide(state.Permissions, actor, permission.ScopeGlobal, permission.Change{
		Intent:   intent,
		Identity: target,
		Grant:    grant,
	})
	if err != nil {
		return command.Result[State]{}, err
	}
	if !changed {
		return command.Accept(state), nil
	}
	typ := event.TypeGlobalPermissionGranted
	if !grant {
		typ = event.TypeGlobalPermissionRevoked
	}
	evt, err := env.Event(typ, actor.ID, PermissionPayload{Intent: change.Intent, Identity: change.Identity})
	if err != nil {
		return command.Result[State]{}, apperrors.Unexpected("build global permission event", err)
	}
	next, err := Fold(state, evt)
	if err != nil {
		return command.Result[State]{}, apperrors.Unexpected("fold global permission event", err)
	}
	return command.Accept(next, evt), nil
}
