package workflowitem

import (
	"context"
	"slices"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
)

// ListRepository is the read access ListVisible needs.
type ListRepository interface {
	GetWorkflowitems(ctx context.Context, projectID, subprojectID string) ([]Workflowitem, error)
	GetSubproject(ctx context.Context, projectID, subprojectID string) (subproject.Subproject, error)
	identity.Resolver
}

// traceIntents maps each workflowitem event type to the intent a viewer
// needs on the item to see that entry in its history.
var traceIntents = map[event.Type]permission.Intent{
	event.TypeWorkflowitemCreated:           permission.WorkflowitemView,
	event.TypeWorkflowitemAssigned:          permission.WorkflowitemView,
	event.TypeWorkflowitemUpdated:           permission.WorkflowitemView,
	event.TypeWorkflowitemClosed:            permission.WorkflowitemView,
	event.TypeWorkflowitemPermissionGranted: permission.WorkflowitemListPermissions,
	event.TypeWorkflowitemPermissionRevoked: permission.WorkflowitemListPermissions,
}

// ListVisible returns the subproject's workflowitems the actor may view,
// sorted by the subproject ordering, each with its history reduced to the
// entries the actor may see.
func ListVisible(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, repo ListRepository) ([]Workflowitem, error) {
	items, err := repo.GetWorkflowitems(ctx, projectID, subprojectID)
	if err != nil {
		notFound := apperrors.NotFound("subproject", subprojectID)
		notFound.Cause = err
		return nil, notFound
	}
	s, err := repo.GetSubproject(ctx, projectID, subprojectID)
	if err != nil {
		notFound := apperrors.NotFound("subproject", subprojectID)
		notFound.Cause = err
		return nil, notFound
	}
	resolver := newMemoResolver(repo)
	out := make([]Workflowitem, 0, len(items))
	for _, w := range Sort(items, s.WorkflowitemOrdering) {
		if !permission.Permits(w.Permissions, actor, permission.WorkflowitemView) {
			continue
		}
		log, err := redact(ctx, resolver, actor, w)
		if err != nil {
			return nil, err
		}
		w.Log = log
		out = append(out, w)
	}
	return out, nil
}

// redact keeps the trace entries whose required intent the actor holds
// through an identity the membership lookup confirms.
func redact(ctx context.Context, resolver identity.Resolver, actor identity.ServiceUser, w Workflowitem) ([]event.TraceEvent, error) {
	if actor.IsRoot() {
		return slices.Clone(w.Log), nil
	}
	visible := map[permission.Intent]bool{}
	out := make([]event.TraceEvent, 0, len(w.Log))
	for _, trace := range w.Log {
		intent, ok := traceIntents[trace.BusinessEvent.Type]
		if !ok {
			continue
		}
		allowed, seen := visible[intent]
		if !seen {
			var err error
			allowed, err = permission.PermitsResolved(ctx, resolver, w.Permissions, actor, intent)
			if err != nil {
				return nil, apperrors.Unexpected("resolve trace visibility for "+w.ID, err)
			}
			visible[intent] = allowed
		}
		if allowed {
			out = append(out, trace)
		}
	}
	return out, nil
}

// memoResolver caches membership lookups for the duration of one listing.
type memoResolver struct {
	next    identity.Resolver
	members map[string][]string
}

func newMemoResolver(next identity.Resolver) *memoResolver {
	return &memoResolver{next: next, members: map[string][]string{}}
}

func (m *memoResolver) UsersForIdentity(ctx context.Context, id string) ([]string, error) {
	if members, ok := m.members[id]; ok {
		return members, nil
	}
	members, err := m.next.UsersForIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	m.members[id] = members
	return members, nil
}
