package app

import (
	"context"
	"fmt"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/global"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/notification"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
	"github.com/openkfw/trubudget/internal/services/budget/domain/workflowitem"
)

// repository serves every domain read accessor from the cache. Each accessor
// refreshes the stream it reads before folding it.
type repository struct {
	s *Service
}

func (r repository) events(ctx context.Context, stream string) ([]event.Event, error) {
	if err := r.s.cache.Refresh(ctx, stream); err != nil {
		return nil, err
	}
	return r.s.cache.Events(stream), nil
}

// Directory folds the users stream.
func (r repository) Directory(ctx context.Context) (identity.Directory, error) {
	events, err := r.events(ctx, event.UsersStream)
	if err != nil {
		return identity.Directory{}, err
	}
	dir := identity.NewDirectory()
	for _, evt := range events {
		if dir, err = identity.FoldDirectory(dir, evt); err != nil {
			return identity.Directory{}, apperrors.Unexpected("fold users stream", err)
		}
	}
	return dir, nil
}

// UsersForIdentity resolves identity through the directory.
func (r repository) UsersForIdentity(ctx context.Context, id string) ([]string, error) {
	dir, err := r.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return dir.UsersForIdentity(ctx, id)
}

// GlobalState folds the global stream.
func (r repository) GlobalState(ctx context.Context) (global.State, error) {
	events, err := r.events(ctx, event.GlobalStream)
	if err != nil {
		return global.State{}, err
	}
	return global.FromEvents(events)
}

func (r repository) GlobalPermissions(ctx context.Context) (permission.Permissions, error) {
	state, err := r.GlobalState(ctx)
	if err != nil {
		return nil, err
	}
	return state.Permissions, nil
}

func (r repository) GetProject(ctx context.Context, projectID string) (project.Project, error) {
	events, err := r.events(ctx, projectID)
	if err != nil {
		return project.Project{}, err
	}
	return project.FromEvents(projectID, events)
}

func (r repository) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	events, err := r.events(ctx, projectID)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// Projects folds every project stream in creation order.
func (r repository) Projects(ctx context.Context) ([]project.Project, error) {
	streams, err := r.s.store.Streams(ctx, event.StreamKindProject)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLedgerUnavailable, "list project streams", err)
	}
	out := make([]project.Project, 0, len(streams))
	for _, stream := range streams {
		p, err := r.GetProject(ctx, stream.Name)
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r repository) subprojects(ctx context.Context, projectID string) ([]subproject.Subproject, error) {
	events, err := r.events(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return subproject.FromEvents(projectID, events)
}

func (r repository) CountOpenSubprojects(ctx context.Context, projectID string) (int, error) {
	subprojects, err := r.subprojects(ctx, projectID)
	if err != nil {
		return 0, err
	}
	open := 0
	for _, s := range subprojects {
		if s.Status == subproject.StatusOpen {
			open++
		}
	}
	return open, nil
}

func (r repository) GetSubproject(ctx context.Context, projectID, subprojectID string) (subproject.Subproject, error) {
	events, err := r.events(ctx, projectID)
	if err != nil {
		return subproject.Subproject{}, err
	}
	return subproject.Find(projectID, subprojectID, events)
}

func (r repository) SubprojectExists(ctx context.Context, projectID, subprojectID string) (bool, error) {
	_, err := r.GetSubproject(ctx, projectID, subprojectID)
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r repository) GetWorkflowitems(ctx context.Context, projectID, subprojectID string) ([]workflowitem.Workflowitem, error) {
	events, err := r.events(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return workflowitem.FromEvents(projectID, subprojectID, events)
}

func (r repository) GetWorkflowitem(ctx context.Context, projectID, subprojectID, workflowitemID string) (workflowitem.Workflowitem, error) {
	items, err := r.GetWorkflowitems(ctx, projectID, subprojectID)
	if err != nil {
		return workflowitem.Workflowitem{}, err
	}
	for _, w := range items {
		if w.ID == workflowitemID {
			return w, nil
		}
	}
	return workflowitem.Workflowitem{}, fmt.Errorf("workflowitem %s/%s/%s not found", projectID, subprojectID, workflowitemID)
}

func (r repository) WorkflowitemExists(ctx context.Context, projectID, subprojectID, workflowitemID string) (bool, error) {
	items, err := r.GetWorkflowitems(ctx, projectID, subprojectID)
	if err != nil {
		return false, err
	}
	for _, w := range items {
		if w.ID == workflowitemID {
			return true, nil
		}
	}
	return false, nil
}

func (r repository) CountOpenWorkflowitems(ctx context.Context, projectID, subprojectID string) (int, error) {
	items, err := r.GetWorkflowitems(ctx, projectID, subprojectID)
	if err != nil {
		return 0, err
	}
	open := 0
	for _, w := range items {
		if w.Status == workflowitem.StatusOpen {
			open++
		}
	}
	return open, nil
}

func (r repository) WorkflowitemIDs(ctx context.Context, projectID, subprojectID string) ([]string, error) {
	items, err := r.GetWorkflowitems(ctx, projectID, subprojectID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i, w := range items {
		ids[i] = w.ID
	}
	return ids, nil
}

// Inbox folds the notifications addressed to recipient.
func (r repository) Inbox(ctx context.Context, recipient string) (notification.Inbox, error) {
	if err := r.s.cache.Refresh(ctx, event.NotificationsStream); err != nil {
		return notification.Inbox{}, err
	}
	inbox := notification.Inbox{Recipient: recipient}
	for _, evt := range r.s.cache.EventsFor(event.NotificationsStream, recipient) {
		var err error
		if inbox, err = notification.FoldInbox(inbox, evt); err != nil {
			return notification.Inbox{}, apperrors.Unexpected("fold inbox of "+recipient, err)
		}
	}
	return inbox, nil
}

// listRepository resolves identities against a single directory snapshot
// taken on first use.
type listRepository struct {
	repository
	dir    identity.Directory
	loaded bool
}

func newListRepository(r repository) *listRepository {
	return &listRepository{repository: r}
}

func (l *listRepository) UsersForIdentity(ctx context.Context, id string) ([]string, error) {
	if !l.loaded {
		dir, err := l.Directory(ctx)
		if err != nil {
			return nil, err
		}
		l.dir, l.loaded = dir, true
	}
	return l.dir.UsersForIdentity(ctx, id)
}
