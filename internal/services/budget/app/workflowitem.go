package app

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/workflowitem"
)

// CreateWorkflowitem adds a workflowitem to a subproject.
func (s *Service) CreateWorkflowitem(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, input workflowitem.NewWorkflowitem) (workflowitem.Workflowitem, error) {
	return execute(ctx, s, "subproject.createWorkflowitem", actor, func(ctx context.Context, env command.Env) (command.Result[workflowitem.Workflowitem], error) {
		return workflowitem.Create(ctx, env, actor, projectID, subprojectID, input, repository{s})
	})
}

// ListWorkflowitems returns the workflowitems the actor may view, ordered
// and with redacted history.
func (s *Service) ListWorkflowitems(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string) ([]workflowitem.Workflowitem, error) {
	return query(ctx, s, "workflowitem.list", actor, func(ctx context.Context) ([]workflowitem.Workflowitem, error) {
		return workflowitem.ListVisible(ctx, actor, projectID, subprojectID, newListRepository(repository{s}))
	})
}

// AssignWorkflowitem hands the workflowitem to assignee.
func (s *Service) AssignWorkflowitem(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID, assignee string) (workflowitem.Workflowitem, error) {
	return execute(ctx, s, "workflowitem.assign", actor, func(ctx context.Context, env command.Env) (command.Result[workflowitem.Workflowitem], error) {
		return workflowitem.Assign(ctx, env, actor, projectID, subprojectID, workflowitemID, assignee, repository{s})
	})
}

// UpdateWorkflowitem changes the workflowitem details.
func (s *Service) UpdateWorkflowitem(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, update workflowitem.Update) (workflowitem.Workflowitem, error) {
	return execute(ctx, s, "workflowitem.update", actor, func(ctx context.Context, env command.Env) (command.Result[workflowitem.Workflowitem], error) {
		return workflowitem.UpdateDetails(ctx, env, actor, projectID, subprojectID, workflowitemID, update, repository{s})
	})
}

// CloseWorkflowitem closes the workflowitem.
func (s *Service) CloseWorkflowitem(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string) (workflowitem.Workflowitem, error) {
	return execute(ctx, s, "workflowitem.close", actor, func(ctx context.Context, env command.Env) (command.Result[workflowitem.Workflowitem], error) {
		return workflowitem.Close(ctx, env, actor, projectID, subprojectID, workflowitemID, repository{s})
	})
}

// ChangeWorkflowitemPermission grants or revokes a workflowitem intent.
func (s *Service) ChangeWorkflowitemPermission(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, change permission.Change) (permission.Permissions, error) {
	name := "workflowitem.intent.grantPermission"
	if !change.Grant {
		name = "workflowitem.intent.revokePermission"
	}
	return execute(ctx, s, name, actor, func(ctx context.Context, env command.Env) (command.Result[permission.Permissions], error) {
		return workflowitem.ChangePermission(ctx, env, actor, projectID, subprojectID, workflowitemID, change, repository{s})
	})
}

// ListWorkflowitemPermissions returns the workflowitem permission map.
func (s *Service) ListWorkflowitemPermissions(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string) (permission.Permissions, error) {
	return query(ctx, s, "workflowitem.intent.listPermissions", actor, func(ctx context.Context) (permission.Permissions, error) {
		return workflowitem.ListPermissions(ctx, actor, projectID, subprojectID, workflowitemID, repository{s})
	})
}
