package app

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
)

// CreateProject opens a project.
func (s *Service) CreateProject(ctx context.Context, actor identity.ServiceUser, input project.NewProject) (project.Project, error) {
	return execute(ctx, s, "global.createProject", actor, func(ctx context.Context, env command.Env) (command.Result[project.Project], error) {
		return project.Create(ctx, env, actor, input, repository{s})
	})
}

// ListProjects returns the projects the actor may view.
func (s *Service) ListProjects(ctx context.Context, actor identity.ServiceUser) ([]project.Project, error) {
	return query(ctx, s, "project.list", actor, func(ctx context.Context) ([]project.Project, error) {
		projects, err := repository{s}.Projects(ctx)
		if err != nil {
			return nil, err
		}
		return project.Visible(actor, projects), nil
	})
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, actor identity.ServiceUser, projectID string) (project.Project, error) {
	return query(ctx, s, "project.viewDetails", actor, func(ctx context.Context) (project.Project, error) {
		return project.Get(ctx, actor, projectID, repository{s})
	})
}

// AssignProject hands the project to assignee.
func (s *Service) AssignProject(ctx context.Context, actor identity.ServiceUser, projectID, assignee string) (project.Project, error) {
	return execute(ctx, s, "project.assign", actor, func(ctx context.Context, env command.Env) (command.Result[project.Project], error) {
		return project.Assign(ctx, env, actor, projectID, assignee, repository{s})
	})
}

// UpdateProject changes the project display fields.
func (s *Service) UpdateProject(ctx context.Context, actor identity.ServiceUser, projectID string, update project.Update) (project.Project, error) {
	return execute(ctx, s, "project.update", actor, func(ctx context.Context, env command.Env) (command.Result[project.Project], error) {
		return project.UpdateDetails(ctx, env, actor, projectID, update, repository{s})
	})
}

// CloseProject closes a project whose subprojects are closed.
func (s *Service) CloseProject(ctx context.Context, actor identity.ServiceUser, projectID string) (project.Project, error) {
	return execute(ctx, s, "project.close", actor, func(ctx context.Context, env command.Env) (command.Result[project.Project], error) {
		return project.Close(ctx, env, actor, projectID, repository{s})
	})
}

// UpdateProjectProjectedBudget sets one projected budget of the project.
func (s *Service) UpdateProjectProjectedBudget(ctx context.Context, actor identity.ServiceUser, projectID, organization, value, currencyCode string) ([]money.ProjectedBudget, error) {
	return execute(ctx, s, "project.budget.updateProjected", actor, func(ctx context.Context, env command.Env) (command.Result[[]money.ProjectedBudget], error) {
		return project.UpdateProjectedBudget(ctx, env, actor, projectID, organization, value, currencyCode, repository{s})
	})
}

// DeleteProjectProjectedBudget removes one projected budget of the project.
func (s *Service) DeleteProjectProjectedBudget(ctx context.Context, actor identity.ServiceUser, projectID, organization, currencyCode string) ([]money.ProjectedBudget, error) {
	return execute(ctx, s, "project.budget.deleteProjected", actor, func(ctx context.Context, env command.Env) (command.Result[[]money.ProjectedBudget], error) {
		return project.DeleteProjectedBudget(ctx, env, actor, projectID, organization, currencyCode, repository{s})
	})
}

// ChangeProjectPermission grants or revokes a project intent.
func (s *Service) ChangeProjectPermission(ctx context.Context, actor identity.ServiceUser, projectID string, change permission.Change) (permission.Permissions, error) {
	name := "project.intent.grantPermission"
	if !change.Grant {
		name = "project.intent.revokePermission"
	}
	return execute(ctx, s, name, actor, func(ctx context.Context, env command.Env) (command.Result[permission.Permissions], error) {
		return project.ChangePermission(ctx, env, actor, projectID, change, repository{s})
	})
}

// ListProjectPermissions returns the project permission map.
func (s *Service) ListProjectPermissions(ctx context.Context, actor identity.ServiceUser, projectID string) (permission.Permissions, error) {
	return query(ctx, s, "project.intent.listPermissions", actor, func(ctx context.Context) (permission.Permissions, error) {
		return project.ListPermissions(ctx, actor, projectID, repository{s})
	})
}
