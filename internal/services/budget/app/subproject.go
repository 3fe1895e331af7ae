package app

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
)

// CreateSubproject adds a subproject to a project.
func (s *Service) CreateSubproject(ctx context.Context, actor identity.ServiceUser, projectID string, input subproject.NewSubproject) (subproject.Subproject, error) {
	return execute(ctx, s, "project.createSubproject", actor, func(ctx context.Context, env command.Env) (command.Result[subproject.Subproject], error) {
		return subproject.Create(ctx, env, actor, projectID, input, repository{s})
	})
}

// ListSubprojects returns the subprojects of a viewable project the actor
// may view.
func (s *Service) ListSubprojects(ctx context.Context, actor identity.ServiceUser, projectID string) ([]subproject.Subproject, error) {
	return query(ctx, s, "subproject.list", actor, func(ctx context.Context) ([]subproject.Subproject, error) {
		repo := repository{s}
		if _, err := project.Get(ctx, actor, projectID, repo); err != nil {
			return nil, err
		}
		subprojects, err := repo.subprojects(ctx, projectID)
		if err != nil {
			return nil, err
		}
		return subproject.Visible(actor, subprojects), nil
	})
}

// GetSubproject returns one subproject.
func (s *Service) GetSubproject(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string) (subproject.Subproject, error) {
	return query(ctx, s, "subproject.viewDetails", actor, func(ctx context.Context) (subproject.Subproject, error) {
		return subproject.Get(ctx, actor, projectID, subprojectID, repository{s})
	})
}

// AssignSubproject hands the subproject to assignee.
func (s *Service) AssignSubproject(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, assignee string) (subproject.Subproject, error) {
	return execute(ctx, s, "subproject.assign", actor, func(ctx context.Context, env command.Env) (command.Result[subproject.Subproject], error) {
		return subproject.Assign(ctx, env, actor, projectID, subprojectID, assignee, repository{s})
	})
}

// UpdateSubproject changes the subproject display fields.
func (s *Service) UpdateSubproject(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, update subproject.Update) (subproject.Subproject, error) {
	return execute(ctx, s, "subproject.update", actor, func(ctx context.Context, env command.Env) (command.Result[subproject.Subproject], error) {
		return subproject.UpdateDetails(ctx, env, actor, projectID, subprojectID, update, repository{s})
	})
}

// CloseSubproject closes a subproject whose workflowitems are closed.
func (s *Service) CloseSubproject(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string) (subproject.Subproject, error) {
	return execute(ctx, s, "subproject.close", actor, func(ctx context.Context, env command.Env) (command.Result[subproject.Subproject], error) {
		return subproject.Close(ctx, env, actor, projectID, subprojectID, repository{s})
	})
}

// UpdateSubprojectProjectedBudget sets one projected budget of the subproject.
func (s *Service) UpdateSubprojectProjectedBudget(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, organization, value, currencyCode string) ([]money.ProjectedBudget, error) {
	return execute(ctx, s, "subproject.budget.updateProjected", actor, func(ctx context.Context, env command.Env) (command.Result[[]money.ProjectedBudget], error) {
		return subproject.UpdateProjectedBudget(ctx, env, actor, projectID, subprojectID, organization, value, currencyCode, repository{s})
	})
}

// DeleteSubprojectProjectedBudget removes one projected budget of the subproject.
func (s *Service) DeleteSubprojectProjectedBudget(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, organization, currencyCode string) ([]money.ProjectedBudget, error) {
	return execute(ctx, s, "subproject.budget.deleteProjected", actor, func(ctx context.Context, env command.Env) (command.Result[[]money.ProjectedBudget], error) {
		return subproject.DeleteProjectedBudget(ctx, env, actor, projectID, subprojectID, organization, currencyCode, repository{s})
	})
}

// ReorderWorkflowitems sets the explicit workflowitem ordering.
func (s *Service) ReorderWorkflowitems(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, ordering []string) (subproject.Subproject, error) {
	return execute(ctx, s, "subproject.reorderWorkflowitems", actor, func(ctx context.Context, env command.Env) (command.Result[subproject.Subproject], error) {
		return subproject.ReorderWorkflowitems(ctx, env, actor, projectID, subprojectID, ordering, repository{s})
	})
}

// ChangeSubprojectPermission grants or revokes a subproject intent.
func (s *Service) ChangeSubprojectPermission(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, change permission.Change) (permission.Permissions, error) {
	name := "subproject.intent.grantPermission"
	if !change.Grant {
		name = "subproject.intent.revokePermission"
	}
	return execute(ctx, s, name, actor, func(ctx context.Context, env command.Env) (command.Result[permission.Permissions], error) {
		return subproject.ChangePermission(ctx, env, actor, projectID, subprojectID, change, repository{s})
	})
}

// ListSubprojectPermissions returns the subproject permission map without
// the holders of subproject.close.
func (s *Service) ListSubprojectPermissions(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string) (permission.Permissions, error) {
	return query(ctx, s, "subproject.intent.listPermissions", actor, func(ctx context.Context) (permission.Permissions, error) {
		return subproject.ListPermissions(ctx, actor, projectID, subprojectID, repository{s})
	})
}
