package operations

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
)

func init() {
	register(
		Operation{Name: "global.createProject", Method: Write, Handle: handle(createProject)},
		Operation{Name: "project.list", Method: Read, Handle: handle(listProjects)},
		Operation{Name: "project.viewDetails", Method: Read, Handle: handle(viewProject)},
		Operation{Name: "project.assign", Method: Write, Handle: handle(assignProject)},
		Operation{Name: "project.update", Method: Write, Handle: handle(updateProject)},
		Operation{Name: "project.close", Method: Write, Handle: handle(closeProject)},
		Operation{Name: "project.budget.updateProjected", Method: Write, Handle: handle(updateProjectBudget)},
		Operation{Name: "project.budget.deleteProjected", Method: Write, Handle: handle(deleteProjectBudget)},
		Operation{Name: "project.intent.listPermissions", Method: Read, Handle: handle(listProjectPermissions)},
		Operation{Name: "project.intent.grantPermission", Method: Write, Handle: handle(changeProjectPermission(true))},
		Operation{Name: "project.intent.revokePermission", Method: Write, Handle: handle(changeProjectPermission(false))},
	)
}

func createProject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in createProjectRequest) (any, error) {
	p, err := svc.CreateProject(ctx, actor, project.NewProject{
		ID:               in.ID,
		DisplayName:      in.DisplayName,
		Description:      in.Description,
		Assignee:         in.Assignee,
		ProjectedBudgets: in.ProjectedBudgets,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": newProjectView(p, actor, false)}, nil
}

func listProjects(ctx context.Context, svc *app.Service, actor identity.ServiceUser, _ noInput) (any, error) {
	projects, err := svc.ListProjects(ctx, actor)
	if err != nil {
		return nil, err
	}
	items := make([]projectView, len(projects))
	for i, p := range projects {
		items[i] = newProjectView(p, actor, false)
	}
	return map[string]any{"items": items}, nil
}

func viewProject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectRef) (any, error) {
	p, err := svc.GetProject(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": newProjectView(p, actor, true)}, nil
}

func assignProject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectAssignRequest) (any, error) {
	if _, err := svc.AssignProject(ctx, actor, in.ProjectID, in.Identity); err != nil {
		return nil, err
	}
	return "OK", nil
}

func updateProject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectDetailsRequest) (any, error) {
	if _, err := svc.UpdateProject(ctx, actor, in.ProjectID, project.Update{DisplayName: in.DisplayName, Description: in.Description}); err != nil {
		return nil, err
	}
	return "OK", nil
}

func closeProject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectRef) (any, error) {
	if _, err := svc.CloseProject(ctx, actor, in.ProjectID); err != nil {
		return nil, err
	}
	return "OK", nil
}

func updateProjectBudget(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectBudgetRequest) (any, error) {
	return svc.UpdateProjectProjectedBudget(ctx, actor, in.ProjectID, in.Organization, in.Value, in.CurrencyCode)
}

func deleteProjectBudget(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectBudgetRequest) (any, error) {
	return svc.DeleteProjectProjectedBudget(ctx, actor, in.ProjectID, in.Organization, in.CurrencyCode)
}

func listProjectPermissions(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectRef) (any, error) {
	perms, err := svc.ListProjectPermissions(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	return permissionsView(perms), nil
}

func changeProjectPermission(grant bool) func(context.Context, *app.Service, identity.ServiceUser, projectPermissionRequest) (any, error) {
	return func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectPermissionRequest) (any, error) {
		change := permission.Change{Intent: permission.Intent(in.Intent), Identity: in.Identity, Grant: grant}
		if _, err := svc.ChangeProjectPermission(ctx, actor, in.ProjectID, change); err != nil {
			return nil, err
		}
		return "OK", nil
	}
}
