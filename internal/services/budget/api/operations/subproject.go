package operations

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
)

func init() {
	register(
		Operation{Name: "project.createSubproject", Method: Write, Handle: handle(createSubproject)},
		Operation{Name: "subproject.list", Method: Read, Handle: handle(listSubprojects)},
		Operation{Name: "subproject.viewDetails", Method: Read, Handle: handle(viewSubproject)},
		Operation{Name: "subproject.assign", Method: Write, Handle: handle(assignSubproject)},
		Operation{Name: "subproject.update", Method: Write, Handle: handle(updateSubproject)},
		Operation{Name: "subproject.close", Method: Write, Handle: handle(closeSubproject)},
		Operation{Name: "subproject.budget.updateProjected", Method: Write, Handle: handle(updateSubprojectBudget)},
		Operation{Name: "subproject.budget.deleteProjected", Method: Write, Handle: handle(deleteSubprojectBudget)},
		Operation{Name: "subproject.reorderWorkflowitems", Method: Write, Handle: handle(reorderWorkflowitems)},
		Operation{Name: "subproject.intent.listPermissions", Method: Read, Handle: handle(listSubprojectPermissions)},
		Operation{Name: "subproject.intent.grantPermission", Method: Write, Handle: handle(changeSubprojectPermission(true))},
		Operation{Name: "subproject.intent.revokePermission", Method: Write, Handle: handle(changeSubprojectPermission(false))},
	)
}

func createSubproject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in createSubprojectRequest) (any, error) {
	s, err := svc.CreateSubproject(ctx, actor, in.ProjectID, subproject.NewSubproject{
		ID:               in.ID,
		DisplayName:      in.DisplayName,
		Description:      in.Description,
		Assignee:         in.Assignee,
		Currency:         in.Currency,
		ProjectedBudgets: in.ProjectedBudgets,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"subproject": newSubprojectView(s, actor, false)}, nil
}

func listSubprojects(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in projectRef) (any, error) {
	subprojects, err := svc.ListSubprojects(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	items := make([]subprojectView, len(subprojects))
	for i, s := range subprojects {
		items[i] = newSubprojectView(s, actor, false)
	}
	return map[string]any{"items": items}, nil
}

func viewSubproject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectRef) (any, error) {
	s, err := svc.GetSubproject(ctx, actor, in.ProjectID, in.SubprojectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"subproject": newSubprojectView(s, actor, true)}, nil
}

func assignSubproject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectAssignRequest) (any, error) {
	if _, err := svc.AssignSubproject(ctx, actor, in.ProjectID, in.SubprojectID, in.Identity); err != nil {
		return nil, err
	}
	return "OK", nil
}

func updateSubproject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectDetailsRequest) (any, error) {
	update := subproject.Update{DisplayName: in.DisplayName, Description: in.Description}
	if _, err := svc.UpdateSubproject(ctx, actor, in.ProjectID, in.SubprojectID, update); err != nil {
		return nil, err
	}
	return "OK", nil
}

func closeSubproject(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectRef) (any, error) {
	if _, err := svc.CloseSubproject(ctx, actor, in.ProjectID, in.SubprojectID); err != nil {
		return nil, err
	}
	return "OK", nil
}

func updateSubprojectBudget(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectBudgetRequest) (any, error) {
	return svc.UpdateSubprojectProjectedBudget(ctx, actor, in.ProjectID, in.SubprojectID, in.Organization, in.Value, in.CurrencyCode)
}

func deleteSubprojectBudget(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectBudgetRequest) (any, error) {
	return svc.DeleteSubprojectProjectedBudget(ctx, actor, in.ProjectID, in.SubprojectID, in.Organization, in.CurrencyCode)
}

func reorderWorkflowitems(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in reorderRequest) (any, error) {
	if _, err := svc.ReorderWorkflowitems(ctx, actor, in.ProjectID, in.SubprojectID, in.Ordering); err != nil {
		return nil, err
	}
	return "OK", nil
}

func listSubprojectPermissions(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectRef) (any, error) {
	perms, err := svc.ListSubprojectPermissions(ctx, actor, in.ProjectID, in.SubprojectID)
	if err != nil {
		return nil, err
	}
	return permissionsView(perms), nil
}

func changeSubprojectPermission(grant bool) func(context.Context, *app.Service, identity.ServiceUser, subprojectPermissionRequest) (any, error) {
	return func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectPermissionRequest) (any, error) {
		change := permission.Change{Intent: permission.Intent(in.Intent), Identity: in.Identity, Grant: grant}
		if _, err := svc.ChangeSubprojectPermission(ctx, actor, in.ProjectID, in.SubprojectID, change); err != nil {
			return nil, err
		}
		return "OK", nil
	}
}
