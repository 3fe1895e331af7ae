package operations

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/workflowitem"
)

func init() {
	register(
		Operation{Name: "subproject.createWorkflowitem", Method: Write, Handle: handle(createWorkflowitem)},
		Operation{Name: "workflowitem.list", Method: Read, Handle: handle(listWorkflowitems)},
		Operation{Name: "workflowitem.assign", Method: Write, Handle: handle(assignWorkflowitem)},
		Operation{Name: "workflowitem.update", Method: Write, Handle: handle(updateWorkflowitem)},
		Operation{Name: "workflowitem.close", Method: Write, Handle: handle(closeWorkflowitem)},
		Operation{Name: "workflowitem.intent.listPermissions", Method: Read, Handle: handle(listWorkflowitemPermissions)},
		Operation{Name: "workflowitem.intent.grantPermission", Method: Write, Handle: handle(changeWorkflowitemPermission(true))},
		Operation{Name: "workflowitem.intent.revokePermission", Method: Write, Handle: handle(changeWorkflowitemPermission(false))},
	)
}

func createWorkflowitem(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in createWorkflowitemRequest) (any, error) {
	w, err := svc.CreateWorkflowitem(ctx, actor, in.ProjectID, in.SubprojectID, workflowitem.NewWorkflowitem{
		ID:          in.ID,
		DisplayName: in.DisplayName,
		Description: in.Description,
		Assignee:    in.Assignee,
		AmountType:  workflowitem.AmountType(in.AmountType),
		Amount:      in.Amount,
		Currency:    in.Currency,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflowitem": newWorkflowitemView(w, actor)}, nil
}

func listWorkflowitems(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in subprojectRef) (any, error) {
	items, err := svc.ListWorkflowitems(ctx, actor, in.ProjectID, in.SubprojectID)
	if err != nil {
		return nil, err
	}
	views := make([]workflowitemView, len(items))
	for i, w := range items {
		views[i] = newWorkflowitemView(w, actor)
	}
	return map[string]any{"workflowitems": views}, nil
}

func assignWorkflowitem(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in workflowitemAssignRequest) (any, error) {
	if _, err := svc.AssignWorkflowitem(ctx, actor, in.ProjectID, in.SubprojectID, in.WorkflowitemID, in.Identity); err != nil {
		return nil, err
	}
	return "OK", nil
}

func updateWorkflowitem(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in workflowitemUpdateRequest) (any, error) {
	update := workflowitem.Update{DisplayName: in.DisplayName, Description: in.Description, Amount: in.Amount}
	if _, err := svc.UpdateWorkflowitem(ctx, actor, in.ProjectID, in.SubprojectID, in.WorkflowitemID, update); err != nil {
		return nil, err
	}
	return "OK", nil
}

func closeWorkflowitem(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in workflowitemRef) (any, error) {
	if _, err := svc.CloseWorkflowitem(ctx, actor, in.ProjectID, in.SubprojectID, in.WorkflowitemID); err != nil {
		return nil, err
	}
	return "OK", nil
}

func listWorkflowitemPermissions(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in workflowitemRef) (any, error) {
	perms, err := svc.ListWorkflowitemPermissions(ctx, actor, in.ProjectID, in.SubprojectID, in.WorkflowitemID)
	if err != nil {
		return nil, err
	}
	return permissionsView(perms), nil
}

func changeWorkflowitemPermission(grant bool) func(context.Context, *app.Service, identity.ServiceUser, workflowitemPermissionRequest) (any, error) {
	return func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in workflowitemPermissionRequest) (any, error) {
		change := permission.Change{Intent: permission.Intent(in.Intent), Identity: in.Identity, Grant: grant}
		if _, err := svc.ChangeWorkflowitemPermission(ctx, actor, in.ProjectID, in.SubprojectID, in.WorkflowitemID, change); err != nil {
			return nil, err
		}
		return "OK", nil
	}
}
