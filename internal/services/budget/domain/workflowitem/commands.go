package workflowitem

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/notification"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
)

// Repository is the read access workflowitem commands need.
type Repository interface {
	GetWorkflowitem(ctx context.Context, projectID, subprojectID, workflowitemID string) (Workflowitem, error)
	identity.Resolver
}

// CreateRepository is the read access Create needs.
type CreateRepository interface {
	GetSubproject(ctx context.Context, projectID, subprojectID string) (subproject.Subproject, error)
	WorkflowitemExists(ctx context.Context, projectID, subprojectID, workflowitemID string) (bool, error)
	identity.Resolver
}

// NewWorkflowitem is the input of Create. Amount and Currency are only
// meaningful for allocated or disbursed items.
type NewWorkflowitem struct {
	ID          string
	DisplayName string
	Description string
	Assignee    string
	AmountType  AmountType
	Amount      string
	Currency    string
}

// Update is the input of UpdateDetails. Empty fields are unchanged.
type Update struct {
	DisplayName string
	Description string
	Amount      string
}

func fetch(ctx context.Context, repo Repository, projectID, subprojectID, workflowitemID string) (Workflowitem, error) {
	w, err := repo.GetWorkflowitem(ctx, projectID, subprojectID, workflowitemID)
	if err != nil {
		notFound := apperrors.NotFound("workflowitem", workflowitemID)
		notFound.Cause = err
		return Workflowitem{}, notFound
	}
	return w, nil
}

func authorize(w Workflowitem, actor identity.ServiceUser, intent permission.Intent) error {
	if permission.Permits(w.Permissions, actor, intent) {
		return nil
	}
	return apperrors.NotAuthorized(actor.ID, string(intent))
}

func requireOpen(w Workflowitem) error {
	if w.Status == StatusClosed {
		return apperrors.WithMetadata(apperrors.CodeAggregateClosed, fmt.Sprintf("workflowitem %q is closed", w.ID), map[string]string{"WorkflowitemID": w.ID})
	}
	return nil
}

func emit(ctx context.Context, env command.Env, resolver identity.Resolver, actor identity.ServiceUser, w Workflowitem, typ event.Type, payload any, notify bool) (Workflowitem, []event.Event, error) {
	evt, err := env.Event(typ, actor.ID, payload)
	if err != nil {
		return w, nil, apperrors.Unexpected("build "+string(typ), err)
	}
	next, err := Fold(w, evt)
	if err != nil {
		return w, nil, apperrors.Unexpected("fold "+string(typ), err)
	}
	events := []event.Event{evt}
	if notify {
		ref := notification.Ref{ProjectID: next.ProjectID, SubprojectID: next.SubprojectID, WorkflowitemID: next.ID}
		notifications, err := notification.Derive(ctx, env, resolver, actor, next.Assignee, ref, evt)
		if err != nil {
			return w, nil, err
		}
		events = append(events, notifications...)
	}
	return next, events, nil
}

func parseAmount(amountType AmountType, amount, currency string) (string, string, error) {
	switch amountType {
	case AmountNone, "":
		if strings.TrimSpace(amount) != "" || strings.TrimSpace(currency) != "" {
			return "", "", apperrors.InvalidInput(apperrors.CodeMoneyAmountInvalid, "amount and currency require an allocated or disbursed amount type")
		}
		return "", "", nil
	case AmountAllocated, AmountDisbursed:
		value, err := money.ParseAmount(amount)
		if err != nil {
			return "", "", err
		}
		code, err := money.ParseCurrency(currency)
		if err != nil {
			return "", "", err
		}
		return value, code, nil
	default:
		return "", "", apperrors.InvalidInput(apperrors.CodeInvalidInput, fmt.Sprintf("amount type %q is not supported", amountType))
	}
}

// Create adds a workflowitem to an open subproject. The creator receives
// every workflowitem intent; a different assignee is notified.
func Create(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID string, input NewWorkflowitem, repo CreateRepository) (command.Result[Workflowitem], error) {
	s, err := repo.GetSubproject(ctx, projectID, subprojectID)
	if err != nil {
		notFound := apperrors.NotFound("subproject", subprojectID)
		notFound.Cause = err
		return command.Result[Workflowitem]{}, notFound
	}
	if !permission.Permits(s.Permissions, actor, permission.SubprojectCreateWorkflowitem) {
		return command.Result[Workflowitem]{}, apperrors.NotAuthorized(actor.ID, string(permission.SubprojectCreateWorkflowitem))
	}
	if err := permission.RequireResolvable(ctx, repo, actor.ID); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if s.Status == subproject.StatusClosed {
		return command.Result[Workflowitem]{}, apperrors.WithMetadata(apperrors.CodeAggregateClosed, fmt.Sprintf("subproject %q is closed", s.ID), map[string]string{"SubprojectID": s.ID})
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return command.Result[Workflowitem]{}, apperrors.InvalidInput(apperrors.CodeDisplayNameEmpty, "workflowitem display name is required")
	}
	amountType := input.AmountType
	if amountType == "" {
		amountType = AmountNone
	}
	amount, currency, err := parseAmount(amountType, input.Amount, input.Currency)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	workflowitemID := strings.TrimSpace(input.ID)
	if workflowitemID == "" {
		if workflowitemID, err = env.ID(); err != nil {
			return command.Result[Workflowitem]{}, apperrors.Unexpected("generate workflowitem id", err)
		}
	}
	exists, err := repo.WorkflowitemExists(ctx, s.ProjectID, s.ID, workflowitemID)
	if err != nil {
		return command.Result[Workflowitem]{}, apperrors.Unexpected("check workflowitem "+workflowitemID, err)
	}
	if exists {
		return command.Result[Workflowitem]{}, apperrors.WithMetadata(apperrors.CodeAlreadyExists, fmt.Sprintf("workflowitem %q already exists", workflowitemID), map[string]string{"WorkflowitemID": workflowitemID})
	}
	assignee := strings.TrimSpace(input.Assignee)
	if assignee == "" {
		assignee = actor.ID
	}
	next, events, err := emit(ctx, env, repo, actor, Workflowitem{}, event.TypeWorkflowitemCreated, CreatedPayload{
		ProjectID:      s.ProjectID,
		SubprojectID:   s.ID,
		WorkflowitemID: workflowitemID,
		DisplayName:    displayName,
		Description:    strings.TrimSpace(input.Description),
		Assignee:       assignee,
		AmountType:     amountType,
		Amount:         amount,
		Currency:       currency,
		Permissions:    permission.Creator(permission.ScopeWorkflowitem, actor.ID),
	}, true)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	return command.Accept(next, events...), nil
}

// Assign hands the workflowitem to a user or group and notifies the new
// assignee. Assigning the current assignee is accepted without events.
func Assign(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, workflowitemID, assignee string, repo Repository) (command.Result[Workflowitem], error) {
	w, err := fetch(ctx, repo, projectID, subprojectID, workflowitemID)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := authorize(w, actor, permission.WorkflowitemAssign); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := requireOpen(w); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return command.Result[Workflowitem]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "assignee is required")
	}
	if assignee == w.Assignee {
		return command.Accept(w), nil
	}
	next, events, err := emit(ctx, env, repo, actor, w, event.TypeWorkflowitemAssigned, AssignedPayload{
		ProjectID:      w.ProjectID,
		SubprojectID:   w.SubprojectID,
		WorkflowitemID: w.ID,
		Assignee:       assignee,
	}, true)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	return command.Accept(next, events...), nil
}

// UpdateDetails changes the display fields or the amount and notifies the
// assignee.
func UpdateDetails(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, update Update, repo Repository) (command.Result[Workflowitem], error) {
	w, err := fetch(ctx, repo, projectID, subprojectID, workflowitemID)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := authorize(w, actor, permission.WorkflowitemUpdate); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := requireOpen(w); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	payload := UpdatedPayload{
		ProjectID:      w.ProjectID,
		SubprojectID:   w.SubprojectID,
		WorkflowitemID: w.ID,
		DisplayName:    strings.TrimSpace(update.DisplayName),
		Description:    strings.TrimSpace(update.Description),
	}
	if strings.TrimSpace(update.Amount) != "" {
		if w.AmountType == AmountNone || w.AmountType == "" {
			return command.Result[Workflowitem]{}, apperrors.InvalidInput(apperrors.CodeMoneyAmountInvalid, fmt.Sprintf("workflowitem %q carries no amount", w.ID))
		}
		if payload.Amount, err = money.ParseAmount(update.Amount); err != nil {
			return command.Result[Workflowitem]{}, err
		}
	}
	if payload.DisplayName == "" && payload.Description == "" && payload.Amount == "" {
		return command.Result[Workflowitem]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "workflowitem update requires fields")
	}
	next, events, err := emit(ctx, env, repo, actor, w, event.TypeWorkflowitemUpdated, payload, true)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	return command.Accept(next, events...), nil
}

// Close finishes the workflowitem and notifies its assignee.
func Close(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, repo Repository) (command.Result[Workflowitem], error) {
	w, err := fetch(ctx, repo, projectID, subprojectID, workflowitemID)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := authorize(w, actor, permission.WorkflowitemClose); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	if err := requireOpen(w); err != nil {
		return command.Result[Workflowitem]{}, err
	}
	next, events, err := emit(ctx, env, repo, actor, w, event.TypeWorkflowitemClosed, ClosedPayload{
		ProjectID:      w.ProjectID,
		SubprojectID:   w.SubprojectID,
		WorkflowitemID: w.ID,
	}, true)
	if err != nil {
		return command.Result[Workflowitem]{}, err
	}
	return command.Accept(next, events...), nil
}

// ChangePermission grants or revokes an intent on the workflowitem.
func ChangePermission(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, change permission.Change, repo Repository) (command.Result[permission.Permissions], error) {
	w, err := fetch(ctx, repo, projectID, subprojectID, workflowitemID)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	change, changed, err := permission.DecideResolved(ctx, repo, w.Permissions, actor, permission.ScopeWorkflowitem, change)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	if !changed {
		return command.Accept(w.Permissions.Clone()), nil
	}
	typ := event.TypeWorkflowitemPermissionGranted
	if !change.Grant {
		typ = event.TypeWorkflowitemPermissionRevoked
	}
	next, events, err := emit(ctx, env, repo, actor, w, typ, PermissionPayload{
		ProjectID:      w.ProjectID,
		SubprojectID:   w.SubprojectID,
		WorkflowitemID: w.ID,
		Intent:         change.Intent,
		Identity:       change.Identity,
	}, false)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	return command.Accept(next.Permissions.Clone(), events...), nil
}

// ListPermissions returns the workflowitem permission map.
func ListPermissions(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID, workflowitemID string, repo Repository) (permission.Permissions, error) {
	w, err := fetch(ctx, repo, projectID, subprojectID, workflowitemID)
	if err != nil {
		return nil, err
	}
	if err := authorize(w, actor, permission.WorkflowitemListPermissions); err != nil {
		return nil, err
	}
	return w.Permissions.Clone(), nil
}
