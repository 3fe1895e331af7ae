package subproject

import (
	"context"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/notification"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
)

// Repository is the read access subproject commands need.
type Repository interface {
	GetSubproject(ctx context.Context, projectID, subprojectID string) (Subproject, error)
	identity.Resolver
}

// CreateRepository is the read access Create needs.
type CreateRepository interface {
	GetProject(ctx context.Context, projectID string) (project.Project, error)
	SubprojectExists(ctx context.Context, projectID, subprojectID string) (bool, error)
	identity.Resolver
}

// CloseRepository is the read access Close needs.
type CloseRepository interface {
	Repository
	CountOpenWorkflowitems(ctx context.Context, projectID, subprojectID string) (int, error)
}

// ReorderRepository is the read access ReorderWorkflowitems needs.
type ReorderRepository interface {
	Repository
	WorkflowitemIDs(ctx context.Context, projectID, subprojectID string) ([]string, error)
}

// NewSubproject is the input of Create.
type NewSubproject struct {
	ID               string
	DisplayName      string
	Description      string
	Assignee         string
	Currency         string
	ProjectedBudgets []money.ProjectedBudget
}

// Update is the input of UpdateDetails. Empty fields are unchanged.
type Update struct {
	DisplayName string
	Description string
}

// hiddenFromListing are intents whose holders are not disclosed by ListPermissions.
var hiddenFromListing = []permission.Intent{permission.SubprojectClose}

func fetch(ctx context.Context, repo Repository, projectID, subprojectID string) (Subproject, error) {
	s, err := repo.GetSubproject(ctx, projectID, subprojectID)
	if err != nil {
		notFound := apperrors.NotFound("subproject", subprojectID)
		notFound.Cause = err
		return Subproject{}, notFound
	}
	return s, nil
}

func authorize(s Subproject, actor identity.ServiceUser, intent permission.Intent) error {
	if permission.Permits(s.Permissions, actor, intent) {
		return nil
	}
	return apperrors.NotAuthorized(actor.ID, string(intent))
}

func requireOpen(s Subproject) error {
	if s.Status == StatusClosed {
		return apperrors.WithMetadata(apperrors.CodeAggregateClosed, fmt.Sprintf("subproject %q is closed", s.ID), map[string]string{"SubprojectID": s.ID})
	}
	return nil
}

func emit(ctx context.Context, env command.Env, resolver identity.Resolver, actor identity.ServiceUser, s Subproject, typ event.Type, payload any, notify bool) (Subproject, []event.Event, error) {
	evt, err := env.Event(typ, actor.ID, payload)
	if err != nil {
		return s, nil, apperrors.Unexpected("build "+string(typ), err)
	}
	next, err := Fold(s, evt)
	if err != nil {
		return s, nil, apperrors.Unexpected("fold "+string(typ), err)
	}
	events := []event.Event{evt}
	if notify {
		ref := notification.Ref{ProjectID: next.ProjectID, SubprojectID: next.ID}
		notifications, err := notification.Derive(ctx, env, resolver, actor, next.Assignee, ref, evt)
		if err != nil {
			return s, nil, err
		}
		events = append(events, notifications...)
	}
	return next, events, nil
}

// Create adds a subproject to an open project. The creator receives every
// subproject intent; a different assignee is notified.
func Create(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID string, input NewSubproject, repo CreateRepository) (command.Result[Subproject], error) {
	p, err := repo.GetProject(ctx, projectID)
	if err != nil {
		notFound := apperrors.NotFound("project", projectID)
		notFound.Cause = err
		return command.Result[Subproject]{}, notFound
	}
	if !permission.Permits(p.Permissions, actor, permission.ProjectCreateSubproject) {
		return command.Result[Subproject]{}, apperrors.NotAuthorized(actor.ID, string(permission.ProjectCreateSubproject))
	}
	if err := permission.RequireResolvable(ctx, repo, actor.ID); err != nil {
		return command.Result[Subproject]{}, err
	}
	if p.Status == project.StatusClosed {
		return command.Result[Subproject]{}, apperrors.WithMetadata(apperrors.CodeAggregateClosed, fmt.Sprintf("project %q is closed", p.ID), map[string]string{"ProjectID": p.ID})
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeDisplayNameEmpty, "subproject display name is required")
	}
	currency, err := money.ParseCurrency(input.Currency)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	budgets := make([]money.ProjectedBudget, 0, len(input.ProjectedBudgets))
	for _, b := range input.ProjectedBudgets {
		valid, err := money.NewProjectedBudget(b.Organization, b.Value, b.CurrencyCode)
		if err != nil {
			return command.Result[Subproject]{}, err
		}
		budgets = money.Upsert(budgets, valid)
	}
	subprojectID := strings.TrimSpace(input.ID)
	if subprojectID == "" {
		if subprojectID, err = env.ID(); err != nil {
			return command.Result[Subproject]{}, apperrors.Unexpected("generate subproject id", err)
		}
	}
	exists, err := repo.SubprojectExists(ctx, p.ID, subprojectID)
	if err != nil {
		return command.Result[Subproject]{}, apperrors.Unexpected("check subproject "+subprojectID, err)
	}
	if exists {
		return command.Result[Subproject]{}, apperrors.WithMetadata(apperrors.CodeAlreadyExists, fmt.Sprintf("subproject %q already exists", subprojectID), map[string]string{"SubprojectID": subprojectID})
	}
	assignee := strings.TrimSpace(input.Assignee)
	if assignee == "" {
		assignee = actor.ID
	}
	next, events, err := emit(ctx, env, repo, actor, Subproject{}, event.TypeSubprojectCreated, CreatedPayload{
		ProjectID:        p.ID,
		SubprojectID:     subprojectID,
		DisplayName:      displayName,
		Description:      strings.TrimSpace(input.Description),
		Assignee:         assignee,
		Currency:         currency,
		ProjectedBudgets: budgets,
		Permissions:      permission.Creator(permission.ScopeSubproject, actor.ID),
	}, true)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	return command.Accept(next, events...), nil
}

// Assign hands the subproject to a user or group and notifies the new
// assignee. Assigning the current assignee is accepted without events.
func Assign(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, assignee string, repo Repository) (command.Result[Subproject], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectAssign); err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := requireOpen(s); err != nil {
		return command.Result[Subproject]{}, err
	}
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "assignee is required")
	}
	if assignee == s.Assignee {
		return command.Accept(s), nil
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectAssigned, AssignedPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		Assignee:     assignee,
	}, true)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	return command.Accept(next, events...), nil
}

// UpdateDetails changes the display fields and notifies the assignee.
func UpdateDetails(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID string, update Update, repo Repository) (command.Result[Subproject], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectUpdate); err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := requireOpen(s); err != nil {
		return command.Result[Subproject]{}, err
	}
	payload := UpdatedPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		DisplayName:  strings.TrimSpace(update.DisplayName),
		Description:  strings.TrimSpace(update.Description),
	}
	if payload.DisplayName == "" && payload.Description == "" {
		return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "subproject update requires fields")
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectUpdated, payload, true)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	return command.Accept(next, events...), nil
}

// Close finishes a subproject whose workflowitems are all closed.
func Close(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID string, repo CloseRepository) (command.Result[Subproject], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectClose); err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := requireOpen(s); err != nil {
		return command.Result[Subproject]{}, err
	}
	open, err := repo.CountOpenWorkflowitems(ctx, s.ProjectID, s.ID)
	if err != nil {
		return command.Result[Subproject]{}, apperrors.Unexpected("count open workflowitems", err)
	}
	if open > 0 {
		return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, fmt.Sprintf("subproject %q has %d open workflowitems", s.ID, open))
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectClosed, ClosedPayload{ProjectID: s.ProjectID, SubprojectID: s.ID}, true)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	return command.Accept(next, events...), nil
}

// UpdateProjectedBudget sets the value of the (organization, currencyCode)
// projected budget, appending the pair when it is new, and notifies the
// assignee.
func UpdateProjectedBudget(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, organization, value, currencyCode string, repo Repository) (command.Result[[]money.ProjectedBudget], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectBudgetUpdateProjected); err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	budget, err := money.NewProjectedBudget(organization, value, currencyCode)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectProjectedBudgetUpdated, ProjectedBudgetUpdatedPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		Organization: budget.Organization,
		Value:        budget.Value,
		CurrencyCode: budget.CurrencyCode,
	}, true)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	return command.Accept(next.ProjectedBudgets, events...), nil
}

// DeleteProjectedBudget removes the (organization, currencyCode) projected
// budget. Deleting an absent pair is accepted without events.
func DeleteProjectedBudget(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID, organization, currencyCode string, repo Repository) (command.Result[[]money.ProjectedBudget], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectBudgetDeleteProjected); err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	org, err := money.ParseOrganization(organization)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	code, err := money.ParseCurrency(currencyCode)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	if _, ok := money.Find(s.ProjectedBudgets, org, code); !ok {
		return command.Accept(s.ProjectedBudgets), nil
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectProjectedBudgetDeleted, ProjectedBudgetDeletedPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		Organization: org,
		CurrencyCode: code,
	}, true)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	return command.Accept(next.ProjectedBudgets, events...), nil
}

// ReorderWorkflowitems replaces the explicit workflowitem ordering. Every
// listed id must name an existing workflowitem of the subproject, once.
func ReorderWorkflowitems(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID string, ordering []string, repo ReorderRepository) (command.Result[Subproject], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := authorize(s, actor, permission.SubprojectReorderWorkflowitems); err != nil {
		return command.Result[Subproject]{}, err
	}
	if err := requireOpen(s); err != nil {
		return command.Result[Subproject]{}, err
	}
	known, err := repo.WorkflowitemIDs(ctx, s.ProjectID, s.ID)
	if err != nil {
		return command.Result[Subproject]{}, apperrors.Unexpected("list workflowitems", err)
	}
	seen := make(map[string]bool, len(ordering))
	for _, id := range ordering {
		if seen[id] {
			return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeOrderingInvalid, fmt.Sprintf("workflowitem %q listed twice", id))
		}
		if !slices.Contains(known, id) {
			return command.Result[Subproject]{}, apperrors.InvalidInput(apperrors.CodeOrderingInvalid, fmt.Sprintf("workflowitem %q is not part of subproject %q", id, s.ID))
		}
		seen[id] = true
	}
	if slices.Equal(ordering, s.WorkflowitemOrdering) {
		return command.Accept(s), nil
	}
	next, events, err := emit(ctx, env, repo, actor, s, event.TypeSubprojectItemsReordered, ItemsReorderedPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		Ordering:     slices.Clone(ordering),
	}, false)
	if err != nil {
		return command.Result[Subproject]{}, err
	}
	return command.Accept(next, events...), nil
}

// ChangePermission grants or revokes an intent on the subproject.
func ChangePermission(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, subprojectID string, change permission.Change, repo Repository) (command.Result[permission.Permissions], error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	change, changed, err := permission.DecideResolved(ctx, repo, s.Permissions, actor, permission.ScopeSubproject, change)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	if !changed {
		return command.Accept(s.Permissions.Clone()), nil
	}
	typ := event.TypeSubprojectPermissionGranted
	if !change.Grant {
		typ = event.TypeSubprojectPermissionRevoked
	}
	next, events, err := emit(ctx, env, repo, actor, s, typ, PermissionPayload{
		ProjectID:    s.ProjectID,
		SubprojectID: s.ID,
		Intent:       change.Intent,
		Identity:     change.Identity,
	}, false)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	return command.Accept(next.Permissions.Clone(), events...), nil
}

// ListPermissions returns the subproject permission map without the
// holders of subproject.close.
func ListPermissions(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, repo Repository) (permission.Permissions, error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return nil, err
	}
	if err := authorize(s, actor, permission.SubprojectListPermissions); err != nil {
		return nil, err
	}
	return permission.Exposable(s.Permissions, hiddenFromListing...), nil
}

// Get returns the subproject when the actor may view it.
func Get(ctx context.Context, actor identity.ServiceUser, projectID, subprojectID string, repo Repository) (Subproject, error) {
	s, err := fetch(ctx, repo, projectID, subprojectID)
	if err != nil {
		return Subproject{}, err
	}
	if !permission.Permits(s.Permissions, actor, permission.SubprojectView, permission.SubprojectViewDetails) {
		return Subproject{}, apperrors.NotAuthorized(actor.ID, string(permission.SubprojectView), string(permission.SubprojectViewDetails))
	}
	return s, nil
}

// Visible filters subprojects down to those the actor may view.
func Visible(actor identity.ServiceUser, subprojects []Subproject) []Subproject {
	out := make([]Subproject, 0, len(subprojects))
	for _, s := range subprojects {
		if permission.Permits(s.Permissions, actor, permission.SubprojectView, permission.SubprojectViewDetails) {
			out = append(out, s)
		}
	}
	return out
}
