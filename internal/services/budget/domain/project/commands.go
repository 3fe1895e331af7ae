package project

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
)

// Repository is the read access project commands need.
type Repository interface {
	GetProject(ctx context.Context, projectID string) (Project, error)
	identity.Resolver
}

// CreateRepository is the read access Create needs.
type CreateRepository interface {
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	GlobalPermissions(ctx context.Context) (permission.Permissions, error)
	identity.Resolver
}

// CloseRepository is the read access Close needs.
type CloseRepository interface {
	Repository
	CountOpenSubprojects(ctx context.Context, projectID string) (int, error)
}

// NewProject is the input of Create. An empty ID is generated and an empty
// assignee defaults to the creator.
type NewProject struct {
	ID               string
	DisplayName      string
	Description      string
	Assignee         string
	ProjectedBudgets []money.ProjectedBudget
}

// Update is the input of UpdateDetails. Empty fields are unchanged.
type Update struct {
	DisplayName string
	Description string
}

func fetch(ctx context.Context, repo Repository, projectID string) (Project, error) {
	p, err := repo.GetProject(ctx, projectID)
	if err != nil {
		notFound := apperrors.NotFound("project", projectID)
		notFound.Cause = err
		return Project{}, notFound
	}
	return p, nil
}

func authorize(p Project, actor identity.ServiceUser, intents ...permission.Intent) error {
	if permission.Permits(p.Permissions, actor, intents...) {
		return nil
	}
	names := make([]string, len(intents))
	for i, intent := range intents {
		names[i] = string(intent)
	}
	return apperrors.NotAuthorized(actor.ID, names...)
}

func requireOpen(p Project) error {
	if p.Status == StatusClosed {
		return apperrors.WithMetadata(apperrors.CodeAggregateClosed, fmt.Sprintf("project %q is closed", p.ID), map[string]string{"ProjectID": p.ID})
	}
	return nil
}

// emit builds evt, folds it into p and derives notifications for the
// assignee of the resulting state.
func emit(ctx context.Context, env command.Env, resolver identity.Resolver, actor identity.ServiceUser, p Project, typ event.Type, payload any, notify bool) (Project, []event.Event, error) {
	evt, err := env.Event(typ, actor.ID, payload)
	if err != nil {
		return p, nil, apperrors.Unexpected("build "+string(typ), err)
	}
	next, err := Fold(p, evt)
	if err != nil {
		return p, nil, apperrors.Unexpected("fold "+string(typ), err)
	}
	events := []event.Event{evt}
	if notify {
		notifications, err := notification.Derive(ctx, env, resolver, actor, next.Assignee, notification.Ref{ProjectID: p.ID}, evt)
		if err != nil {
			return p, nil, err
		}
		events = append(events, notifications...)
	}
	return next, events, nil
}

// Create starts a new project. The creator receives every project intent.
func Create(ctx context.Context, env command.Env, actor identity.ServiceUser, input NewProject, repo CreateRepository) (command.Result[Project], error) {
	global, err := repo.GlobalPermissions(ctx)
	if err != nil {
		return command.Result[Project]{}, apperrors.Unexpected("read global permissions", err)
	}
	if !permission.Permits(global, actor, permission.GlobalCreateProject) {
		return command.Result[Project]{}, apperrors.NotAuthorized(actor.ID, string(permission.GlobalCreateProject))
	}
	if err := permission.RequireResolvable(ctx, repo, actor.ID); err != nil {
		return command.Result[Project]{}, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return command.Result[Project]{}, apperrors.InvalidInput(apperrors.CodeDisplayNameEmpty, "project display name is required")
	}
	budgets := make([]money.ProjectedBudget, 0, len(input.ProjectedBudgets))
	for _, b := range input.ProjectedBudgets {
		valid, err := money.NewProjectedBudget(b.Organization, b.Value, b.CurrencyCode)
		if err != nil {
			return command.Result[Project]{}, err
		}
		budgets = money.Upsert(budgets, valid)
	}
	projectID := strings.TrimSpace(input.ID)
	if projectID == "" {
		if projectID, err = env.ID(); err != nil {
			return command.Result[Project]{}, apperrors.Unexpected("generate project id", err)
		}
	}
	if event.Reserved(projectID) {
		return command.Result[Project]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, fmt.Sprintf("project id %q is reserved", projectID))
	}
	exists, err := repo.ProjectExists(ctx, projectID)
	if err != nil {
		return command.Result[Project]{}, apperrors.Unexpected("check project "+projectID, err)
	}
	if exists {
		return command.Result[Project]{}, apperrors.WithMetadata(apperrors.CodeAlreadyExists, fmt.Sprintf("project %q already exists", projectID), map[string]string{"ProjectID": projectID})
	}
	assignee := strings.TrimSpace(input.Assignee)
	if assignee == "" {
		assignee = actor.ID
	}
	next, events, err := emit(ctx, env, nil, actor, Project{}, event.TypeProjectCreated, CreatedPayload{
		ProjectID:        projectID,
		DisplayName:      displayName,
		Description:      strings.TrimSpace(input.Description),
		Assignee:         assignee,
		ProjectedBudgets: budgets,
		Permissions:      permission.Creator(permission.ScopeProject, actor.ID),
	}, false)
	if err != nil {
		return command.Result[Project]{}, err
	}
	return command.Accept(next, events...), nil
}

// Assign hands the project to a user or group and notifies the new assignee.
// Assigning the current assignee is accepted without events.
func Assign(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, assignee string, repo Repository) (command.Result[Project], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[Project]{}, err
	}
	if err := authorize(p, actor, permission.ProjectAssign); err != nil {
		return command.Result[Project]{}, err
	}
	if err := requireOpen(p); err != nil {
		return command.Result[Project]{}, err
	}
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return command.Result[Project]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "assignee is required")
	}
	if assignee == p.Assignee {
		return command.Accept(p), nil
	}
	next, events, err := emit(ctx, env, repo, actor, p, event.TypeProjectAssigned, AssignedPayload{ProjectID: p.ID, Assignee: assignee}, true)
	if err != nil {
		return command.Result[Project]{}, err
	}
	return command.Accept(next, events...), nil
}

// UpdateDetails changes the display fields and notifies the assignee.
func UpdateDetails(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID string, update Update, repo Repository) (command.Result[Project], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[Project]{}, err
	}
	if err := authorize(p, actor, permission.ProjectUpdate); err != nil {
		return command.Result[Project]{}, err
	}
	if err := requireOpen(p); err != nil {
		return command.Result[Project]{}, err
	}
	payload := UpdatedPayload{
		ProjectID:   p.ID,
		DisplayName: strings.TrimSpace(update.DisplayName),
		Description: strings.TrimSpace(update.Description),
	}
	if payload.DisplayName == "" && payload.Description == "" {
		return command.Result[Project]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, "project update requires fields")
	}
	next, events, err := emit(ctx, env, repo, actor, p, event.TypeProjectUpdated, payload, true)
	if err != nil {
		return command.Result[Project]{}, err
	}
	return command.Accept(next, events...), nil
}

// Close finishes a project whose subprojects are all closed.
func Close(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID string, repo CloseRepository) (command.Result[Project], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[Project]{}, err
	}
	if err := authorize(p, actor, permission.ProjectClose); err != nil {
		return command.Result[Project]{}, err
	}
	if err := requireOpen(p); err != nil {
		return command.Result[Project]{}, err
	}
	open, err := repo.CountOpenSubprojects(ctx, p.ID)
	if err != nil {
		return command.Result[Project]{}, apperrors.Unexpected("count open subprojects", err)
	}
	if open > 0 {
		return command.Result[Project]{}, apperrors.InvalidInput(apperrors.CodeInvalidInput, fmt.Sprintf("project %q has %d open subprojects", p.ID, open))
	}
	next, events, err := emit(ctx, env, repo, actor, p, event.TypeProjectClosed, ClosedPayload{ProjectID: p.ID}, true)
	if err != nil {
		return command.Result[Project]{}, err
	}
	return command.Accept(next, events...), nil
}

// UpdateProjectedBudget sets the value of the (organization, currencyCode)
// projected budget, appending the pair when it is new, and notifies the
// assignee.
func UpdateProjectedBudget(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, organization, value, currencyCode string, repo Repository) (command.Result[[]money.ProjectedBudget], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	if err := authorize(p, actor, permission.ProjectBudgetUpdateProjected); err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	budget, err := money.NewProjectedBudget(organization, value, currencyCode)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	next, events, err := emit(ctx, env, repo, actor, p, event.TypeProjectProjectedBudgetUpdated, ProjectedBudgetUpdatedPayload{
		ProjectID:    p.ID,
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
func DeleteProjectedBudget(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID, organization, currencyCode string, repo Repository) (command.Result[[]money.ProjectedBudget], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	if err := authorize(p, actor, permission.ProjectBudgetDeleteProjected); err != nil {
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
	if _, ok := money.Find(p.ProjectedBudgets, org, code); !ok {
		return command.Accept(p.ProjectedBudgets), nil
	}
	next, events, err := emit(ctx, env, repo, actor, p, event.TypeProjectProjectedBudgetDeleted, ProjectedBudgetDeletedPayload{
		ProjectID:    p.ID,
		Organization: org,
		CurrencyCode: code,
	}, true)
	if err != nil {
		return command.Result[[]money.ProjectedBudget]{}, err
	}
	return command.Accept(next.ProjectedBudgets, events...), nil
}

// ChangePermission grants or revokes an intent on the project.
func ChangePermission(ctx context.Context, env command.Env, actor identity.ServiceUser, projectID string, change permission.Change, repo Repository) (command.Result[permission.Permissions], error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	change, changed, err := permission.DecideResolved(ctx, repo, p.Permissions, actor, permission.ScopeProject, change)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	if !changed {
		return command.Accept(p.Permissions.Clone()), nil
	}
	typ := event.TypeProjectPermissionGranted
	if !change.Grant {
		typ = event.TypeProjectPermissionRevoked
	}
	next, events, err := emit(ctx, env, repo, actor, p, typ, PermissionPayload{
		ProjectID: p.ID,
		Intent:    change.Intent,
		Identity:  change.Identity,
	}, false)
	if err != nil {
		return command.Result[permission.Permissions]{}, err
	}
	return command.Accept(next.Permissions.Clone(), events...), nil
}

// ListPermissions returns the project permission map.
func ListPermissions(ctx context.Context, actor identity.ServiceUser, projectID string, repo Repository) (permission.Permissions, error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, actor, permission.ProjectListPermissions); err != nil {
		return nil, err
	}
	return p.Permissions.Clone(), nil
}

// Get returns the project when the actor may view it.
func Get(ctx context.Context, actor identity.ServiceUser, projectID string, repo Repository) (Project, error) {
	p, err := fetch(ctx, repo, projectID)
	if err != nil {
		return Project{}, err
	}
	if err := authorize(p, actor, permission.ProjectView, permission.ProjectViewDetails); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Visible filters projects down to those the actor may view.
func Visible(actor identity.ServiceUser, projects []Project) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		if permission.Permits(p.Permissions, actor, permission.ProjectView, permission.ProjectViewDetails) {
			out = append(out, p)
		}
	}
	return out
}
