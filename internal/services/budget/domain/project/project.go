// Package project folds project aggregates from their stream and decides
// project commands.
package project

import (
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Project is the state folded from the project's own events.
type Project struct {
	ID               string
	CreatedAt        time.Time
	Status           Status
	DisplayName      string
	Description      string
	Assignee         string
	ProjectedBudgets []money.ProjectedBudget
	Permissions      permission.Permissions
	Log              []event.TraceEvent
}

// CreatedPayload is the payload of project_created.
type CreatedPayload struct {
	ProjectID        string                  `json:"projectId"`
	DisplayName      string                  `json:"displayName"`
	Description      string                  `json:"description"`
	Assignee         string                  `json:"assignee"`
	ProjectedBudgets []money.ProjectedBudget `json:"projectedBudgets"`
	Permissions      permission.Permissions  `json:"permissions"`
}

// UpdatedPayload is the payload of project_updated. Empty fields are unchanged.
type UpdatedPayload struct {
	ProjectID   string `json:"projectId"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// AssignedPayload is the payload of project_assigned.
type AssignedPayload struct {
	ProjectID string `json:"projectId"`
	Assignee  string `json:"assignee"`
}

// ClosedPayload is the payload of project_closed.
type ClosedPayload struct {
	ProjectID string `json:"projectId"`
}

// PermissionPayload is the payload of project_permission_granted and
// project_permission_revoked.
type PermissionPayload struct {
	ProjectID string            `json:"projectId"`
	Intent    permission.Intent `json:"intent"`
	Identity  string            `json:"identity"`
}

// ProjectedBudgetUpdatedPayload is the payload of project_projected_budget_updated.
type ProjectedBudgetUpdatedPayload struct {
	ProjectID    string `json:"projectId"`
	Organization string `json:"organization"`
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// ProjectedBudgetDeletedPayload is the payload of project_projected_budget_deleted.
type ProjectedBudgetDeletedPayload struct {
	ProjectID    string `json:"projectId"`
	Organization string `json:"organization"`
	CurrencyCode string `json:"currencyCode"`
}

// Fold applies one project event. Every applied event is appended to the
// project log.
func Fold(p Project, evt event.Event) (Project, error) {
	switch evt.Type {
	case event.TypeProjectCreated:
		var payload CreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		p = Project{
			ID:               payload.ProjectID,
			CreatedAt:        evt.CreatedAt,
			Status:           StatusOpen,
			DisplayName:      payload.DisplayName,
			Description:      payload.Description,
			Assignee:         payload.Assignee,
			ProjectedBudgets: append([]money.ProjectedBudget(nil), payload.ProjectedBudgets...),
			Permissions:      payload.Permissions.Clone(),
		}
	case event.TypeProjectUpdated:
		var payload UpdatedPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		if payload.DisplayName != "" {
			p.DisplayName = payload.DisplayName
		}
		if payload.Description != "" {
			p.Description = payload.Description
		}
	case event.TypeProjectAssigned:
		var payload AssignedPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		p.Assignee = payload.Assignee
	case event.TypeProjectClosed:
		p.Status = StatusClosed
	case event.TypeProjectPermissionGranted, event.TypeProjectPermissionRevoked:
		var payload PermissionPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		p.Permissions = p.Permissions.Apply(permission.Change{
			Intent:   payload.Intent,
			Identity: payload.Identity,
			Grant:    evt.Type == event.TypeProjectPermissionGranted,
		})
	case event.TypeProjectProjectedBudgetUpdated:
		var payload ProjectedBudgetUpdatedPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		p.ProjectedBudgets = money.Upsert(p.ProjectedBudgets, money.ProjectedBudget{
			Organization: payload.Organization,
			Value:        payload.Value,
			CurrencyCode: payload.CurrencyCode,
		})
	case event.TypeProjectProjectedBudgetDeleted:
		var payload ProjectedBudgetDeletedPayload
		if err := evt.Decode(&payload); err != nil {
			return p, err
		}
		p.ProjectedBudgets, _ = money.Remove(p.ProjectedBudgets, payload.Organization, payload.CurrencyCode)
	default:
		return p, nil
	}
	p.Log = append(p.Log[:len(p.Log):len(p.Log)], event.TraceEvent{
		BusinessEvent: evt,
		Snapshot:      event.Snapshot{DisplayName: p.DisplayName},
	})
	return p, nil
}

// FromEvents folds the project-level events of a project stream. It fails
// with NotFound when the stream holds no project_created event.
func FromEvents(projectID string, events []event.Event) (Project, error) {
	var p Project
	for _, evt := range events {
		if evt.Type.Domain() != "project" {
			continue
		}
		var err error
		if p, err = Fold(p, evt); err != nil {
			return Project{}, apperrors.Unexpected("fold project "+projectID, err)
		}
	}
	if p.ID == "" {
		return Project{}, apperrors.NotFound("project", projectID)
	}
	return p, nil
}
