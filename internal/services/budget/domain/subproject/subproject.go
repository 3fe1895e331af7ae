// Package subproject folds subproject aggregates from their project stream
// and decides subproject commands.
package subproject

import (
	"slices"
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/money"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// Status is the lifecycle state of a subproject.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Subproject is the state folded from the subproject's events.
type Subproject struct {
	ID                   string
	ProjectID            string
	CreatedAt            time.Time
	Status               Status
	DisplayName          string
	Description          string
	Assignee             string
	Currency             string
	ProjectedBudgets     []money.ProjectedBudget
	WorkflowitemOrdering []string
	Permissions          permission.Permissions
	Log                  []event.TraceEvent
}

// CreatedPayload is the payload of subproject_created.
type CreatedPayload struct {
	ProjectID        string                  `json:"projectId"`
	SubprojectID     string                  `json:"subprojectId"`
	DisplayName      string                  `json:"displayName"`
	Description      string                  `json:"description"`
	Assignee         string                  `json:"assignee"`
	Currency         string                  `json:"currency"`
	ProjectedBudgets []money.ProjectedBudget `json:"projectedBudgets"`
	Permissions      permission.Permissions  `json:"permissions"`
}

// UpdatedPayload is the payload of subproject_updated. Empty fields are unchanged.
type UpdatedPayload struct {
	ProjectID    string `json:"projectId"`
	SubprojectID string `json:"subprojectId"`
	DisplayName  string `json:"displayName,omitempty"`
	Description  string `json:"description,omitempty"`
}

// AssignedPayload is the payload of subproject_assigned.
type AssignedPayload struct {
	ProjectID    string `json:"projectId"`
	SubprojectID string `json:"subprojectId"`
	Assignee     string `json:"assignee"`
}

// ClosedPayload is the payload of subproject_closed.
type ClosedPayload struct {
	ProjectID    string `json:"projectId"`
	SubprojectID string `json:"subprojectId"`
}

// PermissionPayload is the payload of subproject_permission_granted and
// subproject_permission_revoked.
type PermissionPayload struct {
	ProjectID    string            `json:"projectId"`
	SubprojectID string            `json:"subprojectId"`
	Intent       permission.Intent `json:"intent"`
	Identity     string            `json:"identity"`
}

// ProjectedBudgetUpdatedPayload is the payload of subproject_projected_budget_updated.
type ProjectedBudgetUpdatedPayload struct {
	ProjectID    string `json:"projectId"`
	SubprojectID string `json:"subprojectId"`
	Organization string `json:"organization"`
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// ProjectedBudgetDeletedPayload is the payload of subproject_projected_budget_deleted.
type ProjectedBudgetDeletedPayload struct {
	ProjectID    string `json:"projectId"`
	SubprojectID string `json:"subprojectId"`
	Organization string `json:"organization"`
	CurrencyCode string `json:"currencyCode"`
}

// ItemsReorderedPayload is the payload of subproject_items_reordered.
type ItemsReorderedPayload struct {
	ProjectID    string   `json:"projectId"`
	SubprojectID string   `json:"subprojectId"`
	Ordering     []string `json:"ordering"`
}

// Fold applies one subproject event and appends it to the log.
func Fold(s Subproject, evt event.Event) (Subproject, error) {
	switch evt.Type {
	case event.TypeSubprojectCreated:
		var payload CreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s = Subproject{
			ID:               payload.SubprojectID,
			ProjectID:        payload.ProjectID,
			CreatedAt:        evt.CreatedAt,
			Status:           StatusOpen,
			DisplayName:      payload.DisplayName,
			Description:      payload.Description,
			Assignee:         payload.Assignee,
			Currency:         payload.Currency,
			ProjectedBudgets: slices.Clone(payload.ProjectedBudgets),
			Permissions:      payload.Permissions.Clone(),
		}
	case event.TypeSubprojectUpdated:
		var payload UpdatedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		if payload.DisplayName != "" {
			s.DisplayName = payload.DisplayName
		}
		if payload.Description != "" {
			s.Description = payload.Description
		}
	case event.TypeSubprojectAssigned:
		var payload AssignedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s.Assignee = payload.Assignee
	case event.TypeSubprojectClosed:
		s.Status = StatusClosed
	case event.TypeSubprojectPermissionGranted, event.TypeSubprojectPermissionRevoked:
		var payload PermissionPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s.Permissions = s.Permissions.Apply(permission.Change{
			Intent:   payload.Intent,
			Identity: payload.Identity,
			Grant:    evt.Type == event.TypeSubprojectPermissionGranted,
		})
	case event.TypeSubprojectProjectedBudgetUpdated:
		var payload ProjectedBudgetUpdatedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s.ProjectedBudgets = money.Upsert(s.ProjectedBudgets, money.ProjectedBudget{
			Organization: payload.Organization,
			Value:        payload.Value,
			CurrencyCode: payload.CurrencyCode,
		})
	case event.TypeSubprojectProjectedBudgetDeleted:
		var payload ProjectedBudgetDeletedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s.ProjectedBudgets, _ = money.Remove(s.ProjectedBudgets, payload.Organization, payload.CurrencyCode)
	case event.TypeSubprojectItemsReordered:
		var payload ItemsReorderedPayload
		if err := evt.Decode(&payload); err != nil {
			return s, err
		}
		s.WorkflowitemOrdering = slices.Clone(payload.Ordering)
	default:
		return s, nil
	}
	s.Log = append(s.Log[:len(s.Log):len(s.Log)], event.TraceEvent{
		BusinessEvent: evt,
		Snapshot:      event.Snapshot{DisplayName: s.DisplayName},
	})
	return s, nil
}

// FromEvents folds every subproject of a project stream, in creation order.
func FromEvents(projectID string, events []event.Event) ([]Subproject, error) {
	byID := map[string]Subproject{}
	var order []string
	for _, evt := range events {
		if evt.Type.Domain() != "subproject" {
			continue
		}
		scope, err := evt.Scope()
		if err != nil {
			return nil, apperrors.Unexpected("read subproject scope", err)
		}
		if scope.ProjectID != projectID {
			continue
		}
		current, seen := byID[scope.SubprojectID]
		if !seen && evt.Type != event.TypeSubprojectCreated {
			continue
		}
		next, err := Fold(current, evt)
		if err != nil {
			return nil, apperrors.Unexpected("fold subproject "+scope.SubprojectID, err)
		}
		if !seen {
			order = append(order, scope.SubprojectID)
		}
		byID[scope.SubprojectID] = next
	}
	out := make([]Subproject, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// Find folds one subproject of a project stream. It fails with NotFound
// when the subproject was never created.
func Find(projectID, subprojectID string, events []event.Event) (Subproject, error) {
	all, err := FromEvents(projectID, events)
	if err != nil {
		return Subproject{}, err
	}
	for _, s := range all {
		if s.ID == subprojectID {
			return s, nil
		}
	}
	return Subproject{}, apperrors.NotFound("subproject", subprojectID)
}
