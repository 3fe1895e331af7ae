// Package workflowitem folds workflowitems from their project stream,
// decides workflowitem commands, and lists them per viewer with ordering
// and history redaction applied.
package workflowitem

import (
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
)

// Status is the lifecycle state of a workflowitem.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// AmountType classifies the money a workflowitem moves.
type AmountType string

const (
	AmountNone      AmountType = "N/A"
	AmountAllocated AmountType = "allocated"
	AmountDisbursed AmountType = "disbursed"
)

// Workflowitem is the state folded from the workflowitem's events.
type Workflowitem struct {
	ID           string
	ProjectID    string
	SubprojectID string
	CreatedAt    time.Time
	Status       Status
	DisplayName  string
	Description  string
	Assignee     string
	AmountType   AmountType
	Amount       string
	Currency     string
	Permissions  permission.Permissions
	Log          []event.TraceEvent
}

// CreatedPayload is the payload of workflowitem_created.
type CreatedPayload struct {
	ProjectID      string                 `json:"projectId"`
	SubprojectID   string                 `json:"subprojectId"`
	WorkflowitemID string                 `json:"workflowitemId"`
	DisplayName    string                 `json:"displayName"`
	Description    string                 `json:"description"`
	Assignee       string                 `json:"assignee"`
	AmountType     AmountType             `json:"amountType"`
	Amount         string                 `json:"amount,omitempty"`
	Currency       string                 `json:"currency,omitempty"`
	Permissions    permission.Permissions `json:"permissions"`
}

// UpdatedPayload is the payload of workflowitem_updated. Empty fields are unchanged.
type UpdatedPayload struct {
	ProjectID      string `json:"projectId"`
	SubprojectID   string `json:"subprojectId"`
	WorkflowitemID string `json:"workflowitemId"`
	DisplayName    string `json:"displayName,omitempty"`
	Description    string `json:"description,omitempty"`
	Amount         string `json:"amount,omitempty"`
}

// AssignedPayload is the payload of workflowitem_assigned.
type AssignedPayload struct {
	ProjectID      string `json:"projectId"`
	SubprojectID   string `json:"subprojectId"`
	WorkflowitemID string `json:"workflowitemId"`
	Assignee       string `json:"assignee"`
}

// ClosedPayload is the payload of workflowitem_closed.
type ClosedPayload struct {
	ProjectID      string `json:"projectId"`
	SubprojectID   string `json:"subprojectId"`
	WorkflowitemID string `json:"workflowitemId"`
}

// PermissionPayload is the payload of workflowitem_permission_granted and
// workflowitem_permission_revoked.
type PermissionPayload struct {
	ProjectID      string            `json:"projectId"`
	SubprojectID   string            `json:"subprojectId"`
	WorkflowitemID string            `json:"workflowitemId"`
	Intent         permission.Intent `json:"intent"`
	Identity       string            `json:"identity"`
}

// Fold applies one workflowitem event and appends it to the log.
func Fold(w Workflowitem, evt event.Event) (Workflowitem, error) {
	switch evt.Type {
	case event.TypeWorkflowitemCreated:
		var payload CreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return w, err
		}
		w = Workflowitem{
			ID:           payload.WorkflowitemID,
			ProjectID:    payload.ProjectID,
			SubprojectID: payload.SubprojectID,
			CreatedAt:    evt.CreatedAt,
			Status:       StatusOpen,
			DisplayName:  payload.DisplayName,
			Description:  payload.Description,
			Assignee:     payload.Assignee,
			AmountType:   payload.AmountType,
			Amount:       payload.Amount,
			Currency:     payload.Currency,
			Permissions:  payload.Permissions.Clone(),
		}
	case event.TypeWorkflowitemUpdated:
		var payload UpdatedPayload
		if err := evt.Decode(&payload); err != nil {
			return w, err
		}
		if payload.DisplayName != "" {
			w.DisplayName = payload.DisplayName
		}
		if payload.Description != "" {
			w.Description = payload.Description
		}
		if payload.Amount != "" {
			w.Amount = payload.Amount
		}
	case event.TypeWorkflowitemAssigned:
		var payload AssignedPayload
		if err := evt.Decode(&payload); err != nil {
			return w, err
		}
		w.Assignee = payload.Assignee
	case event.TypeWorkflowitemClosed:
		w.Status = StatusClosed
	case event.TypeWorkflowitemPermissionGranted, event.TypeWorkflowitemPermissionRevoked:
		var payload PermissionPayload
		if err := evt.Decode(&payload); err != nil {
			return w, err
		}
		w.Permissions = w.Permissions.Apply(permission.Change{
			Intent:   payload.Intent,
			Identity: payload.Identity,
			Grant:    evt.Type == event.TypeWorkflowitemPermissionGranted,
		})
	default:
		return w, nil
	}
	w.Log = append(w.Log[:len(w.Log):len(w.Log)], event.TraceEvent{
		BusinessEvent: evt,
		Snapshot:      event.Snapshot{DisplayName: w.DisplayName},
	})
	return w, nil
}

// FromEvents folds the workflowitems of one subproject, in creation order.
func FromEvents(projectID, subprojectID string, events []event.Event) ([]Workflowitem, error) {
	byID := map[string]Workflowitem{}
	var order []string
	for _, evt := range events {
		if evt.Type.Domain() != "workflowitem" {
			continue
		}
		scope, err := evt.Scope()
		if err != nil {
			return nil, apperrors.Unexpected("read workflowitem scope", err)
		}
		if scope.ProjectID != projectID || scope.SubprojectID != subprojectID {
			continue
		}
		current, seen := byID[scope.WorkflowitemID]
		if !seen && evt.Type != event.TypeWorkflowitemCreated {
			continue
		}
		next, err := Fold(current, evt)
		if err != nil {
			return nil, apperrors.Unexpected("fold workflowitem "+scope.WorkflowitemID, err)
		}
		if !seen {
			order = append(order, scope.WorkflowitemID)
		}
		byID[scope.WorkflowitemID] = next
	}
	out := make([]Workflowitem, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}
