package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of business event.
type Type string

// Global permission events.
const (
	TypeGlobalPermissionGranted Type = "global_permission_granted"
	TypeGlobalPermissionRevoked Type = "global_permission_revoked"
)

// Directory events.
const (
	TypeUserCreated        Type = "user_created"
	TypeGroupCreated       Type = "group_created"
	TypeGroupMemberAdded   Type = "group_member_added"
	TypeGroupMemberRemoved Type = "group_member_removed"
)

// Project events.
const (
	TypeProjectCreated                Type = "project_created"
	TypeProjectUpdated                Type = "project_updated"
	TypeProjectAssigned               Type = "project_assigned"
	TypeProjectClosed                 Type = "project_closed"
	TypeProjectPermissionGranted      Type = "project_permission_granted"
	TypeProjectPermissionRevoked      Type = "project_permission_revoked"
	TypeProjectProjectedBudgetUpdated Type = "project_projected_budget_updated"
	TypeProjectProjectedBudgetDeleted Type = "project_projected_budget_deleted"
)

// Subproject events.
const (
	TypeSubprojectCreated                Type = "subproject_created"
	TypeSubprojectUpdated                Type = "subproject_updated"
	TypeSubprojectAssigned               Type = "subproject_assigned"
	TypeSubprojectClosed                 Type = "subproject_closed"
	TypeSubprojectPermissionGranted      Type = "subproject_permission_granted"
	TypeSubprojectPermissionRevoked      Type = "subproject_permission_revoked"
	TypeSubprojectProjectedBudgetUpdated Type = "subproject_projected_budget_updated"
	TypeSubprojectProjectedBudgetDeleted Type = "subproject_projected_budget_deleted"
	TypeSubprojectItemsReordered         Type = "subproject_items_reordered"
)

// Workflowitem events.
const (
	TypeWorkflowitemCreated           Type = "workflowitem_created"
	TypeWorkflowitemUpdated           Type = "workflowitem_updated"
	TypeWorkflowitemAssigned          Type = "workflowitem_assigned"
	TypeWorkflowitemClosed            Type = "workflowitem_closed"
	TypeWorkflowitemPermissionGranted Type = "workflowitem_permission_granted"
	TypeWorkflowitemPermissionRevoked Type = "workflowitem_permission_revoked"
)

// Notification events.
const (
	TypeNotificationCreated    Type = "notification_created"
	TypeNotificationMarkedRead Type = "notification_marked_read"
)

// CurrentDataVersion is the payload schema version written by this service.
const CurrentDataVersion = 1

// Event is an immutable business event. Data holds the variant payload as a
// JSON object.
type Event struct {
	Type        Type            `json:"type"`
	Source      string          `json:"source,omitempty"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	DataVersion int             `json:"dataVersion"`
	Data        json.RawMessage `json:"data"`
}

// New builds an event at the current data version with data encoded as JSON.
func New(typ Type, createdBy string, createdAt time.Time, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Event{
		Type:        typ,
		CreatedBy:   createdBy,
		CreatedAt:   createdAt.UTC(),
		DataVersion: CurrentDataVersion,
		Data:        raw,
	}, nil
}

// Decode unmarshals the event payload into target.
func (e Event) Decode(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Domain returns the aggregate prefix of the type (e.g. "subproject").
func (t Type) Domain() string {
	if idx := strings.IndexByte(string(t), '_'); idx > 0 {
		return string(t[:idx])
	}
	return string(t)
}

// Scope holds the routing ids every payload carries next to its variant body.
type Scope struct {
	ProjectID      string `json:"projectId,omitempty"`
	SubprojectID   string `json:"subprojectId,omitempty"`
	WorkflowitemID string `json:"workflowitemId,omitempty"`
	Recipient      string `json:"recipient,omitempty"`
	UserID         string `json:"userId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// Scope decodes the routing ids from the payload.
func (e Event) Scope() (Scope, error) {
	var scope Scope
	if err := e.Decode(&scope); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
