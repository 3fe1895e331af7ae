package event

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrCreatedByRequired indicates a missing author.
	ErrCreatedByRequired = errors.New("event createdBy is required")
	// ErrCreatedAtRequired indicates a missing timestamp.
	ErrCreatedAtRequired = errors.New("event createdAt is required")
	// ErrDataVersionInvalid indicates a non-positive schema version.
	ErrDataVersionInvalid = errors.New("event dataVersion must be positive")
	// ErrPayloadInvalid indicates a payload that is not a JSON object.
	ErrPayloadInvalid = errors.New("event data must be a JSON object")
	// ErrScopeIncomplete indicates a payload without the ids its stream needs.
	ErrScopeIncomplete = errors.New("event data lacks routing ids")
)

// StreamKind classifies ledger streams.
type StreamKind string

const (
	StreamKindGlobal        StreamKind = "global"
	StreamKindUsers         StreamKind = "users"
	StreamKindNotifications StreamKind = "notifications"
	StreamKindProject       StreamKind = "project"
	StreamKindOrganization  StreamKind = "organization"
)

// Well-known stream names and keys.
const (
	GlobalStream        = "global"
	UsersStream         = "users"
	NotificationsStream = "notifications"
	SelfKey             = "self"
	OrganizationKey     = "address"
)

// OrganizationStream names the per-organization stream.
func OrganizationStream(organization string) string {
	return "org-" + organization
}

// Reserved reports whether name is taken by a service-wide stream and so
// cannot be used as a project id.
func Reserved(name string) bool {
	switch name {
	case GlobalStream, UsersStream, NotificationsStream:
		return true
	}
	return strings.HasPrefix(name, "org-")
}

// Address locates one stream item.
type Address struct {
	Kind   StreamKind
	Stream string
	Key    string
}

type definition struct {
	kind  StreamKind
	route func(Scope) (stream, key string)
}

func routeGlobal(Scope) (string, string) { return GlobalStream, SelfKey }

func routeUser(s Scope) (string, string) { return UsersStream, s.UserID }

func routeGroup(s Scope) (string, string) { return UsersStream, s.GroupID }

func routeNotification(s Scope) (string, string) { return NotificationsStream, s.Recipient }

func routeProject(s Scope) (string, string) { return s.ProjectID, SelfKey }

func routeSubproject(s Scope) (string, string) {
	if s.ProjectID == "" {
		return "", ""
	}
	return s.ProjectID, s.SubprojectID
}

func routeWorkflowitem(s Scope) (string, string) {
	if s.ProjectID == "" || s.SubprojectID == "" {
		return "", ""
	}
	return s.ProjectID, s.WorkflowitemID
}

var definitions = map[Type]definition{
	TypeGlobalPermissionGranted: {StreamKindGlobal, routeGlobal},
	TypeGlobalPermissionRevoked: {StreamKindGlobal, routeGlobal},

	TypeUserCreated:        {StreamKindUsers, routeUser},
	TypeGroupCreated:       {StreamKindUsers, routeGroup},
	TypeGroupMemberAdded:   {StreamKindUsers, routeGroup},
	TypeGroupMemberRemoved: {StreamKindUsers, routeGroup},

	TypeProjectCreated:                {StreamKindProject, routeProject},
	TypeProjectUpdated:                {StreamKindProject, routeProject},
	TypeProjectAssigned:               {StreamKindProject, routeProject},
	TypeProjectClosed:                 {StreamKindProject, routeProject},
	TypeProjectPermissionGranted:      {StreamKindProject, routeProject},
	TypeProjectPermissionRevoked:      {StreamKindProject, routeProject},
	TypeProjectProjectedBudgetUpdated: {StreamKindProject, routeProject},
	TypeProjectProjectedBudgetDeleted: {StreamKindProject, routeProject},

	TypeSubprojectCreated:                {StreamKindProject, routeSubproject},
	TypeSubprojectUpdated:                {StreamKindProject, routeSubproject},
	TypeSubprojectAssigned:               {StreamKindProject, routeSubproject},
	TypeSubprojectClosed:                 {StreamKindProject, routeSubproject},
	TypeSubprojectPermissionGranted:      {StreamKindProject, routeSubproject},
	TypeSubprojectPermissionRevoked:      {StreamKindProject, routeSubproject},
	TypeSubprojectProjectedBudgetUpdated: {StreamKindProject, routeSubproject},
	TypeSubprojectProjectedBudgetDeleted: {StreamKindProject, routeSubproject},
	TypeSubprojectItemsReordered:         {StreamKindProject, routeSubproject},

	TypeWorkflowitemCreated:           {StreamKindProject, routeWorkflowitem},
	TypeWorkflowitemUpdated:           {StreamKindProject, routeWorkflowitem},
	TypeWorkflowitemAssigned:          {StreamKindProject, routeWorkflowitem},
	TypeWorkflowitemClosed:            {StreamKindProject, routeWorkflowitem},
	TypeWorkflowitemPermissionGranted: {StreamKindProject, routeWorkflowitem},
	TypeWorkflowitemPermissionRevoked: {StreamKindProject, routeWorkflowitem},

	TypeNotificationCreated:    {StreamKindNotifications, routeNotification},
	TypeNotificationMarkedRead: {StreamKindNotifications, routeNotification},
}

// Known reports whether t is part of the event vocabulary.
func Known(t Type) bool {
	_, ok := definitions[t]
	return ok
}

// Types returns the registered event types in lexical order.
func Types() []Type {
	types := make([]Type, 0, len(definitions))
	for t := range definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate checks the envelope of evt before it is appended.
func Validate(evt Event) error {
	if !Known(evt.Type) {
		return fmt.Errorf("%w: %q", ErrTypeUnknown, evt.Type)
	}
	if strings.TrimSpace(evt.CreatedBy) == "" {
		return ErrCreatedByRequired
	}
	if evt.CreatedAt.IsZero() {
		return ErrCreatedAtRequired
	}
	if evt.DataVersion <= 0 {
		return ErrDataVersionInvalid
	}
	if !isJSONObject(evt.Data) {
		return ErrPayloadInvalid
	}
	return nil
}

// Route validates evt and returns the stream item it belongs to.
func Route(evt Event) (Address, error) {
	if err := Validate(evt); err != nil {
		return Address{}, err
	}
	def := definitions[evt.Type]
	scope, err := evt.Scope()
	if err != nil {
		return Address{}, err
	}
	stream, key := def.route(scope)
	if stream == "" || key == "" {
		return Address{}, fmt.Errorf("%w: %s", ErrScopeIncomplete, evt.Type)
	}
	return Address{Kind: def.kind, Stream: stream, Key: key}, nil
}
