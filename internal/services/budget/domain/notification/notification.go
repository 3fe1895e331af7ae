// Package notification derives per-recipient notifications from state
// changes and folds each recipient's inbox.
package notification

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Ref points at the aggregate a notification is about.
type Ref struct {
	ProjectID      string `json:"projectId,omitempty"`
	SubprojectID   string `json:"subprojectId,omitempty"`
	WorkflowitemID string `json:"workflowitemId,omitempty"`
}

// CreatedPayload is the payload of notification_created.
type CreatedPayload struct {
	NotificationID string      `json:"notificationId"`
	Recipient      string      `json:"recipient"`
	ProjectID      string      `json:"projectId,omitempty"`
	SubprojectID   string      `json:"subprojectId,omitempty"`
	WorkflowitemID string      `json:"workflowitemId,omitempty"`
	BusinessEvent  event.Event `json:"businessEvent"`
}

// MarkedReadPayload is the payload of notification_marked_read.
type MarkedReadPayload struct {
	NotificationID string `json:"notificationId"`
	Recipient      string `json:"recipient"`
}

// Recipients resolves assignee into users and drops the acting user. An
// empty assignee has no recipients.
func Recipients(ctx context.Context, resolver identity.Resolver, assignee string, actor identity.ServiceUser) ([]string, error) {
	if assignee == "" {
		return nil, nil
	}
	if assignee == actor.ID {
		return nil, nil
	}
	users, err := resolver.UsersForIdentity(ctx, assignee)
	if err != nil {
		if apperrors.GetCode(err) != apperrors.CodeUnknown {
			return nil, err
		}
		return nil, apperrors.Unexpected(fmt.Sprintf("resolve assignee %q", assignee), err)
	}
	recipients := make([]string, 0, len(users))
	for _, user := range users {
		if user == "" || user == actor.ID || slices.Contains(recipients, user) {
			continue
		}
		recipients = append(recipients, user)
	}
	return recipients, nil
}

// Derive returns one notification_created event per recipient of assignee,
// each wrapping cause.
func Derive(ctx context.Context, env command.Env, resolver identity.Resolver, actor identity.ServiceUser, assignee string, ref Ref, cause event.Event) ([]event.Event, error) {
	recipients, err := Recipients(ctx, resolver, assignee, actor)
	if err != nil {
		return nil, err
	}
	events := make([]event.Event, 0, len(recipients))
	for _, recipient := range recipients {
		notificationID, err := env.ID()
		if err != nil {
			return nil, apperrors.Unexpected("generate notification id", err)
		}
		evt, err := env.Event(event.TypeNotificationCreated, actor.ID, CreatedPayload{
			NotificationID: notificationID,
			Recipient:      recipient,
			ProjectID:      ref.ProjectID,
			SubprojectID:   ref.SubprojectID,
			WorkflowitemID: ref.WorkflowitemID,
			BusinessEvent:  cause,
		})
		if err != nil {
			return nil, apperrors.Unexpected("build notification", err)
		}
		events = append(events, evt)
	}
	return events, nil
}
