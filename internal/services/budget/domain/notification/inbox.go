package notification

import (
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Notification is one inbox entry.
type Notification struct {
	ID            string
	Recipient     string
	Ref           Ref
	BusinessEvent event.Event
	IsRead        bool
	CreatedAt     time.Time
}

// Inbox is the folded notification list of one recipient, oldest first.
type Inbox struct {
	Recipient string
	Items     []Notification
}

// FoldInbox applies one notification event addressed to the inbox recipient.
func FoldInbox(inbox Inbox, evt event.Event) (Inbox, error) {
	switch evt.Type {
	case event.TypeNotificationCreated:
		var payload CreatedPayload
		if err := evt.Decode(&payload); err != nil {
			return inbox, err
		}
		if payload.Recipient != inbox.Recipient {
			return inbox, nil
		}
		items := append(inbox.Items[:len(inbox.Items):len(inbox.Items)], Notification{
			ID:        payload.NotificationID,
			Recipient: payload.Recipient,
			Ref: Ref{
				ProjectID:      payload.ProjectID,
				SubprojectID:   payload.SubprojectID,
				WorkflowitemID: payload.WorkflowitemID,
			},
			BusinessEvent: payload.BusinessEvent,
			CreatedAt:     evt.CreatedAt,
		})
		inbox.Items = items
	case event.TypeNotificationMarkedRead:
		var payload MarkedReadPayload
		if err := evt.Decode(&payload); err != nil {
			return inbox, err
		}
		if payload.Recipient != inbox.Recipient {
			return inbox, nil
		}
		for i := range inbox.Items {
			if inbox.Items[i].ID == payload.NotificationID && !inbox.Items[i].IsRead {
				items := append([]Notification(nil), inbox.Items...)
				items[i].IsRead = true
				inbox.Items = items
				break
			}
		}
	}
	return inbox, nil
}

// Unread counts notifications not yet marked read.
func (i Inbox) Unread() int {
	count := 0
	for _, n := range i.Items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// Find returns the notification with the given id.
func (i Inbox) Find(notificationID string) (Notification, bool) {
	for _, n := range i.Items {
		if n.ID == notificationID {
			return n, true
		}
	}
	return Notification{}, false
}

// MarkRead marks the listed notifications of the actor's inbox as read.
// Already-read notifications produce no event.
func MarkRead(env command.Env, actor identity.ServiceUser, inbox Inbox, notificationIDs []string) (command.Result[Inbox], error) {
	var events []event.Event
	next := inbox
	for _, notificationID := range notificationIDs {
		n, ok := next.Find(notificationID)
		if !ok {
			return command.Result[Inbox]{}, apperrors.NotFound("notification", notificationID)
		}
		if n.Recipient != actor.ID {
			return command.Result[Inbox]{}, apperrors.WithMetadata(
				apperrors.CodeNotificationNotOwned,
				"notification belongs to another user",
				map[string]string{"NotificationID": notificationID, "UserID": actor.ID},
			)
		}
		if n.IsRead {
			continue
		}
		evt, err := env.Event(event.TypeNotificationMarkedRead, actor.ID, MarkedReadPayload{
			NotificationID: notificationID,
			Recipient:      n.Recipient,
		})
		if err != nil {
			return command.Result[Inbox]{}, apperrors.Unexpected("build notification_marked_read", err)
		}
		if next, err = FoldInbox(next, evt); err != nil {
			return command.Result[Inbox]{}, apperrors.Unexpected("fold notification_marked_read", err)
		}
		events = append(events, evt)
	}
	return command.Accept(next, events...), nil
}
