package app

import (
	"context"

	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/notification"
)

// ListNotifications returns the actor's inbox, newest first.
func (s *Service) ListNotifications(ctx context.Context, actor identity.ServiceUser) ([]notification.Notification, error) {
	return query(ctx, s, "notification.list", actor, func(ctx context.Context) ([]notification.Notification, error) {
		inbox, err := repository{s}.Inbox(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		out := make([]notification.Notification, len(inbox.Items))
		for i, item := range inbox.Items {
			out[len(out)-1-i] = item
		}
		return out, nil
	})
}

// CountUnreadNotifications returns the number of unread inbox items.
func (s *Service) CountUnreadNotifications(ctx context.Context, actor identity.ServiceUser) (int, error) {
	return query(ctx, s, "notification.count", actor, func(ctx context.Context) (int, error) {
		inbox, err := repository{s}.Inbox(ctx, actor.ID)
		if err != nil {
			return 0, err
		}
		return inbox.Unread(), nil
	})
}

// MarkNotificationsRead marks the listed notifications of the actor read.
func (s *Service) MarkNotificationsRead(ctx context.Context, actor identity.ServiceUser, notificationIDs []string) (int, error) {
	inbox, err := execute(ctx, s, "notification.markRead", actor, func(ctx context.Context, env command.Env) (command.Result[notification.Inbox], error) {
		inbox, err := repository{s}.Inbox(ctx, actor.ID)
		if err != nil {
			return command.Result[notification.Inbox]{}, err
		}
		return notification.MarkRead(env, actor, inbox, notificationIDs)
	})
	if err != nil {
		return 0, err
	}
	return inbox.Unread(), nil
}
