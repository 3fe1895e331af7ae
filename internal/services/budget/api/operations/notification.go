package operations

import (
	"context"
	"encoding/json"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/platform/pagination"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

var notificationPage = pagination.PageSizeConfig{Default: 50, Max: 200}

func init() {
	register(
		Operation{Name: "notification.list", Method: Read, Handle: handle(listNotifications)},
		Operation{Name: "notification.count", Method: Read, Handle: handle(countNotifications)},
		Operation{Name: "notification.markRead", Method: Write, Handle: handle(markNotificationsRead)},
	)
}

func listNotifications(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in listWindow) (any, error) {
	limit, err := windowValue(in.Limit, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := windowValue(in.Offset, "offset")
	if err != nil {
		return nil, err
	}
	notifications, err := svc.ListNotifications(ctx, actor)
	if err != nil {
		return nil, err
	}
	page := pagination.Window(notifications, offset, pagination.ClampPageSize(limit, notificationPage))
	items := make([]notificationView, len(page))
	for i, n := range page {
		items[i] = newNotificationView(n)
	}
	return map[string]any{"notifications": items, "total": len(notifications)}, nil
}

func windowValue(value json.Number, field string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := value.Int64()
	if err != nil {
		return 0, apperrors.WithMetadata(apperrors.CodeInvalidInput, "invalid "+field, map[string]string{"Fields": field})
	}
	return int(n), nil
}

func countNotifications(ctx context.Context, svc *app.Service, actor identity.ServiceUser, _ noInput) (any, error) {
	count, err := svc.CountUnreadNotifications(ctx, actor)
	if err != nil {
		return nil, err
	}
	return map[string]int{"notificationCount": count}, nil
}

func markNotificationsRead(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in markReadRequest) (any, error) {
	unread, err := svc.MarkNotificationsRead(ctx, actor, in.NotificationIDs)
	if err != nil {
		return nil, err
	}
	return map[string]int{"notificationCount": unread}, nil
}
