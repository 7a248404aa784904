package engine

import (
	"context"

	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/repo"
)

func (e Engine) ListNotifications(ctx context.Context, actor auth.Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, repo.NotificationFilters{UserID: actor.UserID, UnreadOnly: unreadOnly, Limit: limit})
}

func (e Engine) MarkNotificationRead(ctx context.Context, actor auth.Actor, id string) error {
	return notFound(e.Repo.MarkNotificationRead(ctx, actor.UserID, id), "notification not found")
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, actor auth.Actor) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, actor.UserID)
}
