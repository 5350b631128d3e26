package service

import (
	"context"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// NotificationService exposes the caller's notification inbox
type NotificationService struct {
	store repository.Store
	log   *logger.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(store repository.Store, log *logger.Logger) *NotificationService {
	return &NotificationService{store: store, log: log.Component("notifications")}
}

func (s *NotificationService) List(ctx context.Context, caller Caller, unreadOnly bool, limit int) ([]*repository.Notification, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	limit, _ = pagination(1, limit)
	return s.store.Notifications().ListByUser(ctx, caller.ID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id string, caller Caller) error {
	if err := caller.validate(); err != nil {
		return err
	}
	return s.store.Notifications().MarkRead(ctx, id, caller.ID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, caller Caller) (int64, error) {
	if err := caller.validate(); err != nil {
		return 0, err
	}
	changed, err := s.store.Notifications().MarkAllRead(ctx, caller.ID)
	if err != nil {
		return 0, err
	}
	s.log.Debug().Str("user_id", caller.ID).Int64("changed", changed).Msg("Notifications marked read")
	return changed, nil
}

func (s *NotificationService) CountUnread(ctx context.Context, caller Caller) (int64, error) {
	if err := caller.validate(); err != nil {
		return 0, err
	}
	return s.store.Notifications().CountUnread(ctx, caller.ID)
}
