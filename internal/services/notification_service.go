package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

// NotificationService stores and serves in-app notifications. Alert
// emission is best effort: a failed insert is logged and skipped, it
// never propagates back into the expense or budget write that caused it.
type NotificationService struct {
	store  NotificationStore
	logger *log.Logger
	now    func() time.Time
}

func NewNotificationService(store NotificationStore, logger *log.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: logger.WithComponent(log.ComponentNotification),
		now:    time.Now,
	}
}

// EmitBudgetAlerts persists one notification per crossed level and
// returns how many made it to the store.
func (s *NotificationService) EmitBudgetAlerts(ctx context.Context, userID string, scope core.AlertScope, category string, limit, previous, current core.Money, levels []core.AlertLevel) int {
	persisted := 0
	for _, level := range levels {
		n := core.NewBudgetAlert(userID, scope, category, level, limit, previous, current)
		n.ID = uuid.NewString()
		n.CreatedAt = s.now().UTC()
		if err := s.store.InsertNotification(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "Failed to persist budget alert",
				log.FieldUserID, userID,
				log.FieldNotificationType, string(n.Type),
				log.FieldAlertLevel, string(level),
				log.FieldError, err.Error())
			continue
		}
		persisted++
		s.logger.InfoContext(ctx, "Budget alert emitted",
			log.FieldUserID, userID,
			log.FieldNotificationType, string(n.Type),
			log.FieldAlertScope, string(scope),
			log.FieldCategory, category,
			log.FieldAlertLevel, string(level))
	}
	return persisted
}

// NotifyTransactionDeleted records the informational notification for a
// removed expense. Best effort, like alert emission.
func (s *NotificationService) NotifyTransactionDeleted(ctx context.Context, userID, description string, amount core.Money) {
	n := core.NewTransactionDeleted(userID, description, amount)
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC()
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist delete notification",
			log.FieldUserID, userID,
			log.FieldError, err.Error())
		return
	}
	s.logger.InfoContext(ctx, "Delete notification emitted", log.FieldUserID, userID)
}

// List returns one page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, page, limit int, unreadOnly bool) ([]core.Notification, int64, error) {
	list, total, err := s.store.ListNotifications(ctx, userID, page, limit, unreadOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return list, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

// MarkRead marks one notification as read. Repeat calls are no-ops.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*core.Notification, error) {
	return s.store.MarkNotificationRead(ctx, userID, id, s.now().UTC())
}

// MarkAllRead marks every unread notification and returns the count.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID, s.now().UTC())
}
