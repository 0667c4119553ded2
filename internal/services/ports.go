package services

import (
	"context"
	"time"

	"kharcha/internal/core"
)

// BudgetStore persists budget records and their counters.
type BudgetStore interface {
	// GetBudget returns (nil, nil) when the user has no budget yet.
	GetBudget(ctx context.Context, userID string) (*core.BudgetRecord, error)
	SaveBudget(ctx context.Context, b *core.BudgetRecord) error
	UpdateSpent(ctx context.Context, userID string, spentPaise int64) error
	UpdateCategorySpent(ctx context.Context, userID, category string, spentPaise int64) error
	// ApplyRollover resets all spend and alert counters atomically.
	ApplyRollover(ctx context.Context, userID string, month core.MonthKey) error
	RecordAlert(ctx context.Context, userID, category string, count int, at time.Time) error
	ListStaleBudgetUsers(ctx context.Context, month core.MonthKey, updatedBefore time.Time, limit int) ([]string, error)
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *core.Notification) error
	ListNotifications(ctx context.Context, userID string, page, limit int, unreadOnly bool) ([]core.Notification, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*core.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// LedgerReader exposes the expense ledger sums that budget counters are
// reconciled against. The ledger is the source of truth; counters are a
// denormalized mirror of it.
type LedgerReader interface {
	TotalSpend(ctx context.Context, userID string, start, end time.Time) (int64, error)
	SpendByCategory(ctx context.Context, userID string, start, end time.Time, categories []string) (map[string]int64, error)
}

// ExpenseStore persists ledger entries.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e *core.Expense) error
	GetExpense(ctx context.Context, userID string, id int64) (*core.Expense, error)
	UpdateExpense(ctx context.Context, e *core.Expense) error
	DeleteExpense(ctx context.Context, userID string, id int64) error
	ListExpenses(ctx context.Context, userID string, start, end time.Time, page, limit int) ([]core.Expense, int64, error)
}

// ReconcilePublisher hands a user off to the background reconciliation
// worker. Publishing is best effort; counters also heal on read.
type ReconcilePublisher interface {
	PublishReconcile(ctx context.Context, userID, reason string) error
}
