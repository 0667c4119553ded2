package core

import (
	"fmt"
	"time"
)

// NotificationType is the stored discriminator for a notification.
type NotificationType string

const (
	TypeBudgetWarning          NotificationType = "budget_warning"
	TypeBudgetCritical         NotificationType = "budget_critical"
	TypeBudgetExceeded         NotificationType = "budget_exceeded"
	TypeCategoryBudgetWarning  NotificationType = "category_budget_warning"
	TypeCategoryBudgetCritical NotificationType = "category_budget_critical"
	TypeCategoryBudgetExceeded NotificationType = "category_budget_exceeded"
	TypeTransactionDelete      NotificationType = "transaction_delete"
)

// Notification is a stored in-app message for a user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Data      NotificationData
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// NotificationData is the structured payload attached to an alert so
// clients can render their own copy without parsing the message text.
type NotificationData struct {
	Scope         AlertScope `json:"scope,omitempty"`
	Category      string     `json:"category,omitempty"`
	Limit         int64      `json:"limit,omitempty"`
	PreviousValue int64      `json:"previousValue,omitempty"`
	CurrentValue  int64      `json:"currentValue,omitempty"`
	Level         AlertLevel `json:"level,omitempty"`
}

// NotificationTypeFor maps a scope and crossed level to the stored type.
func NotificationTypeFor(scope AlertScope, level AlertLevel) NotificationType {
	if scope == ScopeCategory {
		switch level {
		case LevelCritical:
			return TypeCategoryBudgetCritical
		case LevelExceeded:
			return TypeCategoryBudgetExceeded
		default:
			return TypeCategoryBudgetWarning
		}
	}
	switch level {
	case LevelCritical:
		return TypeBudgetCritical
	case LevelExceeded:
		return TypeBudgetExceeded
	default:
		return TypeBudgetWarning
	}
}

// Severity maps a notification type to a display severity bucket.
// Critical threshold alerts and deletions surface as warnings; only a
// blown budget is critical.
func (t NotificationType) Severity() string {
	switch t {
	case TypeBudgetExceeded, TypeCategoryBudgetExceeded:
		return "critical"
	case TypeBudgetCritical, TypeCategoryBudgetCritical, TypeTransactionDelete:
		return "warning"
	default:
		return "info"
	}
}

// NewBudgetAlert builds the notification for a crossed threshold.
// For category alerts the category name leads the title; overall alerts
// are titled "Monthly budget ...".
func NewBudgetAlert(userID string, scope AlertScope, category string, level AlertLevel, limit, previous, current Money) *Notification {
	label := "overall"
	title := "Monthly budget " + string(level)
	if scope == ScopeCategory {
		label = category + " category"
		title = category + " budget " + string(level)
	}

	pct := utilizationPercent(current, limit)
	if pct > 100 {
		pct = 100
	}

	var msg string
	switch level {
	case LevelExceeded:
		msg = fmt.Sprintf("Budget exceeded: %s spending is now %s, above your limit of %s.",
			label, current.FormatINR(), limit.FormatINR())
	case LevelCritical:
		msg = fmt.Sprintf("Critical alert: %s budget usage is at %d%% (%s).",
			label, pct, current.FormatINR())
	default:
		msg = fmt.Sprintf("You have used %d%% of your %s budget (%s).",
			pct, label, limit.FormatINR())
	}

	return &Notification{
		UserID:  userID,
		Type:    NotificationTypeFor(scope, level),
		Title:   title,
		Message: msg,
		Data: NotificationData{
			Scope:         scope,
			Category:      category,
			Limit:         limit.Paise,
			PreviousValue: previous.Paise,
			CurrentValue:  current.Paise,
			Level:         level,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// NewTransactionDeleted builds the informational notification emitted
// after an expense is removed and budget counters are rolled back.
func NewTransactionDeleted(userID, description string, amount Money) *Notification {
	return &Notification{
		UserID:  userID,
		Type:    TypeTransactionDelete,
		Title:   "Transaction deleted",
		Message: fmt.Sprintf("Deleted %q (%s). Budget totals have been updated.", description, amount.FormatINR()),
		Data: NotificationData{
			CurrentValue: amount.Paise,
		},
		CreatedAt: time.Now().UTC(),
	}
}
