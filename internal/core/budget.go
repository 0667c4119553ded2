package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultWarningThreshold  = 80
	DefaultCriticalThreshold = 95
)

type (
	// AlertThresholds holds the utilization percentages at which
	// warning and critical alerts fire.
	AlertThresholds struct {
		Warning  int
		Critical int
	}

	// CategoryBudget is a per-category limit tracked inside a BudgetRecord.
	// Categories are opt-in: spending in a category without one of these
	// entries only counts toward the overall budget.
	CategoryBudget struct {
		Category      string
		Limit         Money
		Spent         Money
		Thresholds    AlertThresholds
		AlertsFired   int
		IsActive      bool
		LastAlertSent *time.Time
	}

	// BudgetRecord is the single per-user budget document. Spend counters
	// are scoped to Month; limits and thresholds survive month rollover.
	BudgetRecord struct {
		UserID        string
		MonthlyLimit  Money
		Spent         Money
		Month         MonthKey
		Thresholds    AlertThresholds
		AlertsFired   int
		LastAlertSent *time.Time
		Categories    []CategoryBudget
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}
)

// DefaultThresholds returns the 80/95 defaults applied when a budget is
// created lazily or the caller omits thresholds.
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{Warning: DefaultWarningThreshold, Critical: DefaultCriticalThreshold}
}

func (t AlertThresholds) Validate() error {
	if t.Warning < 0 || t.Warning > 100 {
		return fmt.Errorf("%w: warning threshold must be between 0 and 100", ErrInvalidBudget)
	}
	if t.Critical < 0 || t.Critical > 100 {
		return fmt.Errorf("%w: critical threshold must be between 0 and 100", ErrInvalidBudget)
	}
	return nil
}

// NewBudgetRecord returns an empty budget for the given user and month.
// A zero MonthlyLimit means no overall limit is enforced.
func NewBudgetRecord(userID string, month MonthKey) *BudgetRecord {
	now := time.Now().UTC()
	return &BudgetRecord{
		UserID:     userID,
		Month:      month,
		Thresholds: DefaultThresholds(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (b *BudgetRecord) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUserID
	}
	if b.MonthlyLimit.Paise < 0 {
		return fmt.Errorf("%w: monthly limit cannot be negative", ErrInvalidBudget)
	}
	if err := b.Thresholds.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(b.Categories))
	for _, cb := range b.Categories {
		name := strings.TrimSpace(cb.Category)
		if name == "" {
			return ErrEmptyCategory
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate category budget %s", ErrInvalidBudget, name)
		}
		seen[name] = struct{}{}
		if cb.Limit.Paise < 0 {
			return fmt.Errorf("%w: category limit cannot be negative for %s", ErrInvalidBudget, name)
		}
		if err := cb.Thresholds.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Category returns a pointer to the named category budget, or nil when
// the user has not opted that category in.
func (b *BudgetRecord) Category(name string) *CategoryBudget {
	for i := range b.Categories {
		if b.Categories[i].Category == name {
			return &b.Categories[i]
		}
	}
	return nil
}

// CategoryNames returns the category names in stored order.
func (b *BudgetRecord) CategoryNames() []string {
	names := make([]string, len(b.Categories))
	for i, cb := range b.Categories {
		names[i] = cb.Category
	}
	return names
}

// Rollover resets every spend counter and alert marker for a new month.
// Limits, thresholds and the category list are untouched. The caller is
// responsible for persisting the record atomically.
func (b *BudgetRecord) Rollover(month MonthKey) {
	b.Month = month
	b.Spent = Money{}
	b.AlertsFired = 0
	b.LastAlertSent = nil
	for i := range b.Categories {
		b.Categories[i].Spent = Money{}
		b.Categories[i].AlertsFired = 0
		b.Categories[i].LastAlertSent = nil
	}
	b.UpdatedAt = time.Now().UTC()
}

// Remaining is the unspent part of the overall limit, never negative.
func (b *BudgetRecord) Remaining() Money {
	r := b.MonthlyLimit.Paise - b.Spent.Paise
	if r < 0 {
		r = 0
	}
	return Money{Paise: r}
}

// UtilizationPercent is spend over limit as a rounded whole percentage.
// It returns 0 when no limit is set and is not capped at 100.
func (b *BudgetRecord) UtilizationPercent() int {
	return utilizationPercent(b.Spent, b.MonthlyLimit)
}

// IsExceeded reports whether overall spend is strictly above the limit.
// A zero limit is never exceeded.
func (b *BudgetRecord) IsExceeded() bool {
	return b.MonthlyLimit.Paise > 0 && b.Spent.Paise > b.MonthlyLimit.Paise
}

func (cb *CategoryBudget) Remaining() Money {
	r := cb.Limit.Paise - cb.Spent.Paise
	if r < 0 {
		r = 0
	}
	return Money{Paise: r}
}

func (cb *CategoryBudget) UtilizationPercent() int {
	return utilizationPercent(cb.Spent, cb.Limit)
}

func (cb *CategoryBudget) IsExceeded() bool {
	return cb.Limit.Paise > 0 && cb.Spent.Paise > cb.Limit.Paise
}

// StatusLevel buckets overall spend for display: good, warning,
// critical or exceeded. A zero limit always reads good.
func (b *BudgetRecord) StatusLevel() string {
	return statusLevel(b.Spent, b.MonthlyLimit, b.Thresholds)
}

// StatusLevel buckets category spend for display.
func (cb *CategoryBudget) StatusLevel() string {
	return statusLevel(cb.Spent, cb.Limit, cb.Thresholds)
}

func statusLevel(spent, limit Money, th AlertThresholds) string {
	if limit.Paise <= 0 {
		return "good"
	}
	if spent.Paise > limit.Paise {
		return "exceeded"
	}
	if th.Critical > 0 && spent.Paise*100 >= limit.Paise*int64(th.Critical) {
		return "critical"
	}
	if th.Warning > 0 && spent.Paise*100 >= limit.Paise*int64(th.Warning) {
		return "warning"
	}
	return "good"
}

func utilizationPercent(spent, limit Money) int {
	if limit.Paise <= 0 {
		return 0
	}
	// Half-up rounding in integer arithmetic.
	return int((spent.Paise*100 + limit.Paise/2) / limit.Paise)
}
