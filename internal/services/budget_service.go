package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kharcha/internal/cache"
	"kharcha/internal/core"
	"kharcha/internal/log"
)

// BudgetService owns the budget lifecycle: lazy creation, month
// rollover, spend counter deltas, threshold alerts and ledger
// reconciliation. All reads go through the rollover resolver so a
// stale month can never leak out of this type.
type BudgetService struct {
	store       BudgetStore
	ledger      LedgerReader
	notifier    *NotificationService
	statusCache *cache.LRUCache[*BudgetStatus]
	logger      *log.Logger
	now         func() time.Time
}

func NewBudgetService(store BudgetStore, ledger LedgerReader, notifier *NotificationService, statusCache *cache.LRUCache[*BudgetStatus], logger *log.Logger) *BudgetService {
	return &BudgetService{
		store:       store,
		ledger:      ledger,
		notifier:    notifier,
		statusCache: statusCache,
		logger:      logger.WithComponent(log.ComponentBudget),
		now:         time.Now,
	}
}

// CategoryBudgetInput is one category entry of a budget update.
type CategoryBudgetInput struct {
	Category   string
	LimitPaise int64
	Thresholds *core.AlertThresholds
	IsActive   *bool
}

// SetBudgetInput carries a partial budget update. Nil fields are left
// untouched; a non-nil Categories slice replaces the whole list.
type SetBudgetInput struct {
	MonthlyLimitPaise *int64
	Thresholds        *core.AlertThresholds
	Categories        *[]CategoryBudgetInput
}

// CategoryStatus is the derived per-category view served to clients.
type CategoryStatus struct {
	Category       string `json:"category"`
	LimitPaise     int64  `json:"limitPaise"`
	SpentPaise     int64  `json:"spentPaise"`
	RemainingPaise int64  `json:"remainingPaise"`
	Utilization    int    `json:"utilization"`
	Level          string `json:"level"`
	Exceeded       bool   `json:"exceeded"`
	IsActive       bool   `json:"isActive"`
}

// StatusAlert is one human-readable alert on the status view, built
// from the user's unread notifications.
type StatusAlert struct {
	Type      core.NotificationType `json:"type"`
	Severity  string                `json:"severity"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	CreatedAt time.Time             `json:"createdAt"`
}

// BudgetStatus is the derived overall view served to clients.
type BudgetStatus struct {
	Month          core.MonthKey    `json:"month"`
	LimitPaise     int64            `json:"limitPaise"`
	SpentPaise     int64            `json:"spentPaise"`
	RemainingPaise int64            `json:"remainingPaise"`
	Utilization    int              `json:"utilization"`
	Level          string           `json:"level"`
	Exceeded       bool             `json:"exceeded"`
	AlertsFired    int              `json:"alertsFired"`
	Alerts         []StatusAlert    `json:"alerts"`
	Categories     []CategoryStatus `json:"categories"`
}

// statusAlertLimit caps how many unread notifications the status view
// surfaces as alerts.
const statusAlertLimit = 10

// Get returns the user's budget for the current month, reconciled
// against the ledger. The budget is created lazily with a zero limit.
func (s *BudgetService) Get(ctx context.Context, userID string) (*core.BudgetRecord, error) {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, b)
}

// Set applies a partial budget update. Replacing the category list
// seeds spend for newly added categories from this month's ledger, so
// an added category starts at its real position instead of zero.
func (s *BudgetService) Set(ctx context.Context, userID string, in SetBudgetInput) (*core.BudgetRecord, error) {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.MonthlyLimitPaise != nil {
		b.MonthlyLimit = core.Money{Paise: *in.MonthlyLimitPaise}
	}
	if in.Thresholds != nil {
		b.Thresholds = *in.Thresholds
	}
	if in.Categories != nil {
		replaced, err := s.buildCategoryList(ctx, b, *in.Categories)
		if err != nil {
			return nil, err
		}
		b.Categories = replaced
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	b.UpdatedAt = s.now().UTC()
	if err := s.store.SaveBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("save budget: %w", err)
	}
	s.invalidateStatus(userID)

	s.logger.InfoContext(ctx, "Budget updated",
		log.FieldUserID, userID,
		log.FieldLimitPaise, b.MonthlyLimit.Paise,
		log.FieldMonth, string(b.Month))
	return b, nil
}

// Reset zeroes all spend and alert counters for the current month.
func (s *BudgetService) Reset(ctx context.Context, userID string) (*core.BudgetRecord, error) {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	month := core.MonthKeyOf(s.now())
	if err := s.store.ApplyRollover(ctx, userID, month); err != nil {
		return nil, fmt.Errorf("reset budget: %w", err)
	}
	b.Rollover(month)
	s.invalidateStatus(userID)
	s.logger.InfoContext(ctx, "Budget counters reset",
		log.FieldUserID, userID, log.FieldMonth, string(month))
	return b, nil
}

// Status returns the derived utilization view, cached briefly per user.
func (s *BudgetService) Status(ctx context.Context, userID string) (*BudgetStatus, error) {
	if s.statusCache != nil {
		if st, ok := s.statusCache.Get(userID); ok {
			return st, nil
		}
	}

	b, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &BudgetStatus{
		Month:          b.Month,
		LimitPaise:     b.MonthlyLimit.Paise,
		SpentPaise:     b.Spent.Paise,
		RemainingPaise: b.Remaining().Paise,
		Utilization:    b.UtilizationPercent(),
		Level:          b.StatusLevel(),
		Exceeded:       b.IsExceeded(),
		AlertsFired:    b.AlertsFired,
		Alerts:         make([]StatusAlert, 0),
		Categories:     make([]CategoryStatus, 0, len(b.Categories)),
	}
	for i := range b.Categories {
		cb := &b.Categories[i]
		st.Categories = append(st.Categories, CategoryStatus{
			Category:       cb.Category,
			LimitPaise:     cb.Limit.Paise,
			SpentPaise:     cb.Spent.Paise,
			RemainingPaise: cb.Remaining().Paise,
			Utilization:    cb.UtilizationPercent(),
			Level:          cb.StatusLevel(),
			Exceeded:       cb.IsExceeded(),
			IsActive:       cb.IsActive,
		})
	}

	// Unread notifications double as the human-readable alert feed.
	// Losing them degrades the view, it does not fail the request.
	unread, _, err := s.notifier.List(ctx, userID, 1, statusAlertLimit, true)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load alerts for status view",
			log.FieldUserID, userID, log.FieldError, err.Error())
	} else {
		for i := range unread {
			n := &unread[i]
			st.Alerts = append(st.Alerts, StatusAlert{
				Type:      n.Type,
				Severity:  n.Type.Severity(),
				Title:     n.Title,
				Message:   n.Message,
				CreatedAt: n.CreatedAt,
			})
		}
	}

	if s.statusCache != nil {
		s.statusCache.Set(userID, st)
	}
	return st, nil
}

// ApplyOverallDelta moves the overall spend counter and emits any
// threshold alerts the move crossed. The counter clamps at zero.
func (s *BudgetService) ApplyOverallDelta(ctx context.Context, userID string, delta int64) error {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return err
	}

	previous := b.Spent
	next := previous.Paise + delta
	if next < 0 {
		next = 0
	}
	if next == previous.Paise {
		return nil
	}
	if err := s.store.UpdateSpent(ctx, userID, next); err != nil {
		return fmt.Errorf("apply overall delta: %w", err)
	}
	s.invalidateStatus(userID)
	current := core.Money{Paise: next}

	s.logger.DebugContext(ctx, "Overall spend moved",
		log.NewFields().WithUser(userID).WithBudgetDelta("", delta, previous.Paise, next).ToSlice()...)

	s.emitAlerts(ctx, userID, core.ScopeOverall, "", b.MonthlyLimit, b.Thresholds, previous, current)
	return nil
}

// ApplyCategoryDelta moves one category's spend counter. Categories are
// opt-in: spending against a category without a budget entry is a
// silent no-op. Inactive categories still track spend but never alert.
func (s *BudgetService) ApplyCategoryDelta(ctx context.Context, userID, category string, delta int64) error {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return err
	}

	cb := b.Category(category)
	if cb == nil {
		return nil
	}

	previous := cb.Spent
	next := previous.Paise + delta
	if next < 0 {
		next = 0
	}
	if next == previous.Paise {
		return nil
	}
	if err := s.store.UpdateCategorySpent(ctx, userID, category, next); err != nil {
		return fmt.Errorf("apply category delta: %w", err)
	}
	s.invalidateStatus(userID)
	current := core.Money{Paise: next}

	s.logger.DebugContext(ctx, "Category spend moved",
		log.NewFields().WithUser(userID).WithBudgetDelta(category, delta, previous.Paise, next).ToSlice()...)

	if cb.IsActive {
		s.emitAlerts(ctx, userID, core.ScopeCategory, category, cb.Limit, cb.Thresholds, previous, current)
	}
	return nil
}

// Reconcile recomputes every spend counter from the ledger. It is
// idempotent and only writes counters that drifted, so concurrent runs
// converge on the same totals.
func (s *BudgetService) Reconcile(ctx context.Context, userID string) (*core.BudgetRecord, error) {
	b, err := s.ensureCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, b)
}

func (s *BudgetService) reconcile(ctx context.Context, b *core.BudgetRecord) (*core.BudgetRecord, error) {
	start, end := b.Month.Range()

	total, err := s.ledger.TotalSpend(ctx, b.UserID, start, end)
	if err != nil {
		return nil, fmt.Errorf("reconcile total spend: %w", err)
	}
	if total != b.Spent.Paise {
		if err := s.store.UpdateSpent(ctx, b.UserID, total); err != nil {
			return nil, fmt.Errorf("reconcile overall counter: %w", err)
		}
		s.logger.InfoContext(ctx, "Overall counter reconciled",
			log.FieldUserID, b.UserID,
			log.FieldPreviousPaise, b.Spent.Paise,
			log.FieldCurrentPaise, total)
		b.Spent = core.Money{Paise: total}
		s.invalidateStatus(b.UserID)
	}

	if len(b.Categories) == 0 {
		return b, nil
	}
	sums, err := s.ledger.SpendByCategory(ctx, b.UserID, start, end, b.CategoryNames())
	if err != nil {
		return nil, fmt.Errorf("reconcile category spend: %w", err)
	}
	for i := range b.Categories {
		cb := &b.Categories[i]
		actual := sums[cb.Category]
		if actual == cb.Spent.Paise {
			continue
		}
		if err := s.store.UpdateCategorySpent(ctx, b.UserID, cb.Category, actual); err != nil {
			return nil, fmt.Errorf("reconcile category %s: %w", cb.Category, err)
		}
		s.logger.InfoContext(ctx, "Category counter reconciled",
			log.FieldUserID, b.UserID,
			log.FieldCategory, cb.Category,
			log.FieldPreviousPaise, cb.Spent.Paise,
			log.FieldCurrentPaise, actual)
		cb.Spent = core.Money{Paise: actual}
		s.invalidateStatus(b.UserID)
	}
	return b, nil
}

// ensureCurrent loads the budget, creating it lazily, and resolves any
// pending month rollover before the caller sees the record.
func (s *BudgetService) ensureCurrent(ctx context.Context, userID string) (*core.BudgetRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}

	month := core.MonthKeyOf(s.now())
	b, err := s.store.GetBudget(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	if b == nil {
		b = core.NewBudgetRecord(userID, month)
		if err := s.store.SaveBudget(ctx, b); err != nil {
			return nil, fmt.Errorf("create budget: %w", err)
		}
		s.logger.InfoContext(ctx, "Budget created lazily",
			log.FieldUserID, userID, log.FieldMonth, string(month))
		return b, nil
	}

	if b.Month.NeedsRollover(month) {
		if err := s.store.ApplyRollover(ctx, userID, month); err != nil {
			return nil, fmt.Errorf("month rollover: %w", err)
		}
		previous := b.Month
		b.Rollover(month)
		s.invalidateStatus(userID)
		s.logger.InfoContext(ctx, "Budget rolled over",
			log.FieldUserID, userID,
			log.FieldOperation, log.OpRollover,
			"from_month", string(previous),
			log.FieldMonth, string(month))
	}
	return b, nil
}

// buildCategoryList turns replacement input into category budgets,
// carrying counters for kept categories and seeding new ones from the
// current month's ledger.
func (s *BudgetService) buildCategoryList(ctx context.Context, b *core.BudgetRecord, inputs []CategoryBudgetInput) ([]core.CategoryBudget, error) {
	var newNames []string
	for _, in := range inputs {
		name := strings.TrimSpace(in.Category)
		if name != "" && b.Category(name) == nil {
			newNames = append(newNames, name)
		}
	}

	seed := map[string]int64{}
	if len(newNames) > 0 {
		start, end := b.Month.Range()
		sums, err := s.ledger.SpendByCategory(ctx, b.UserID, start, end, newNames)
		if err != nil {
			return nil, fmt.Errorf("seed category spend: %w", err)
		}
		seed = sums
	}

	out := make([]core.CategoryBudget, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Category)
		cb := core.CategoryBudget{
			Category:   name,
			Limit:      core.Money{Paise: in.LimitPaise},
			Thresholds: core.DefaultThresholds(),
			IsActive:   true,
		}
		if existing := b.Category(name); existing != nil {
			cb.Spent = existing.Spent
			cb.AlertsFired = existing.AlertsFired
			cb.LastAlertSent = existing.LastAlertSent
		} else {
			cb.Spent = core.Money{Paise: seed[name]}
		}
		if in.Thresholds != nil {
			cb.Thresholds = *in.Thresholds
		}
		if in.IsActive != nil {
			cb.IsActive = *in.IsActive
		}
		out = append(out, cb)
	}
	return out, nil
}

// emitAlerts evaluates thresholds for one counter move and records any
// persisted notifications. Failures here are logged, never returned:
// the spend mutation has already committed and stays committed.
func (s *BudgetService) emitAlerts(ctx context.Context, userID string, scope core.AlertScope, category string, limit core.Money, th core.AlertThresholds, previous, current core.Money) {
	if s.notifier == nil {
		return
	}
	levels := core.EvaluateThresholds(limit, th, previous, current)
	if len(levels) == 0 {
		return
	}
	persisted := s.notifier.EmitBudgetAlerts(ctx, userID, scope, category, limit, previous, current, levels)
	if persisted == 0 {
		return
	}
	if err := s.store.RecordAlert(ctx, userID, category, persisted, s.now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "Failed to record alert counters",
			log.FieldUserID, userID,
			log.FieldCategory, category,
			log.FieldError, err.Error())
	}
}

func (s *BudgetService) invalidateStatus(userID string) {
	if s.statusCache != nil {
		s.statusCache.Delete(userID)
	}
}
