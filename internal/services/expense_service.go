package services

import (
	"context"
	"fmt"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

// ExpenseService writes the ledger and drives the budget counter chain.
// The ledger write is the authoritative part of every operation; the
// counter deltas and notifications that follow are best effort, since a
// missed delta is healed by the next reconciliation.
type ExpenseService struct {
	store     ExpenseStore
	budget    *BudgetService
	notifier  *NotificationService
	publisher ReconcilePublisher
	logger    *log.Logger
}

func NewExpenseService(store ExpenseStore, budget *BudgetService, notifier *NotificationService, publisher ReconcilePublisher, logger *log.Logger) *ExpenseService {
	return &ExpenseService{
		store:     store,
		budget:    budget,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
	}
}

// Create validates and stores a new expense, then bumps the overall and
// category spend counters by its amount.
func (s *ExpenseService) Create(ctx context.Context, e *core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	s.applyDelta(ctx, e.UserID, "", e.Amount.Paise)
	s.applyDelta(ctx, e.UserID, e.Category, e.Amount.Paise)
	s.publishReconcile(ctx, e.UserID, "expense_created")

	s.logger.InfoContext(ctx, "Expense created",
		log.FieldUserID, e.UserID,
		log.FieldExpenseID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmountPaise, e.Amount.Paise)
	return nil
}

// Update rewrites an expense and moves the counters by the difference.
// A category change moves the old amount out of the old category and
// the new amount into the new one.
func (s *ExpenseService) Update(ctx context.Context, e *core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	old, err := s.store.GetExpense(ctx, e.UserID, e.ID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.applyDelta(ctx, e.UserID, "", e.Amount.Paise-old.Amount.Paise)
	if old.Category == e.Category {
		s.applyDelta(ctx, e.UserID, e.Category, e.Amount.Paise-old.Amount.Paise)
	} else {
		s.applyDelta(ctx, e.UserID, old.Category, -old.Amount.Paise)
		s.applyDelta(ctx, e.UserID, e.Category, e.Amount.Paise)
	}
	s.publishReconcile(ctx, e.UserID, "expense_updated")

	s.logger.InfoContext(ctx, "Expense updated",
		log.FieldUserID, e.UserID,
		log.FieldExpenseID, e.ID,
		log.FieldDeltaPaise, e.Amount.Paise-old.Amount.Paise)
	return nil
}

// Delete removes an expense, rolls its amount back out of the counters
// and leaves an informational notification behind.
func (s *ExpenseService) Delete(ctx context.Context, userID string, id int64) error {
	old, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.applyDelta(ctx, userID, "", -old.Amount.Paise)
	s.applyDelta(ctx, userID, old.Category, -old.Amount.Paise)
	if s.notifier != nil {
		s.notifier.NotifyTransactionDeleted(ctx, userID, old.Description, old.Amount)
	}
	s.publishReconcile(ctx, userID, "expense_deleted")

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldUserID, userID,
		log.FieldExpenseID, id,
		log.FieldAmountPaise, old.Amount.Paise)
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, userID string, id int64) (*core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

// List returns one page of the user's expenses within [start, end).
func (s *ExpenseService) List(ctx context.Context, userID string, start, end time.Time, page, limit int) ([]core.Expense, int64, error) {
	return s.store.ListExpenses(ctx, userID, start, end, page, limit)
}

// applyDelta routes to the overall or category counter. Errors are
// logged and swallowed: the ledger write already committed and the
// counter will converge on the next reconciliation.
func (s *ExpenseService) applyDelta(ctx context.Context, userID, category string, delta int64) {
	var err error
	if category == "" {
		err = s.budget.ApplyOverallDelta(ctx, userID, delta)
	} else {
		err = s.budget.ApplyCategoryDelta(ctx, userID, category, delta)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Budget delta failed, counters will reconcile",
			log.FieldUserID, userID,
			log.FieldCategory, category,
			log.FieldDeltaPaise, delta,
			log.FieldError, err.Error())
	}
}

func (s *ExpenseService) publishReconcile(ctx context.Context, userID, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReconcile(ctx, userID, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish reconcile message",
			log.FieldUserID, userID,
			log.FieldReason, reason,
			log.FieldError, err.Error())
	}
}
