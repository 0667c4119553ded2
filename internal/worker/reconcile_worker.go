package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
)

// BudgetReconciler rebuilds one user's budget counters from the ledger.
type BudgetReconciler interface {
	Reconcile(ctx context.Context, userID string) (*core.BudgetRecord, error)
}

// StaleLister finds budgets that have not been touched recently.
type StaleLister interface {
	ListStaleBudgetUsers(ctx context.Context, month core.MonthKey, updatedBefore time.Time, limit int) ([]string, error)
}

// ReconcileWorker consumes reconcile requests from AMQP and replays them
// against the budget service. It also runs a startup check so budgets left
// stale by lost messages or worker downtime still get reconciled.
type ReconcileWorker struct {
	budget    BudgetReconciler
	store     StaleLister
	batchSize int
	now       func() time.Time
}

func NewReconcileWorker(budget BudgetReconciler, store StaleLister, batchSize int) *ReconcileWorker {
	return &ReconcileWorker{
		budget:    budget,
		store:     store,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleReconcileMessage processes a single reconcile message from AMQP
func (w *ReconcileWorker) HandleReconcileMessage(ctx context.Context, msg *amqp.ReconcileMessage) error {
	slog.InfoContext(ctx, "Processing reconcile message",
		"userId", msg.UserID,
		"reason", msg.Reason)

	if msg.UserID == "" {
		// Drop rather than requeue, the message will never become valid.
		slog.WarnContext(ctx, "Dropping reconcile message without user id",
			"reason", msg.Reason)
		return nil
	}

	if _, err := w.budget.Reconcile(ctx, msg.UserID); err != nil {
		return fmt.Errorf("reconcile budget: %w", err)
	}

	return nil
}

// StartupReconcileCheck reconciles any stale budgets at worker startup.
// This is useful to recover from missed AMQP messages or worker downtime.
func (w *ReconcileWorker) StartupReconcileCheck(ctx context.Context) error {
	month := core.MonthKeyOf(w.now())
	cutoff := w.now()

	// Use a larger batch for the startup check
	users, err := w.store.ListStaleBudgetUsers(ctx, month, cutoff, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list stale budgets for startup check: %w", err)
	}

	if len(users) == 0 {
		slog.InfoContext(ctx, "No stale budgets found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found stale budgets on startup, reconciling...",
		"count", len(users))

	successCount := 0
	errorCount := 0

	for _, userID := range users {
		if _, err := w.budget.Reconcile(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile budget during startup",
				"userId", userID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup reconcile completed",
		"total", len(users),
		"reconciled", successCount,
		"errors", errorCount)

	return nil
}
