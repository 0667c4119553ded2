package services

import (
	"context"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage/memory"
)

func TestDefaultReconcileSweeperConfig(t *testing.T) {
	config := DefaultReconcileSweeperConfig()

	if config.PollInterval != 5*time.Minute {
		t.Errorf("expected PollInterval 5m, got %v", config.PollInterval)
	}
	if config.BatchSize != 25 {
		t.Errorf("expected BatchSize 25, got %d", config.BatchSize)
	}
	if config.StaleAfter != 30*time.Minute {
		t.Errorf("expected StaleAfter 30m, got %v", config.StaleAfter)
	}
}

func TestSweeper_IsRunning(t *testing.T) {
	sweeper := NewReconcileSweeper(nil, nil, DefaultReconcileSweeperConfig(), testLogger())
	if sweeper.IsRunning() {
		t.Error("sweeper should not be running initially")
	}
}

func TestSweeper_StartTwice(t *testing.T) {
	store := memory.New()
	budget := NewBudgetService(store, store, nil, nil, testLogger())
	config := DefaultReconcileSweeperConfig()
	config.PollInterval = time.Hour
	sweeper := NewReconcileSweeper(store, budget, config, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer sweeper.Stop(context.Background())

	if err := sweeper.Start(ctx); err == nil {
		t.Error("expected error when starting already running sweeper")
	}
}

func TestSweeper_StopNotRunning(t *testing.T) {
	sweeper := NewReconcileSweeper(nil, nil, DefaultReconcileSweeperConfig(), testLogger())
	if err := sweeper.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSweeperReconcilesStaleBudgets(t *testing.T) {
	store := memory.New()
	notifier := NewNotificationService(store, testLogger())
	budget := NewBudgetService(store, store, notifier, nil, testLogger())
	ctx := context.Background()

	// A budget stuck in June with drifted counters.
	stale := core.NewBudgetRecord("sleeper", "2026-06")
	stale.MonthlyLimit = core.Money{Paise: 100000}
	stale.Spent = core.Money{Paise: 88000}
	if err := store.SaveBudget(ctx, stale); err != nil {
		t.Fatalf("seed budget: %v", err)
	}

	config := DefaultReconcileSweeperConfig()
	sweeper := NewReconcileSweeper(store, budget, config, testLogger())
	sweeper.sweep(ctx)

	b, err := store.GetBudget(ctx, "sleeper")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if b.Month != core.CurrentMonthKey() {
		t.Fatalf("sweep must roll the month forward, got %s", b.Month)
	}
	if b.Spent.Paise != 0 {
		t.Fatalf("sweep must reset and reconcile spend, got %d", b.Spent.Paise)
	}
	if b.MonthlyLimit.Paise != 100000 {
		t.Fatalf("limit must survive the sweep")
	}
}
