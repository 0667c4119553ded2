package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

// ReconcileSweeperConfig holds configuration for the periodic sweep
type ReconcileSweeperConfig struct {
	// PollInterval is how often to scan for stale budgets (default: 5m)
	PollInterval time.Duration

	// BatchSize is the max number of budgets to reconcile per cycle (default: 25)
	BatchSize int

	// StaleAfter is how long an untouched budget counts as stale (default: 30m)
	StaleAfter time.Duration
}

// DefaultReconcileSweeperConfig returns sensible defaults
func DefaultReconcileSweeperConfig() ReconcileSweeperConfig {
	return ReconcileSweeperConfig{
		PollInterval: 5 * time.Minute,
		BatchSize:    25,
		StaleAfter:   30 * time.Minute,
	}
}

// ReconcileSweeper periodically finds budgets stamped with an old month
// or untouched for a while and reconciles them against the ledger. It
// is the safety net behind the per-write reconcile messages: a user who
// never triggers a read still gets rolled over and healed.
type ReconcileSweeper struct {
	store  BudgetStore
	budget *BudgetService
	config ReconcileSweeperConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconcileSweeper creates a new sweeper
func NewReconcileSweeper(store BudgetStore, budget *BudgetService, config ReconcileSweeperConfig, logger *log.Logger) *ReconcileSweeper {
	return &ReconcileSweeper{
		store:  store,
		budget: budget,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileSweeper) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile sweeper is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reconcile sweeper started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the sweeper and waits for completion.
func (p *ReconcileSweeper) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Reconcile sweeper stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reconcile sweeper stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the sweeper is currently running
func (p *ReconcileSweeper) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileSweeper) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep reconciles one batch of stale budgets
func (p *ReconcileSweeper) sweep(ctx context.Context) {
	month := core.CurrentMonthKey()
	cutoff := time.Now().Add(-p.config.StaleAfter)

	users, err := p.store.ListStaleBudgetUsers(ctx, month, cutoff, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list stale budgets", log.FieldError, err.Error())
		return
	}
	if len(users) == 0 {
		return
	}

	p.logger.DebugContext(ctx, "Sweeping stale budgets", "count", len(users))

	for _, userID := range users {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := p.budget.Reconcile(ctx, userID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to reconcile budget",
				log.FieldUserID, userID,
				log.FieldOperation, log.OpReconcile,
				log.FieldError, err.Error())
		}
	}
}
