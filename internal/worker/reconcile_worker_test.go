package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
)

type recordingReconciler struct {
	users  []string
	failOn string
}

func (r *recordingReconciler) Reconcile(_ context.Context, userID string) (*core.BudgetRecord, error) {
	if userID == r.failOn {
		return nil, errors.New("store unavailable")
	}
	r.users = append(r.users, userID)
	return &core.BudgetRecord{UserID: userID}, nil
}

type staticLister struct {
	users []string
	err   error
	limit int
}

func (s *staticLister) ListStaleBudgetUsers(_ context.Context, _ core.MonthKey, _ time.Time, limit int) ([]string, error) {
	s.limit = limit
	return s.users, s.err
}

func TestHandleReconcileMessage(t *testing.T) {
	rec := &recordingReconciler{}
	w := NewReconcileWorker(rec, &staticLister{}, 10)

	msg := amqp.NewReconcileMessage("alice", "expense_created")
	if err := w.HandleReconcileMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleReconcileMessage() error = %v", err)
	}
	if len(rec.users) != 1 || rec.users[0] != "alice" {
		t.Fatalf("reconciled users = %v, want [alice]", rec.users)
	}
}

func TestHandleReconcileMessage_EmptyUserDropped(t *testing.T) {
	rec := &recordingReconciler{}
	w := NewReconcileWorker(rec, &staticLister{}, 10)

	msg := amqp.NewReconcileMessage("", "sweep")
	if err := w.HandleReconcileMessage(context.Background(), msg); err != nil {
		t.Fatalf("empty user should be dropped without error, got %v", err)
	}
	if len(rec.users) != 0 {
		t.Fatalf("no reconcile expected, got %v", rec.users)
	}
}

func TestHandleReconcileMessage_ReconcileError(t *testing.T) {
	rec := &recordingReconciler{failOn: "alice"}
	w := NewReconcileWorker(rec, &staticLister{}, 10)

	msg := amqp.NewReconcileMessage("alice", "expense_created")
	if err := w.HandleReconcileMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message gets requeued")
	}
}

func TestStartupReconcileCheck(t *testing.T) {
	rec := &recordingReconciler{failOn: "bob"}
	lister := &staticLister{users: []string{"alice", "bob", "carol"}}
	w := NewReconcileWorker(rec, lister, 10)

	if err := w.StartupReconcileCheck(context.Background()); err != nil {
		t.Fatalf("StartupReconcileCheck() error = %v", err)
	}

	// One failing user must not stop the rest of the batch.
	if len(rec.users) != 2 {
		t.Fatalf("reconciled users = %v, want alice and carol", rec.users)
	}
	if lister.limit != 50 {
		t.Fatalf("startup batch = %d, want batchSize*5 = 50", lister.limit)
	}
}

func TestStartupReconcileCheck_ListError(t *testing.T) {
	w := NewReconcileWorker(&recordingReconciler{}, &staticLister{err: errors.New("db closed")}, 10)

	if err := w.StartupReconcileCheck(context.Background()); err == nil {
		t.Fatal("expected error when listing stale budgets fails")
	}
}
