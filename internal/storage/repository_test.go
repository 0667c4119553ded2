package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedBudget(t *testing.T, repo *SQLiteRepository, userID string) *core.BudgetRecord {
	t.Helper()
	b := core.NewBudgetRecord(userID, "2026-07")
	b.MonthlyLimit = core.Money{Paise: 100000}
	b.Spent = core.Money{Paise: 45000}
	b.AlertsFired = 1
	sent := time.Date(2026, 7, 10, 8, 0, 0, 0, time.UTC)
	b.LastAlertSent = &sent
	b.Categories = []core.CategoryBudget{
		{Category: "Groceries", Limit: core.Money{Paise: 30000}, Spent: core.Money{Paise: 12000}, Thresholds: core.DefaultThresholds(), IsActive: true},
		{Category: "Transport", Limit: core.Money{Paise: 10000}, Thresholds: core.AlertThresholds{Warning: 50, Critical: 90}, IsActive: true},
	}
	if err := repo.SaveBudget(context.Background(), b); err != nil {
		t.Fatalf("save budget: %v", err)
	}
	return b
}

func TestBudgetRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	got, err := repo.GetBudget(ctx, "nobody")
	if err != nil || got != nil {
		t.Fatalf("missing budget must be (nil, nil), got %v, %v", got, err)
	}

	seedBudget(t, repo, "u1")
	got, err = repo.GetBudget(ctx, "u1")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if got.MonthlyLimit.Paise != 100000 || got.Spent.Paise != 45000 || got.Month != "2026-07" {
		t.Fatalf("unexpected budget %+v", got)
	}
	if got.Thresholds != core.DefaultThresholds() || got.AlertsFired != 1 || got.LastAlertSent == nil {
		t.Fatalf("unexpected alert state %+v", got)
	}
	if len(got.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got.Categories))
	}
	// Stored order is preserved.
	if got.Categories[0].Category != "Groceries" || got.Categories[1].Category != "Transport" {
		t.Fatalf("category order lost: %+v", got.Categories)
	}
	if got.Categories[1].Thresholds != (core.AlertThresholds{Warning: 50, Critical: 90}) {
		t.Fatalf("category thresholds lost: %+v", got.Categories[1])
	}
}

func TestSaveBudgetReplacesCategories(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	b := seedBudget(t, repo, "u1")

	b.Categories = []core.CategoryBudget{
		{Category: "Rent", Limit: core.Money{Paise: 500000}, Thresholds: core.DefaultThresholds(), IsActive: true},
	}
	if err := repo.SaveBudget(ctx, b); err != nil {
		t.Fatalf("resave budget: %v", err)
	}

	got, err := repo.GetBudget(ctx, "u1")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if len(got.Categories) != 1 || got.Categories[0].Category != "Rent" {
		t.Fatalf("expected replaced category list, got %+v", got.Categories)
	}
}

func TestUpdateSpent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	seedBudget(t, repo, "u1")

	if err := repo.UpdateSpent(ctx, "u1", 77000); err != nil {
		t.Fatalf("update spent: %v", err)
	}
	if err := repo.UpdateCategorySpent(ctx, "u1", "Groceries", 20000); err != nil {
		t.Fatalf("update category spent: %v", err)
	}

	got, _ := repo.GetBudget(ctx, "u1")
	if got.Spent.Paise != 77000 {
		t.Fatalf("expected 77000, got %d", got.Spent.Paise)
	}
	if got.Categories[0].Spent.Paise != 20000 {
		t.Fatalf("expected 20000, got %d", got.Categories[0].Spent.Paise)
	}

	if err := repo.UpdateSpent(ctx, "nobody", 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateCategorySpent(ctx, "u1", "Missing", 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyRollover(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	seedBudget(t, repo, "u1")

	if err := repo.ApplyRollover(ctx, "u1", "2026-08"); err != nil {
		t.Fatalf("rollover: %v", err)
	}

	got, _ := repo.GetBudget(ctx, "u1")
	if got.Month != "2026-08" || got.Spent.Paise != 0 || got.AlertsFired != 0 || got.LastAlertSent != nil {
		t.Fatalf("overall counters not reset: %+v", got)
	}
	if got.MonthlyLimit.Paise != 100000 {
		t.Fatalf("limit must survive rollover")
	}
	for _, cb := range got.Categories {
		if cb.Spent.Paise != 0 || cb.AlertsFired != 0 || cb.LastAlertSent != nil {
			t.Fatalf("category counters not reset: %+v", cb)
		}
		if cb.Limit.Paise == 0 {
			t.Fatalf("category limits must survive rollover")
		}
	}

	if err := repo.ApplyRollover(ctx, "nobody", "2026-08"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordAlert(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	seedBudget(t, repo, "u1")

	at := time.Date(2026, 7, 20, 12, 0, 0, 0, time.UTC)
	if err := repo.RecordAlert(ctx, "u1", "", 2, at); err != nil {
		t.Fatalf("record overall alert: %v", err)
	}
	if err := repo.RecordAlert(ctx, "u1", "Transport", 1, at); err != nil {
		t.Fatalf("record category alert: %v", err)
	}

	got, _ := repo.GetBudget(ctx, "u1")
	if got.AlertsFired != 3 {
		t.Fatalf("expected 3 overall alerts, got %d", got.AlertsFired)
	}
	if got.LastAlertSent == nil || !got.LastAlertSent.Equal(at) {
		t.Fatalf("unexpected last alert %v", got.LastAlertSent)
	}
	tr := got.Category("Transport")
	if tr.AlertsFired != 1 || tr.LastAlertSent == nil {
		t.Fatalf("unexpected category alert state %+v", tr)
	}
}

func TestListStaleBudgetUsers(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	seedBudget(t, repo, "old-month")

	fresh := core.NewBudgetRecord("fresh", "2026-08")
	if err := repo.SaveBudget(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	users, err := repo.ListStaleBudgetUsers(ctx, "2026-08", time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(users) != 1 || users[0] != "old-month" {
		t.Fatalf("expected [old-month], got %v", users)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	mk := func(id string, created time.Time) *core.Notification {
		n := core.NewBudgetAlert("u1", core.ScopeOverall, "", core.LevelWarning,
			core.Money{Paise: 100000}, core.Money{Paise: 70000}, core.Money{Paise: 85000})
		n.ID = id
		n.CreatedAt = created
		return n
	}
	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"n1", "n2", "n3"} {
		if err := repo.InsertNotification(ctx, mk(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	list, total, err := repo.ListNotifications(ctx, "u1", 1, 2, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Fatalf("expected total 3 page of 2, got %d/%d", total, len(list))
	}
	if list[0].ID != "n3" || list[1].ID != "n2" {
		t.Fatalf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
	if list[0].Data.Level != core.LevelWarning || list[0].Data.CurrentValue != 85000 {
		t.Fatalf("data blob lost: %+v", list[0].Data)
	}

	count, err := repo.UnreadCount(ctx, "u1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 unread, got %d (err=%v)", count, err)
	}

	now := time.Now().UTC()
	n, err := repo.MarkNotificationRead(ctx, "u1", "n2", now)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !n.IsRead || n.ReadAt == nil {
		t.Fatalf("expected read notification, got %+v", n)
	}

	// Marking again is a no-op that still returns the record.
	again, err := repo.MarkNotificationRead(ctx, "u1", "n2", now.Add(time.Hour))
	if err != nil || !again.IsRead {
		t.Fatalf("second mark read: %+v, %v", again, err)
	}
	if !again.ReadAt.Equal(*n.ReadAt) {
		t.Fatalf("read_at must not move on repeat marks")
	}

	if _, err := repo.MarkNotificationRead(ctx, "u1", "missing", now); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	unread, _, err := repo.ListNotifications(ctx, "u1", 1, 10, true)
	if err != nil || len(unread) != 2 {
		t.Fatalf("expected 2 unread, got %d (err=%v)", len(unread), err)
	}

	affected, err := repo.MarkAllNotificationsRead(ctx, "u1", now)
	if err != nil || affected != 2 {
		t.Fatalf("expected 2 affected, got %d (err=%v)", affected, err)
	}
	count, _ = repo.UnreadCount(ctx, "u1")
	if count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}
}

func TestExpenseLedger(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	july := func(day int) time.Time {
		return time.Date(2026, 7, day, 14, 0, 0, 0, time.UTC)
	}
	entries := []*core.Expense{
		{UserID: "u1", Description: "groceries run", Amount: core.Money{Paise: 12000}, Category: "Groceries", OccurredAt: july(2)},
		{UserID: "u1", Description: "metro card", Amount: core.Money{Paise: 5000}, Category: "Transport", OccurredAt: july(5)},
		{UserID: "u1", Description: "more groceries", Amount: core.Money{Paise: 8000}, Category: "Groceries", OccurredAt: july(9)},
		{UserID: "u2", Description: "someone else", Amount: core.Money{Paise: 99900}, Category: "Groceries", OccurredAt: july(9)},
	}
	for _, e := range entries {
		if err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create expense: %v", err)
		}
		if e.ID == 0 {
			t.Fatalf("expected generated id")
		}
	}

	start, end := core.MonthKey("2026-07").Range()

	total, err := repo.TotalSpend(ctx, "u1", start, end)
	if err != nil || total != 25000 {
		t.Fatalf("expected 25000, got %d (err=%v)", total, err)
	}

	byCat, err := repo.SpendByCategory(ctx, "u1", start, end, []string{"Groceries", "Transport", "Rent"})
	if err != nil {
		t.Fatalf("spend by category: %v", err)
	}
	if byCat["Groceries"] != 20000 || byCat["Transport"] != 5000 {
		t.Fatalf("unexpected sums %v", byCat)
	}
	if _, ok := byCat["Rent"]; ok {
		t.Fatalf("categories without spend must be absent")
	}

	list, count, err := repo.ListExpenses(ctx, "u1", start, end, 1, 2)
	if err != nil || count != 3 || len(list) != 2 {
		t.Fatalf("expected 3 total page of 2, got %d/%d (err=%v)", count, len(list), err)
	}
	if list[0].Description != "more groceries" {
		t.Fatalf("expected newest first, got %q", list[0].Description)
	}

	// Update moves amount and category.
	e := entries[1]
	e.Amount = core.Money{Paise: 7000}
	e.Category = "Groceries"
	if err := repo.UpdateExpense(ctx, e); err != nil {
		t.Fatalf("update expense: %v", err)
	}
	got, err := repo.GetExpense(ctx, "u1", e.ID)
	if err != nil || got.Amount.Paise != 7000 || got.Category != "Groceries" {
		t.Fatalf("unexpected updated expense %+v (err=%v)", got, err)
	}

	if err := repo.DeleteExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if _, err := repo.GetExpense(ctx, "u1", e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteExpense(ctx, "u1", e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}

	// Total reflects the removal and never sees other users.
	total, _ = repo.TotalSpend(ctx, "u1", start, end)
	if total != 20000 {
		t.Fatalf("expected 20000 after delete, got %d", total)
	}

	// Empty ranges sum to zero, not NULL errors.
	total, err = repo.TotalSpend(ctx, "u1", end, end.AddDate(0, 1, 0))
	if err != nil || total != 0 {
		t.Fatalf("expected 0 for empty range, got %d (err=%v)", total, err)
	}
}
