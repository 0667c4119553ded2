// Package memory provides an in-process store with the same behavior
// as the SQLite repository. It backs the memory data backend and the
// service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kharcha/internal/core"
)

type Store struct {
	mu            sync.Mutex
	budgets       map[string]*core.BudgetRecord
	notifications map[string][]core.Notification
	expenses      map[string][]core.Expense
	nextExpenseID int64
}

func New() *Store {
	return &Store{
		budgets:       make(map[string]*core.BudgetRecord),
		notifications: make(map[string][]core.Notification),
		expenses:      make(map[string][]core.Expense),
		nextExpenseID: 1,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) GetBudget(_ context.Context, userID string) (*core.BudgetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return nil, nil
	}
	return cloneBudget(b), nil
}

func (s *Store) SaveBudget(_ context.Context, b *core.BudgetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.UserID] = cloneBudget(b)
	return nil
}

func (s *Store) UpdateSpent(_ context.Context, userID string, spentPaise int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return core.ErrNotFound
	}
	b.Spent = core.Money{Paise: spentPaise}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateCategorySpent(_ context.Context, userID, category string, spentPaise int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return core.ErrNotFound
	}
	cb := b.Category(category)
	if cb == nil {
		return core.ErrNotFound
	}
	cb.Spent = core.Money{Paise: spentPaise}
	return nil
}

func (s *Store) ApplyRollover(_ context.Context, userID string, month core.MonthKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return core.ErrNotFound
	}
	b.Rollover(month)
	return nil
}

func (s *Store) RecordAlert(_ context.Context, userID, category string, count int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return core.ErrNotFound
	}
	at = at.UTC()
	if category == "" {
		b.AlertsFired += count
		b.LastAlertSent = &at
		b.UpdatedAt = time.Now().UTC()
		return nil
	}
	cb := b.Category(category)
	if cb == nil {
		return core.ErrNotFound
	}
	cb.AlertsFired += count
	cb.LastAlertSent = &at
	return nil
}

func (s *Store) ListStaleBudgetUsers(_ context.Context, month core.MonthKey, updatedBefore time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for id, b := range s.budgets {
		if b.Month != month || b.UpdatedAt.Before(updatedBefore) {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *Store) InsertNotification(_ context.Context, n *core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.UserID] = append(s.notifications[n.UserID], *n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, page, limit int, unreadOnly bool) ([]core.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var matched []core.Notification
	for _, n := range s.notifications[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, n)
	}
	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]core.Notification, end-start)
	copy(out, matched[start:end])
	return out, total, nil
}

func (s *Store) UnreadCount(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) (*core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[userID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if !list[i].IsRead {
			list[i].IsRead = true
			t := at.UTC()
			list[i].ReadAt = &t
		}
		n := list[i]
		return &n, nil
	}
	return nil, core.ErrNotFound
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	list := s.notifications[userID]
	t := at.UTC()
	for i := range list {
		if list[i].IsRead {
			continue
		}
		list[i].IsRead = true
		list[i].ReadAt = &t
		affected++
	}
	return affected, nil
}

func (s *Store) CreateExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	e.ID = s.nextExpenseID
	s.nextExpenseID++
	e.CreatedAt = now
	e.UpdatedAt = now
	s.expenses[e.UserID] = append(s.expenses[e.UserID], *e)
	return nil
}

func (s *Store) GetExpense(_ context.Context, userID string, id int64) (*core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses[userID] {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.expenses[e.UserID]
	for i := range list {
		if list[i].ID == e.ID {
			e.CreatedAt = list[i].CreatedAt
			e.UpdatedAt = time.Now().UTC()
			list[i] = *e
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.expenses[userID]
	for i := range list {
		if list[i].ID == id {
			s.expenses[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ListExpenses(_ context.Context, userID string, start, end time.Time, page, limit int) ([]core.Expense, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var matched []core.Expense
	for _, e := range s.expenses[userID] {
		if inRange(e.OccurredAt, start, end) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := int64(len(matched))
	first := (page - 1) * limit
	if first >= len(matched) {
		return nil, total, nil
	}
	last := first + limit
	if last > len(matched) {
		last = len(matched)
	}
	out := make([]core.Expense, last-first)
	copy(out, matched[first:last])
	return out, total, nil
}

func (s *Store) TotalSpend(_ context.Context, userID string, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.expenses[userID] {
		if inRange(e.OccurredAt, start, end) {
			total += e.Amount.Paise
		}
	}
	return total, nil
}

func (s *Store) SpendByCategory(_ context.Context, userID string, start, end time.Time, categories []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	out := make(map[string]int64)
	for _, e := range s.expenses[userID] {
		if wanted[e.Category] && inRange(e.OccurredAt, start, end) {
			out[e.Category] += e.Amount.Paise
		}
	}
	return out, nil
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func cloneBudget(b *core.BudgetRecord) *core.BudgetRecord {
	out := *b
	out.Categories = make([]core.CategoryBudget, len(b.Categories))
	copy(out.Categories, b.Categories)
	if b.LastAlertSent != nil {
		t := *b.LastAlertSent
		out.LastAlertSent = &t
	}
	for i := range out.Categories {
		if out.Categories[i].LastAlertSent != nil {
			t := *out.Categories[i].LastAlertSent
			out.Categories[i].LastAlertSent = &t
		}
	}
	return &out
}
