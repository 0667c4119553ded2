package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kharcha/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists budgets, notifications and the expense ledger.
// It backs every store port the services define.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetBudget loads a budget record with its category budgets in stored
// order. Returns (nil, nil) when the user has no budget yet.
func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string) (*core.BudgetRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, monthly_limit_paise, spent_paise, month,
		       warning_threshold, critical_threshold, alerts_fired,
		       last_alert_sent, created_at, updated_at
		FROM budgets WHERE user_id = ?`, userID)

	var b core.BudgetRecord
	var lastAlert sql.NullTime
	err := row.Scan(&b.UserID, &b.MonthlyLimit.Paise, &b.Spent.Paise, &b.Month,
		&b.Thresholds.Warning, &b.Thresholds.Critical, &b.AlertsFired,
		&lastAlert, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	if lastAlert.Valid {
		t := lastAlert.Time
		b.LastAlertSent = &t
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, limit_paise, spent_paise,
		       warning_threshold, critical_threshold, alerts_fired,
		       is_active, last_alert_sent
		FROM category_budgets WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("get category budgets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cb core.CategoryBudget
		var catAlert sql.NullTime
		if err := rows.Scan(&cb.Category, &cb.Limit.Paise, &cb.Spent.Paise,
			&cb.Thresholds.Warning, &cb.Thresholds.Critical, &cb.AlertsFired,
			&cb.IsActive, &catAlert); err != nil {
			return nil, fmt.Errorf("scan category budget: %w", err)
		}
		if catAlert.Valid {
			t := catAlert.Time
			cb.LastAlertSent = &t
		}
		b.Categories = append(b.Categories, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category budgets: %w", err)
	}

	return &b, nil
}

// SaveBudget upserts the whole record, replacing the category list, in a
// single transaction.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, b *core.BudgetRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save budget: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO budgets (user_id, monthly_limit_paise, spent_paise, month,
		                     warning_threshold, critical_threshold, alerts_fired,
		                     last_alert_sent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			monthly_limit_paise = excluded.monthly_limit_paise,
			spent_paise = excluded.spent_paise,
			month = excluded.month,
			warning_threshold = excluded.warning_threshold,
			critical_threshold = excluded.critical_threshold,
			alerts_fired = excluded.alerts_fired,
			last_alert_sent = excluded.last_alert_sent,
			updated_at = excluded.updated_at`,
		b.UserID, b.MonthlyLimit.Paise, b.Spent.Paise, string(b.Month),
		b.Thresholds.Warning, b.Thresholds.Critical, b.AlertsFired,
		nullTime(b.LastAlertSent), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_budgets WHERE user_id = ?`, b.UserID); err != nil {
		return fmt.Errorf("clear category budgets: %w", err)
	}
	for i, cb := range b.Categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_budgets (user_id, category, position, limit_paise, spent_paise,
			                              warning_threshold, critical_threshold, alerts_fired,
			                              is_active, last_alert_sent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.UserID, cb.Category, i, cb.Limit.Paise, cb.Spent.Paise,
			cb.Thresholds.Warning, cb.Thresholds.Critical, cb.AlertsFired,
			cb.IsActive, nullTime(cb.LastAlertSent))
		if err != nil {
			return fmt.Errorf("insert category budget %s: %w", cb.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save budget: %w", err)
	}
	return nil
}

// UpdateSpent overwrites the overall spend counter.
func (r *SQLiteRepository) UpdateSpent(ctx context.Context, userID string, spentPaise int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET spent_paise = ?, updated_at = ? WHERE user_id = ?`,
		spentPaise, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update spent: %w", err)
	}
	return requireRow(res)
}

// UpdateCategorySpent overwrites one category spend counter.
func (r *SQLiteRepository) UpdateCategorySpent(ctx context.Context, userID, category string, spentPaise int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE category_budgets SET spent_paise = ? WHERE user_id = ? AND category = ?`,
		spentPaise, userID, category)
	if err != nil {
		return fmt.Errorf("update category spent: %w", err)
	}
	return requireRow(res)
}

// ApplyRollover stamps the budget with the new month and zeroes every
// spend and alert counter, overall and per category, atomically.
func (r *SQLiteRepository) ApplyRollover(ctx context.Context, userID string, month core.MonthKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollover: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE budgets
		SET month = ?, spent_paise = 0, alerts_fired = 0, last_alert_sent = NULL, updated_at = ?
		WHERE user_id = ?`, string(month), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("rollover budget: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE category_budgets
		SET spent_paise = 0, alerts_fired = 0, last_alert_sent = NULL
		WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("rollover category budgets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollover: %w", err)
	}
	return nil
}

// RecordAlert bumps the alert counter and stamps the send time for the
// overall budget (empty category) or a category budget.
func (r *SQLiteRepository) RecordAlert(ctx context.Context, userID, category string, count int, at time.Time) error {
	var res sql.Result
	var err error
	if category == "" {
		res, err = r.db.ExecContext(ctx, `
			UPDATE budgets SET alerts_fired = alerts_fired + ?, last_alert_sent = ?, updated_at = ?
			WHERE user_id = ?`, count, at.UTC(), time.Now().UTC(), userID)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE category_budgets SET alerts_fired = alerts_fired + ?, last_alert_sent = ?
			WHERE user_id = ? AND category = ?`, count, at.UTC(), userID, category)
	}
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return requireRow(res)
}

// ListStaleBudgetUsers returns users whose budget is stamped with an old
// month or has not been touched since the given time. The periodic
// reconciliation sweep feeds on this.
func (r *SQLiteRepository) ListStaleBudgetUsers(ctx context.Context, month core.MonthKey, updatedBefore time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM budgets
		WHERE month != ? OR updated_at < ?
		ORDER BY updated_at
		LIMIT ?`, string(month), updatedBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale budgets: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale budget user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// InsertNotification stores a notification with its JSON data blob.
func (r *SQLiteRepository) InsertNotification(ctx context.Context, n *core.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, is_read, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(data),
		n.IsRead, nullTime(n.ReadAt), n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns one page, newest first, plus the total count
// matching the filter.
func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID string, page, limit int, unreadOnly bool) ([]core.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	filter := ""
	if unreadOnly {
		filter = " AND is_read = 0"
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ?`+filter, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications WHERE user_id = ?`+filter+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

func (r *SQLiteRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one notification and returns the updated
// record. Reading an already read notification is a no-op that still
// returns it. Unknown ids map to core.ErrNotFound.
func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (*core.Notification, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, read_at = ?
		WHERE user_id = ? AND id = ? AND is_read = 0`, at.UTC(), userID, id)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications WHERE user_id = ? AND id = ?`, userID, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return n, err
}

func (r *SQLiteRepository) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1, read_at = ?
		WHERE user_id = ? AND is_read = 0`, at.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// CreateExpense inserts a ledger entry and fills in the generated id.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, description, amount_paise, category, occurred_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Description, e.Amount.Paise, e.Category, e.OccurredAt.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("expense insert id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID string, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, description, amount_paise, category, occurred_at, created_at, updated_at
		FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	var e core.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount.Paise, &e.Category,
		&e.OccurredAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET description = ?, amount_paise = ?, category = ?, occurred_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		e.Description, e.Amount.Paise, e.Category, e.OccurredAt.UTC(), e.UpdatedAt, e.UserID, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

// ListExpenses returns one page of the ledger for [start, end), newest
// first, plus the total matching count.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, start, end time.Time, page, limit int) ([]core.Expense, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expenses
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?`,
		userID, start.UTC(), end.UTC()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, description, amount_paise, category, occurred_at, created_at, updated_at
		FROM expenses
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		userID, start.UTC(), end.UTC(), limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount.Paise, &e.Category,
			&e.OccurredAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// TotalSpend sums ledger amounts for the interval [start, end).
func (r *SQLiteRepository) TotalSpend(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(amount_paise) FROM expenses
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?`,
		userID, start.UTC(), end.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total spend: %w", err)
	}
	return total.Int64, nil
}

// SpendByCategory sums ledger amounts per category for the interval.
// Only the requested categories are returned; missing ones sum to zero
// on the caller's side.
func (r *SQLiteRepository) SpendByCategory(ctx context.Context, userID string, start, end time.Time, categories []string) (map[string]int64, error) {
	out := make(map[string]int64, len(categories))
	if len(categories) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?, ", len(categories)-1) + "?"
	args := make([]any, 0, len(categories)+3)
	args = append(args, userID, start.UTC(), end.UTC())
	for _, c := range categories {
		args = append(args, c)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, SUM(amount_paise) FROM expenses
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		AND category IN (`+placeholders+`)
		GROUP BY category`, args...)
	if err != nil {
		return nil, fmt.Errorf("spend by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var sum int64
		if err := rows.Scan(&cat, &sum); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		out[cat] = sum
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*core.Notification, error) {
	var n core.Notification
	var data string
	var readAt sql.NullTime
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data,
		&n.IsRead, &readAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	return &n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
