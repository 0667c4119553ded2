package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kharcha/internal/cache"
	"kharcha/internal/log"
	"kharcha/internal/services"
	"kharcha/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	logger := log.New(log.DefaultConfig())
	notifier := services.NewNotificationService(store, logger)
	statusCache := cache.NewLRUCache[*services.BudgetStatus](16, time.Minute)
	budget := services.NewBudgetService(store, store, notifier, statusCache, logger)
	expenses := services.NewExpenseService(store, budget, notifier, nil, logger)

	srv := NewServer(":0", budget, expenses, notifier, store, logger)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:12345"
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/readyz status = %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rr.Code)
	}
	for _, metric := range []string{"http_requests_total", "expenses_total", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Fatalf("metrics output missing %s", metric)
		}
	}
}

func TestMissingIdentityRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/api/budget", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGetBudget_LazyCreate(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/api/budget", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	view := decode[budgetView](t, rr)
	if view.LimitPaise != 0 || view.SpentPaise != 0 {
		t.Fatalf("fresh budget limit=%d spent=%d, want zeros", view.LimitPaise, view.SpentPaise)
	}
	if view.Thresholds.Warning != 80 || view.Thresholds.Critical != 95 {
		t.Fatalf("thresholds = %+v, want 80/95 defaults", view.Thresholds)
	}
}

func TestSetBudget(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{
		"monthlyLimit": "50000.00",
		"thresholds": {"warning": 75, "critical": 90},
		"categories": [
			{"category": "food", "limit": "10000"},
			{"category": "travel", "limit": "5000.50", "isActive": false}
		]
	}`
	rr := doRequest(t, srv, http.MethodPut, "/api/budget", "alice", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	view := decode[budgetView](t, rr)
	if view.LimitPaise != 5000000 {
		t.Fatalf("limit = %d paise, want 5000000", view.LimitPaise)
	}
	if view.Thresholds.Warning != 75 || view.Thresholds.Critical != 90 {
		t.Fatalf("thresholds = %+v", view.Thresholds)
	}
	if len(view.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(view.Categories))
	}
	if view.Categories[1].LimitPaise != 500050 {
		t.Fatalf("travel limit = %d paise, want 500050", view.Categories[1].LimitPaise)
	}
	if view.Categories[1].IsActive {
		t.Fatal("travel should be inactive")
	}

	// Partial update keeps everything not mentioned.
	rr = doRequest(t, srv, http.MethodPut, "/api/budget", "alice", `{"monthlyLimit": "60000"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("partial update status = %d", rr.Code)
	}
	view = decode[budgetView](t, rr)
	if view.LimitPaise != 6000000 {
		t.Fatalf("limit after partial update = %d", view.LimitPaise)
	}
	if len(view.Categories) != 2 || view.Thresholds.Warning != 75 {
		t.Fatal("partial update must not touch categories or thresholds")
	}
}

func TestSetBudget_ZeroLimitAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPut, "/api/budget", "alice", `{"monthlyLimit": "0"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if view := decode[budgetView](t, rr); view.LimitPaise != 0 {
		t.Fatalf("limit = %d, want 0", view.LimitPaise)
	}
}

func TestSetBudget_Invalid(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad amount", `{"monthlyLimit": "abc"}`, http.StatusUnprocessableEntity},
		{"negative threshold", `{"thresholds": {"warning": -1, "critical": 90}}`, http.StatusUnprocessableEntity},
		{"duplicate category", `{"categories": [{"category": "food", "limit": "10"}, {"category": "food", "limit": "20"}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rr := doRequest(t, srv, http.MethodPut, "/api/budget", "alice", tt.body)
		if rr.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d (body %s)", tt.name, rr.Code, tt.want, rr.Body.String())
		}
	}
}

func TestExpenseLifecycleThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	setRR := doRequest(t, srv, http.MethodPut, "/api/budget", "alice",
		`{"monthlyLimit": "1000", "categories": [{"category": "food", "limit": "300"}]}`)
	if setRR.Code != http.StatusOK {
		t.Fatalf("set budget status = %d", setRR.Code)
	}

	// Create drives the budget counters.
	rr := doRequest(t, srv, http.MethodPost, "/api/expenses", "alice",
		`{"description": "groceries", "amount": "250.00", "category": "food"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	created := decode[expenseView](t, rr)
	if created.ID == 0 || created.AmountPaise != 25000 {
		t.Fatalf("created = %+v", created)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/budget", "alice", "")
	budget := decode[budgetView](t, rr)
	if budget.SpentPaise != 25000 {
		t.Fatalf("overall spent = %d, want 25000", budget.SpentPaise)
	}
	if budget.Categories[0].SpentPaise != 25000 {
		t.Fatalf("food spent = %d, want 25000", budget.Categories[0].SpentPaise)
	}

	// List current month.
	rr = doRequest(t, srv, http.MethodGet, "/api/expenses", "alice", "")
	list := decode[expenseListView](t, rr)
	if list.Total != 1 || len(list.Expenses) != 1 {
		t.Fatalf("list = %+v", list)
	}

	// Update the amount.
	rr = doRequest(t, srv, http.MethodPut, "/api/expenses/1", "alice",
		`{"description": "groceries", "amount": "100.00", "category": "food"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/budget", "alice", "")
	budget = decode[budgetView](t, rr)
	if budget.SpentPaise != 10000 {
		t.Fatalf("spent after update = %d, want 10000", budget.SpentPaise)
	}

	// Delete rolls the counters back and leaves a notification.
	rr = doRequest(t, srv, http.MethodDelete, "/api/expenses/1", "alice", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/budget", "alice", "")
	budget = decode[budgetView](t, rr)
	if budget.SpentPaise != 0 {
		t.Fatalf("spent after delete = %d, want 0", budget.SpentPaise)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/notifications", "alice", "")
	notifications := decode[notificationListView](t, rr)
	if notifications.Total != 1 {
		t.Fatalf("notifications total = %d, want the deletion notice", notifications.Total)
	}
	if notifications.Notifications[0].Type != "transaction_delete" {
		t.Fatalf("notification type = %s", notifications.Notifications[0].Type)
	}
}

func TestExpenseValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad amount", `{"description": "x", "amount": "abc", "category": "food"}`, http.StatusUnprocessableEntity},
		{"missing description", `{"description": "", "amount": "1.00", "category": "food"}`, http.StatusUnprocessableEntity},
		{"missing category", `{"description": "x", "amount": "1.00", "category": ""}`, http.StatusUnprocessableEntity},
		{"bad date", `{"description": "x", "amount": "1.00", "category": "food", "occurredAt": "not-a-date"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rr := doRequest(t, srv, http.MethodPost, "/api/expenses", "alice", tt.body)
		if rr.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rr.Code, tt.want)
		}
	}
}

func TestCreateExpenseNumericAmount(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/api/expenses", "alice",
		`{"description": "chai", "amount": 99.5, "category": "food"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	e := decode[expenseView](t, rr)
	if e.AmountPaise != 9950 {
		t.Fatalf("amountPaise = %d, want 9950", e.AmountPaise)
	}
}

func TestExpenseNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/api/expenses/99", "alice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodDelete, "/api/expenses/99", "alice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete status = %d, want 404", rr.Code)
	}
}

func TestBudgetStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(t, srv, http.MethodPut, "/api/budget", "alice", `{"monthlyLimit": "1000"}`)
	doRequest(t, srv, http.MethodPost, "/api/expenses", "alice",
		`{"description": "rent", "amount": "400.00", "category": "housing"}`)

	rr := doRequest(t, srv, http.MethodGet, "/api/budget/status", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	status := decode[services.BudgetStatus](t, rr)
	if status.Utilization != 40 {
		t.Fatalf("utilization = %d, want 40", status.Utilization)
	}
	if status.RemainingPaise != 60000 {
		t.Fatalf("remaining = %d, want 60000", status.RemainingPaise)
	}
	if status.Level != "good" {
		t.Fatalf("level = %q, want good", status.Level)
	}
	if len(status.Alerts) != 0 {
		t.Fatalf("no thresholds crossed, alerts = %+v", status.Alerts)
	}
}

func TestBudgetReset(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(t, srv, http.MethodPut, "/api/budget", "alice", `{"monthlyLimit": "1000"}`)
	doRequest(t, srv, http.MethodPost, "/api/expenses", "alice",
		`{"description": "rent", "amount": "400.00", "category": "housing"}`)

	rr := doRequest(t, srv, http.MethodPost, "/api/budget/reset", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}
	view := decode[budgetView](t, rr)
	if view.SpentPaise != 0 {
		t.Fatalf("spent after reset = %d, want 0", view.SpentPaise)
	}
	if view.LimitPaise != 100000 {
		t.Fatalf("limit must survive a reset, got %d", view.LimitPaise)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	// Exceeding a 100 rupee budget with one expense fires all three levels.
	doRequest(t, srv, http.MethodPut, "/api/budget", "alice", `{"monthlyLimit": "100"}`)
	doRequest(t, srv, http.MethodPost, "/api/expenses", "alice",
		`{"description": "splurge", "amount": "150.00", "category": "misc"}`)

	rr := doRequest(t, srv, http.MethodGet, "/api/notifications", "alice", "")
	list := decode[notificationListView](t, rr)
	if list.Total != 3 {
		t.Fatalf("notifications = %d, want warning, critical and exceeded", list.Total)
	}
	if list.UnreadCount != 3 {
		t.Fatalf("list unreadCount = %d, want 3", list.UnreadCount)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/notifications/unread-count", "alice", "")
	count := decode[map[string]int64](t, rr)
	if count["count"] != 3 {
		t.Fatalf("unread count = %d, want 3", count["count"])
	}

	id := list.Notifications[0].ID
	rr = doRequest(t, srv, http.MethodPut, "/api/notifications/"+id+"/read", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("mark read status = %d", rr.Code)
	}
	marked := decode[notificationView](t, rr)
	if !marked.IsRead || marked.ReadAt == nil {
		t.Fatalf("marked = %+v", marked)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/notifications", "alice", "")
	list = decode[notificationListView](t, rr)
	if list.UnreadCount != 2 {
		t.Fatalf("unreadCount after one read = %d, want 2", list.UnreadCount)
	}

	rr = doRequest(t, srv, http.MethodPut, "/api/notifications/unknown/read", "alice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodPut, "/api/notifications/read-all", "alice", "")
	updated := decode[map[string]int64](t, rr)
	if updated["updated"] != 2 {
		t.Fatalf("read-all updated = %d, want 2", updated["updated"])
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/notifications/unread-count", "alice", "")
	count = decode[map[string]int64](t, rr)
	if count["count"] != 0 {
		t.Fatalf("unread count after read-all = %d", count["count"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodDelete, "/api/budget", "alice", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	if rr.Header().Get("Allow") != "GET, PUT" {
		t.Fatalf("Allow = %q", rr.Header().Get("Allow"))
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/api/expenses?month=../../etc/passwd", "alice", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
