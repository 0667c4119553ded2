package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"kharcha/internal/core"
)

type expensePayload struct {
	Description string  `json:"description"`
	Amount      decimal `json:"amount"`
	Category    string  `json:"category"`
	OccurredAt  string  `json:"occurredAt,omitempty"`
}

type expenseView struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	AmountPaise int64     `json:"amountPaise"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	OccurredAt  time.Time `json:"occurredAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type expenseListView struct {
	Expenses []expenseView `json:"expenses"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
}

func toExpenseView(e *core.Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		Description: e.Description,
		AmountPaise: e.Amount.Paise,
		Amount:      e.Amount.FormatINR(),
		Category:    e.Category,
		OccurredAt:  e.OccurredAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// expenseFromPayload builds a validated expense from a request payload.
// OccurredAt accepts RFC 3339 or a bare date and defaults to now.
func expenseFromPayload(userID string, p expensePayload) (*core.Expense, error) {
	paise, err := core.ParseDecimalToPaise(strings.TrimSpace(string(p.Amount)))
	if err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if v := strings.TrimSpace(p.OccurredAt); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			t, err = time.Parse("2006-01-02", v)
		}
		if err != nil {
			return nil, errors.New("invalid occurredAt, use RFC 3339 or YYYY-MM-DD")
		}
		occurredAt = t.UTC()
	}

	e := &core.Expense{
		UserID:      userID,
		Description: sanitizeInput(p.Description),
		Amount:      core.Money{Paise: paise},
		Category:    sanitizeInput(p.Category),
		OccurredAt:  occurredAt,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	case http.MethodGet:
		s.handleListExpenses(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var payload expensePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	e, err := expenseFromPayload(identity(r), payload)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.expenses.Create(r.Context(), e); err != nil {
		respondServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalExpenses, 1)
	respondJSON(w, http.StatusCreated, toExpenseView(e))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid month")
		return
	}
	page, limit := parsePagination(r)
	start, end := month.Range()

	expenses, total, err := s.expenses.List(r.Context(), identity(r), start, end, page, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	view := expenseListView{
		Expenses: make([]expenseView, 0, len(expenses)),
		Total:    total,
		Page:     page,
		Limit:    limit,
	}
	for i := range expenses {
		view.Expenses = append(view.Expenses, toExpenseView(&expenses[i]))
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetExpense(w, r, id)
	case http.MethodPut:
		s.handleUpdateExpense(w, r, id)
	case http.MethodDelete:
		s.handleDeleteExpense(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, id int64) {
	e, err := s.expenses.Get(r.Context(), identity(r), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseView(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, id int64) {
	var payload expensePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	e, err := expenseFromPayload(identity(r), payload)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e.ID = id

	if err := s.expenses.Update(r.Context(), e); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseView(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.expenses.Delete(r.Context(), identity(r), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
