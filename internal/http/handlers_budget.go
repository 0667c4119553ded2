package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/services"
)

type thresholdsPayload struct {
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

type categoryBudgetPayload struct {
	Category   string             `json:"category"`
	Limit      decimal            `json:"limit"`
	Thresholds *thresholdsPayload `json:"thresholds,omitempty"`
	IsActive   *bool              `json:"isActive,omitempty"`
}

type setBudgetPayload struct {
	MonthlyLimit *decimal                 `json:"monthlyLimit,omitempty"`
	Thresholds   *thresholdsPayload       `json:"thresholds,omitempty"`
	Categories   *[]categoryBudgetPayload `json:"categories,omitempty"`
}

type categoryBudgetView struct {
	Category      string            `json:"category"`
	LimitPaise    int64             `json:"limitPaise"`
	Limit         string            `json:"limit"`
	SpentPaise    int64             `json:"spentPaise"`
	Spent         string            `json:"spent"`
	Thresholds    thresholdsPayload `json:"thresholds"`
	AlertsFired   int               `json:"alertsFired"`
	IsActive      bool              `json:"isActive"`
	LastAlertSent *time.Time        `json:"lastAlertSent,omitempty"`
}

type budgetView struct {
	Month         string               `json:"month"`
	LimitPaise    int64                `json:"monthlyLimitPaise"`
	Limit         string               `json:"monthlyLimit"`
	SpentPaise    int64                `json:"spentPaise"`
	Spent         string               `json:"spent"`
	Thresholds    thresholdsPayload    `json:"thresholds"`
	AlertsFired   int                  `json:"alertsFired"`
	LastAlertSent *time.Time           `json:"lastAlertSent,omitempty"`
	Categories    []categoryBudgetView `json:"categories"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func toBudgetView(b *core.BudgetRecord) budgetView {
	v := budgetView{
		Month:         string(b.Month),
		LimitPaise:    b.MonthlyLimit.Paise,
		Limit:         b.MonthlyLimit.FormatINR(),
		SpentPaise:    b.Spent.Paise,
		Spent:         b.Spent.FormatINR(),
		Thresholds:    thresholdsPayload{Warning: b.Thresholds.Warning, Critical: b.Thresholds.Critical},
		AlertsFired:   b.AlertsFired,
		LastAlertSent: b.LastAlertSent,
		Categories:    make([]categoryBudgetView, 0, len(b.Categories)),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for i := range b.Categories {
		cb := &b.Categories[i]
		v.Categories = append(v.Categories, categoryBudgetView{
			Category:      cb.Category,
			LimitPaise:    cb.Limit.Paise,
			Limit:         cb.Limit.FormatINR(),
			SpentPaise:    cb.Spent.Paise,
			Spent:         cb.Spent.FormatINR(),
			Thresholds:    thresholdsPayload{Warning: cb.Thresholds.Warning, Critical: cb.Thresholds.Critical},
			AlertsFired:   cb.AlertsFired,
			IsActive:      cb.IsActive,
			LastAlertSent: cb.LastAlertSent,
		})
	}
	return v
}

// parseLimitPaise parses a decimal rupee amount used as a limit. Unlike
// expense amounts a limit of zero is legal, it disables enforcement.
func parseLimitPaise(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	stripped := strings.Map(func(r rune) rune {
		if r == '0' || r == '.' {
			return -1
		}
		return r
	}, trimmed)
	if stripped == "" && strings.ContainsRune(trimmed, '0') {
		return 0, nil
	}
	return core.ParseDecimalToPaise(s)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetBudget(w, r)
	case http.MethodPut:
		s.handleSetBudget(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.budget.Get(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toBudgetView(b))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var payload setBudgetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var in services.SetBudgetInput

	if payload.MonthlyLimit != nil {
		paise, err := parseLimitPaise(string(*payload.MonthlyLimit))
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid monthly limit")
			return
		}
		in.MonthlyLimitPaise = &paise
	}
	if payload.Thresholds != nil {
		in.Thresholds = &core.AlertThresholds{
			Warning:  payload.Thresholds.Warning,
			Critical: payload.Thresholds.Critical,
		}
	}
	if payload.Categories != nil {
		inputs := make([]services.CategoryBudgetInput, 0, len(*payload.Categories))
		for _, cp := range *payload.Categories {
			paise, err := parseLimitPaise(string(cp.Limit))
			if err != nil {
				respondError(w, http.StatusUnprocessableEntity, "invalid limit for category "+cp.Category)
				return
			}
			input := services.CategoryBudgetInput{
				Category:   sanitizeInput(cp.Category),
				LimitPaise: paise,
				IsActive:   cp.IsActive,
			}
			if cp.Thresholds != nil {
				input.Thresholds = &core.AlertThresholds{
					Warning:  cp.Thresholds.Warning,
					Critical: cp.Thresholds.Critical,
				}
			}
			inputs = append(inputs, input)
		}
		in.Categories = &inputs
	}

	b, err := s.budget.Set(r.Context(), identity(r), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalBudgetWrites, 1)
	respondJSON(w, http.StatusOK, toBudgetView(b))
}

func (s *Server) handleBudgetReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	b, err := s.budget.Reset(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalBudgetWrites, 1)
	respondJSON(w, http.StatusOK, toBudgetView(b))
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st, err := s.budget.Status(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
