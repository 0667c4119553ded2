package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kharcha/internal/log"
	"kharcha/internal/middleware/trace"
	"kharcha/internal/services"
)

// Pinger verifies the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// appMetrics tracks application-level counters exposed on /metrics.
type appMetrics struct {
	totalExpenses     int64
	totalBudgetWrites int64
	uptime            time.Time
}

type Server struct {
	http.Server

	budget        *services.BudgetService
	expenses      *services.ExpenseService
	notifications *services.NotificationService
	pinger        Pinger

	rateLimiter *rateLimiter
	secMetrics  *securityMetrics
	trace       *trace.Middleware
	appMetrics  *appMetrics
	logger      *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, budget *services.BudgetService, expenses *services.ExpenseService, notifications *services.NotificationService, pinger Pinger, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		budget:        budget,
		expenses:      expenses,
		notifications: notifications,
		pinger:        pinger,
		rateLimiter:   newRateLimiter(),
		secMetrics:    &securityMetrics{},
		trace:         trace.NewMiddleware(extractClientIP),
		appMetrics:    &appMetrics{uptime: time.Now()},
		logger:        logger.WithComponent(log.ComponentHTTP),
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/budget", s.secured(s.handleBudget))
	mux.HandleFunc("/api/budget/reset", s.secured(s.handleBudgetReset))
	mux.HandleFunc("/api/budget/status", s.secured(s.handleBudgetStatus))

	mux.HandleFunc("/api/expenses", s.secured(s.handleExpenses))
	mux.HandleFunc("/api/expenses/{id}", s.secured(s.handleExpenseByID))

	mux.HandleFunc("/api/notifications", s.secured(s.handleListNotifications))
	mux.HandleFunc("/api/notifications/unread-count", s.secured(s.handleUnreadCount))
	mux.HandleFunc("/api/notifications/{id}/read", s.secured(s.handleMarkRead))
	mux.HandleFunc("/api/notifications/read-all", s.secured(s.handleMarkAllRead))

	withRequestID := log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	handler := log.Middleware(s.logger)(withRequestID(mux))

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.trace.Middleware(handler),
	}

	return s
}

// secured adds security headers, suspicious request detection and rate
// limiting in front of an API handler.
func (s *Server) secured(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.secMetrics) {
			s.logger.WarnContext(r.Context(), "Suspicious request blocked",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			respondError(w, http.StatusBadRequest, "bad request")
			return
		}

		// Rate limit mutating requests only, reads are cheap.
		mutating := r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete
		if mutating && !s.rateLimiter.allow(clientIP, s.secMetrics) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if identity(r) == "" {
			respondError(w, http.StatusUnauthorized, "missing user identity")
			return
		}

		next(w, r)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
