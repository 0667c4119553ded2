package http

import (
	"net/http"
	"strings"
	"time"

	"kharcha/internal/core"
)

type notificationView struct {
	ID        string                `json:"id"`
	Type      core.NotificationType `json:"type"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Data      core.NotificationData `json:"data"`
	IsRead    bool                  `json:"isRead"`
	ReadAt    *time.Time            `json:"readAt,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

type notificationListView struct {
	Notifications []notificationView `json:"notifications"`
	Total         int64              `json:"total"`
	UnreadCount   int64              `json:"unreadCount"`
	Page          int                `json:"page"`
	Limit         int                `json:"limit"`
}

func toNotificationView(n *core.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	page, limit := parsePagination(r)
	unreadOnly := strings.EqualFold(r.URL.Query().Get("unread"), "true")

	notifications, total, err := s.notifications.List(r.Context(), identity(r), page, limit, unreadOnly)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	unread, err := s.notifications.UnreadCount(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	view := notificationListView{
		Notifications: make([]notificationView, 0, len(notifications)),
		Total:         total,
		UnreadCount:   unread,
		Page:          page,
		Limit:         limit,
	}
	for i := range notifications {
		view.Notifications = append(view.Notifications, toNotificationView(&notifications[i]))
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.notifications.UnreadCount(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", "PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	n, err := s.notifications.MarkRead(r.Context(), identity(r), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toNotificationView(n))
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", "PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	updated, err := s.notifications.MarkAllRead(r.Context(), identity(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
