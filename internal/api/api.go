// Package api exposes the assistant over HTTP for the local UI and CLI.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/storage"
	"github.com/kalambet/companion/internal/topics"
	"github.com/kalambet/companion/internal/weather"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store         *storage.Store
	Chat          *chat.Service
	Sessions      *chat.Sessions
	Prefs         *prefs.Manager
	Reminders     *reminder.Manager
	Notifications *notify.Store
	Topics        *topics.Aggregator
	Weather       *weather.Client
	Token         string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/chat", handleChat(deps))

	r.Get("/sessions", handleListSessions(deps))
	r.Post("/sessions", handleCreateSession(deps))
	r.Get("/sessions/current", handleCurrentSession(deps))
	r.Get("/sessions/{id}", handleGetSession(deps))
	r.Post("/sessions/{id}/activate", handleActivateSession(deps))
	r.Delete("/sessions/{id}", handleDeleteSession(deps))

	r.Get("/preferences", handleGetPreferences(deps))
	r.Put("/preferences", handlePutPreferences(deps))

	r.Get("/reminders", handleListReminders(deps))
	r.Post("/reminders", handleCreateReminder(deps))
	r.Get("/reminders/{id}", handleGetReminder(deps))
	r.Post("/reminders/{id}/complete", handleCompleteReminder(deps))
	r.Delete("/reminders/{id}", handleDeleteReminder(deps))

	r.Get("/notifications", handleListNotifications(deps))
	r.Get("/notifications/unread-count", handleUnreadCount(deps))
	r.Post("/notifications/read-all", handleMarkAllRead(deps))
	r.Post("/notifications/{id}/read", handleMarkRead(deps))
	r.Delete("/notifications/{id}", handleDeleteNotification(deps))
	r.Delete("/notifications", handleClearNotifications(deps))

	r.Get("/topics", handleListTopics(deps))
	r.Get("/topics/recent", handleRecentTopics(deps))
	r.Get("/topics/trending", handleTrendingTopics(deps))

	r.Get("/weather", handleWeather(deps))
	r.Get("/dashboard", handleDashboard(deps))

	r.Get("/data/export", handleExportData(deps))
	r.Delete("/data", handlePurgeData(deps))

	return r
}

type ChatRequest struct {
	Message string `json:"message"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := deps.Chat.Send(r.Context(), req.Message)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process message: %v", err)
			return
		}
		respondJSON(w, reply)
	}
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Sessions.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}
		if sessions == nil {
			sessions = []chat.Session{}
		}
		respondJSON(w, sessions)
	}
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		sess, err := deps.Sessions.Create(req.Title)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}
		respondJSON(w, sess)
	}
}

func handleCurrentSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok, err := deps.Sessions.Current()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load current session: %v", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no current session")
			return
		}
		respondJSON(w, sess)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		respondJSON(w, sess)
	}
}

func handleActivateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Sessions.SetCurrent(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to activate session: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "activated"})
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Sessions.Delete(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Prefs.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get preferences: %v", err)
			return
		}
		respondJSON(w, p)
	}
}

func handlePutPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var p prefs.Preferences
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Prefs.Save(p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save preferences: %v", err)
			return
		}
		respondJSON(w, p)
	}
}

type CreateReminderRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"datetime"`
}

func handleListReminders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reminders, err := deps.Reminders.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list reminders: %v", err)
			return
		}
		if reminders == nil {
			reminders = []reminder.Reminder{}
		}
		respondJSON(w, reminders)
	}
}

func handleCreateReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req CreateReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.DueAt.IsZero() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "datetime is required")
			return
		}

		rem, err := deps.Reminders.Create(req.Title, req.Description, req.DueAt)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create reminder: %v", err)
			return
		}
		respondJSON(w, rem)
	}
}

func handleGetReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rem, err := deps.Reminders.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get reminder: %v", err)
			return
		}
		respondJSON(w, rem)
	}
}

func handleCompleteReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Reminders.Complete(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete reminder: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "completed"})
	}
}

func handleDeleteReminder(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Reminders.Delete(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "reminder not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete reminder: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notifications, err := deps.Notifications.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notifications: %v", err)
			return
		}
		if notifications == nil {
			notifications = []notify.Notification{}
		}
		respondJSON(w, notifications)
	}
}

func handleUnreadCount(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Notifications.UnreadCount()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count notifications: %v", err)
			return
		}
		respondJSON(w, map[string]int{"unread": count})
	}
}

func handleMarkRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Notifications.MarkRead(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to mark notification read: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "read"})
	}
}

func handleMarkAllRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Notifications.MarkAllRead(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to mark notifications read: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "read"})
	}
}

func handleDeleteNotification(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Notifications.Delete(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete notification: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleClearNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Notifications.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear notifications: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "cleared"})
	}
}

func handleListTopics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := deps.Topics.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list topics: %v", err)
			return
		}
		if ts == nil {
			ts = []topics.Topic{}
		}
		respondJSON(w, ts)
	}
}

func handleRecentTopics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 5, 10)
		ts, err := deps.Topics.Recent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list recent topics: %v", err)
			return
		}
		if ts == nil {
			ts = []topics.Topic{}
		}
		respondJSON(w, ts)
	}
}

func handleTrendingTopics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := deps.Topics.Trending()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list trending topics: %v", err)
			return
		}
		if ts == nil {
			ts = []topics.Topic{}
		}
		respondJSON(w, ts)
	}
}

type WeatherResponse struct {
	City       string         `json:"city"`
	Report     weather.Report `json:"report"`
	Suggestion string         `json:"suggestion"`
}

// handleWeather resolves the city from the query string, falling back to
// the preferred location. It always returns a report; upstream failures
// degrade to canned conditions inside the weather client.
func handleWeather(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("city")
		if city == "" {
			p, err := deps.Prefs.Get()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to get preferences: %v", err)
				return
			}
			city = p.Location
		}
		if city == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no city given and no preferred location set")
			return
		}

		report := deps.Weather.Current(r.Context(), city)
		respondJSON(w, WeatherResponse{
			City:       city,
			Report:     report,
			Suggestion: weather.Suggestion(report),
		})
	}
}

func handleExportData(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespaces, err := deps.Store.Namespaces()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list namespaces: %v", err)
			return
		}

		export := make(map[string]json.RawMessage, len(namespaces))
		for _, ns := range namespaces {
			raw, ok, err := deps.Store.GetRaw(ns)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to read %s: %v", ns, err)
				return
			}
			if !ok {
				continue
			}
			if json.Valid([]byte(raw)) {
				export[ns] = json.RawMessage(raw)
			} else {
				// Malformed records are exported as strings so nothing is lost.
				quoted, _ := json.Marshal(raw)
				export[ns] = quoted
			}
		}
		respondJSON(w, export)
	}
}

func handlePurgeData(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Purge(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to purge data: %v", err)
			return
		}
		respondJSON(w, map[string]string{"status": "purged"})
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
