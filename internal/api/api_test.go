package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/storage"
	"github.com/kalambet/companion/internal/topics"
	"github.com/kalambet/companion/internal/weather"
)

const testToken = "test-token-12345"

type stubCompleter struct {
	reply string
}

func (s stubCompleter) Complete(_ context.Context, _ string) (string, error) {
	return s.reply, nil
}

func setupAppHandler(t *testing.T, token string) (http.Handler, AppDeps) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Weather endpoint that is already closed, so lookups fall back.
	weatherSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	weatherSrv.Close()

	sessions := chat.NewSessions(store)
	prefsMgr := prefs.NewManager(store)
	agg := topics.NewAggregator(store)

	deps := AppDeps{
		Store:         store,
		Chat:          chat.NewService(sessions, prefsMgr, agg, stubCompleter{reply: "assistant says hi"}, nil),
		Sessions:      sessions,
		Prefs:         prefsMgr,
		Reminders:     reminder.NewManager(store),
		Notifications: notify.NewStore(store),
		Topics:        agg,
		Weather:       weather.NewClientWithBaseURL(weatherSrv.URL),
		Token:         token,
	}
	return NewAppHandler(deps), deps
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	for _, token := range []string{"", "wrong-token"} {
		rr := do(t, h, authReq(http.MethodGet, "/preferences", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestChatRoundTrip(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodPost, "/chat", `{"message":"hello"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var reply chat.Message
	json.NewDecoder(rr.Body).Decode(&reply)
	if reply.Sender != chat.SenderAssistant || reply.Content != "assistant says hi" {
		t.Errorf("reply = %+v", reply)
	}

	// The conversation persisted a session reachable over the API.
	rr = do(t, h, authReq(http.MethodGet, "/sessions/current", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("current session status = %d", rr.Code)
	}
	var sess chat.Session
	json.NewDecoder(rr.Body).Decode(&sess)
	if len(sess.Messages) != 2 {
		t.Errorf("session has %d messages, want 2", len(sess.Messages))
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodPost, "/chat", `{"message":""}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestCurrentSessionEmptyStore(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodGet, "/sessions/current", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodPost, "/sessions", `{"title":"planning"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sess chat.Session
	json.NewDecoder(rr.Body).Decode(&sess)
	if sess.Title != "planning" {
		t.Errorf("title = %q", sess.Title)
	}

	rr = do(t, h, authReq(http.MethodGet, "/sessions/"+sess.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get status = %d", rr.Code)
	}

	rr = do(t, h, authReq(http.MethodDelete, "/sessions/"+sess.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}

	rr = do(t, h, authReq(http.MethodGet, "/sessions/"+sess.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodGet, "/preferences", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var p prefs.Preferences
	json.NewDecoder(rr.Body).Decode(&p)
	if !p.NotificationsEnabled {
		t.Error("defaults not applied on empty store")
	}

	body := `{"name":"Sam","location":"Lisbon","notificationsEnabled":true,"autoSave":true,"language":"en"}`
	rr = do(t, h, authReq(http.MethodPut, "/preferences", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, authReq(http.MethodGet, "/preferences", "", testToken))
	json.NewDecoder(rr.Body).Decode(&p)
	if p.Name != "Sam" || p.Location != "Lisbon" {
		t.Errorf("preferences = %+v", p)
	}
}

func TestReminderLifecycle(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	due := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rr := do(t, h, authReq(http.MethodPost, "/reminders", `{"title":"standup","datetime":"`+due+`"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var rem reminder.Reminder
	json.NewDecoder(rr.Body).Decode(&rem)
	if rem.ID == "" || rem.Completed {
		t.Errorf("reminder = %+v", rem)
	}

	rr = do(t, h, authReq(http.MethodPost, "/reminders/"+rem.ID+"/complete", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("complete status = %d", rr.Code)
	}

	rr = do(t, h, authReq(http.MethodGet, "/reminders/"+rem.ID, "", testToken))
	json.NewDecoder(rr.Body).Decode(&rem)
	if !rem.Completed {
		t.Error("reminder not completed")
	}

	rr = do(t, h, authReq(http.MethodDelete, "/reminders/"+rem.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
	rr = do(t, h, authReq(http.MethodGet, "/reminders/"+rem.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestCreateReminderValidation(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	cases := []string{
		`{"datetime":"2030-01-01T00:00:00Z"}`,
		`{"title":"no due"}`,
		`{not json`,
	}
	for _, body := range cases {
		rr := do(t, h, authReq(http.MethodPost, "/reminders", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestNotificationsEndpoints(t *testing.T) {
	h, deps := setupAppHandler(t, testToken)

	n1, _ := deps.Notifications.Add(notify.Notification{Title: "first"})
	deps.Notifications.Add(notify.Notification{Title: "second"})

	rr := do(t, h, authReq(http.MethodGet, "/notifications", "", testToken))
	var list []notify.Notification
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 2 {
		t.Fatalf("got %d notifications", len(list))
	}

	rr = do(t, h, authReq(http.MethodPost, "/notifications/"+n1.ID+"/read", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("mark read status = %d", rr.Code)
	}

	rr = do(t, h, authReq(http.MethodGet, "/notifications/unread-count", "", testToken))
	var count map[string]int
	json.NewDecoder(rr.Body).Decode(&count)
	if count["unread"] != 1 {
		t.Errorf("unread = %d, want 1", count["unread"])
	}

	rr = do(t, h, authReq(http.MethodDelete, "/notifications", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("clear status = %d", rr.Code)
	}
	rr = do(t, h, authReq(http.MethodGet, "/notifications", "", testToken))
	list = nil
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 0 {
		t.Errorf("got %d notifications after clear", len(list))
	}
}

func TestTopicsEndpoints(t *testing.T) {
	h, deps := setupAppHandler(t, testToken)

	deps.Topics.Record(topics.ExtractMatches("what's the weather like?"))
	deps.Topics.Record(topics.ExtractMatches("remind me to stretch"))

	rr := do(t, h, authReq(http.MethodGet, "/topics/trending", "", testToken))
	var trending []topics.Topic
	json.NewDecoder(rr.Body).Decode(&trending)
	if len(trending) == 0 {
		t.Error("trending empty after fresh records")
	}

	rr = do(t, h, authReq(http.MethodGet, "/topics/recent?limit=1", "", testToken))
	var recent []topics.Topic
	json.NewDecoder(rr.Body).Decode(&recent)
	if len(recent) != 1 {
		t.Errorf("recent limit not honored: got %d", len(recent))
	}
}

func TestWeatherFallsBackToPreferredLocation(t *testing.T) {
	h, deps := setupAppHandler(t, testToken)

	p, _ := deps.Prefs.Get()
	p.Location = "Lisbon"
	deps.Prefs.Save(p)

	rr := do(t, h, authReq(http.MethodGet, "/weather", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp WeatherResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.City != "Lisbon" {
		t.Errorf("city = %q", resp.City)
	}
	if resp.Suggestion == "" {
		t.Error("suggestion missing")
	}
}

func TestWeatherNoCityAnywhere(t *testing.T) {
	h, _ := setupAppHandler(t, testToken)

	rr := do(t, h, authReq(http.MethodGet, "/weather", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDashboardCombinesSources(t *testing.T) {
	h, deps := setupAppHandler(t, testToken)

	deps.Reminders.Create("standup", "", time.Now().Add(time.Hour))
	deps.Notifications.Add(notify.Notification{Title: "hi"})
	deps.Topics.Record(topics.ExtractMatches("let's talk about music"))

	rr := do(t, h, authReq(http.MethodGet, "/dashboard", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp DashboardResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Reminders) != 1 {
		t.Errorf("reminders = %d", len(resp.Reminders))
	}
	if len(resp.Notifications) != 1 || resp.UnreadCount != 1 {
		t.Errorf("notifications = %d unread = %d", len(resp.Notifications), resp.UnreadCount)
	}
	if len(resp.TrendingTopics) == 0 {
		t.Error("trending topics empty")
	}
	if resp.Weather != nil {
		t.Error("weather present without a preferred location")
	}
}

func TestExportAndPurge(t *testing.T) {
	h, deps := setupAppHandler(t, testToken)

	deps.Notifications.Add(notify.Notification{Title: "keep me"})

	rr := do(t, h, authReq(http.MethodGet, "/data/export", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	var export map[string]json.RawMessage
	json.NewDecoder(rr.Body).Decode(&export)
	if _, ok := export[storage.NSNotifications]; !ok {
		t.Errorf("export missing %s: %v", storage.NSNotifications, export)
	}

	rr = do(t, h, authReq(http.MethodDelete, "/data", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("purge status = %d", rr.Code)
	}

	namespaces, _ := deps.Store.Namespaces()
	if len(namespaces) != 0 {
		t.Errorf("namespaces after purge = %v", namespaces)
	}
}
