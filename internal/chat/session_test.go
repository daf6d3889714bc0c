package chat

import (
	"testing"
	"time"

	"github.com/kalambet/companion/internal/storage"
)

func newTestSessions(t *testing.T) (*Sessions, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewSessionsWithClock(openTestStore(t), clock), clock
}

func TestCreateSetsCurrentAndDefaultTitle(t *testing.T) {
	sessions, _ := newTestSessions(t)

	sess, err := sessions.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Title != "Chat 2025-06-01" {
		t.Errorf("default title = %q", sess.Title)
	}

	cur, ok, err := sessions.Current()
	if err != nil || !ok {
		t.Fatalf("Current: ok=%v err=%v", ok, err)
	}
	if cur.ID != sess.ID {
		t.Errorf("current = %s, want %s", cur.ID, sess.ID)
	}
}

func TestCurrentEmptyStore(t *testing.T) {
	sessions, _ := newTestSessions(t)

	_, ok, err := sessions.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if ok {
		t.Error("Current reported a session in an empty store")
	}
}

func TestCurrentDanglingPointer(t *testing.T) {
	sessions, _ := newTestSessions(t)

	if err := storage.Write(sessions.store, storage.NSCurrentSession, "no-such-id"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, ok, err := sessions.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if ok {
		t.Error("dangling pointer resolved to a session")
	}
}

func TestAppendOrdersAndUnionsTopics(t *testing.T) {
	sessions, clock := newTestSessions(t)
	sess, _ := sessions.Create("")

	msg := func(content string) Message {
		return Message{ID: content, Content: content, Sender: SenderUser, Timestamp: clock.Now()}
	}

	sess, err := sessions.Append(sess.ID, msg("a"), []string{"Weather"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	clock.now = clock.now.Add(time.Minute)
	sess, err = sessions.Append(sess.ID, msg("b"), []string{"Weather", "Travel"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(sess.Messages) != 2 || sess.Messages[0].Content != "a" || sess.Messages[1].Content != "b" {
		t.Errorf("messages out of order: %+v", sess.Messages)
	}
	if len(sess.Topics) != 2 {
		t.Errorf("topics = %v, want deduplicated union of 2", sess.Topics)
	}
	if !sess.UpdatedAt.After(sess.CreatedAt) {
		t.Errorf("UpdatedAt not advanced: %v", sess.UpdatedAt)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	sessions, _ := newTestSessions(t)

	_, err := sessions.Append("ghost", Message{ID: "m"}, nil)
	if err == nil {
		t.Fatal("Append to unknown session succeeded")
	}
}

func TestDeleteClearsPointer(t *testing.T) {
	sessions, _ := newTestSessions(t)
	sess, _ := sessions.Create("")

	if err := sessions.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := sessions.Current(); ok {
		t.Error("pointer still set after deleting the current session")
	}
	all, _ := sessions.All()
	if len(all) != 0 {
		t.Errorf("got %d sessions after delete", len(all))
	}
}

func TestDeleteOtherSessionKeepsPointer(t *testing.T) {
	sessions, _ := newTestSessions(t)
	first, _ := sessions.Create("first")
	second, _ := sessions.Create("second")

	if err := sessions.Delete(first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	cur, ok, _ := sessions.Current()
	if !ok || cur.ID != second.ID {
		t.Errorf("current after delete = %+v ok=%v, want %s", cur, ok, second.ID)
	}
}

func TestSetCurrentSwitches(t *testing.T) {
	sessions, _ := newTestSessions(t)
	first, _ := sessions.Create("first")
	sessions.Create("second")

	if err := sessions.SetCurrent(first.ID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	cur, _, _ := sessions.Current()
	if cur.ID != first.ID {
		t.Errorf("current = %s, want %s", cur.ID, first.ID)
	}
}

func TestSetCurrentUnknownSession(t *testing.T) {
	sessions, _ := newTestSessions(t)

	if err := sessions.SetCurrent("ghost"); err == nil {
		t.Fatal("SetCurrent accepted an unknown session")
	}
}
