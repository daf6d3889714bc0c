package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/companion/internal/storage"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewStoreWithClock(s, clock), clock
}

func TestAddInsertsAtHead(t *testing.T) {
	s, clock := newTestStore(t)

	first, err := s.Add(Notification{Title: "first", Kind: KindInfo})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	clock.now = clock.now.Add(time.Minute)
	second, err := s.Add(Notification{Title: "second", Kind: KindInfo})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d notifications, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("list not newest-first: %v", []string{list[0].Title, list[1].Title})
	}
}

// TestAddTruncatesToFifty verifies the cap and that the 51st insertion evicts
// exactly the oldest entry.
func TestAddTruncatesToFifty(t *testing.T) {
	s, clock := newTestStore(t)

	for i := range maxNotifications {
		clock.now = clock.now.Add(time.Second)
		if _, err := s.Add(Notification{Title: fmt.Sprintf("n%d", i)}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	clock.now = clock.now.Add(time.Second)
	if _, err := s.Add(Notification{Title: "overflow"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != maxNotifications {
		t.Fatalf("got %d notifications, want %d", len(list), maxNotifications)
	}
	if list[0].Title != "overflow" {
		t.Errorf("head = %q, want the newest entry", list[0].Title)
	}
	// n0 (the oldest) must be the evicted one; n1 survives at the tail.
	if list[len(list)-1].Title != "n1" {
		t.Errorf("tail = %q, want n1", list[len(list)-1].Title)
	}
	for _, n := range list {
		if n.Title == "n0" {
			t.Error("oldest entry survived the cap")
		}
	}
}

func TestUnreadCountDerived(t *testing.T) {
	s, _ := newTestStore(t)

	var ids []string
	for i := range 5 {
		n, err := s.Add(Notification{Title: fmt.Sprintf("n%d", i)})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, n.ID)
	}

	if got, _ := s.UnreadCount(); got != 5 {
		t.Errorf("UnreadCount = %d, want 5", got)
	}

	if err := s.MarkRead(ids[1]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := s.MarkRead(ids[3]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got, _ := s.UnreadCount(); got != 3 {
		t.Errorf("UnreadCount = %d, want 3", got)
	}

	if err := s.MarkAllRead(); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if got, _ := s.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount = %d, want 0 after MarkAllRead", got)
	}
}

func TestMarkReadUnknownIDIsNoop(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.Add(Notification{Title: "n"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.MarkRead("no-such-id"); err != nil {
		t.Errorf("MarkRead unknown id: %v", err)
	}
	if got, _ := s.UnreadCount(); got != 1 {
		t.Errorf("UnreadCount = %d, want 1", got)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)

	n1, _ := s.Add(Notification{Title: "keep"})
	n2, _ := s.Add(Notification{Title: "drop"})

	if err := s.Delete(n2.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != n1.ID {
		t.Errorf("list after delete = %v", list)
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)

	s.Add(Notification{Title: "a"})
	s.Add(Notification{Title: "b"})

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d notifications after Clear, want 0", len(list))
	}
}

func TestAddDefaultsKind(t *testing.T) {
	s, _ := newTestStore(t)

	n, err := s.Add(Notification{Title: "no kind"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n.Kind != KindInfo {
		t.Errorf("kind = %q, want info default", n.Kind)
	}
}
