// Package notify maintains the bounded, newest-first list of user-facing
// alerts shared by the reminder poller and other producers.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/companion/internal/storage"
)

// maxNotifications caps the stored list. Every insert truncates to the most
// recent 50; entries beyond that are silently dropped. This data-loss policy
// is deliberate and relied upon.
const maxNotifications = 50

// Kind classifies a notification for display.
type Kind string

const (
	KindInfo     Kind = "info"
	KindWarning  Kind = "warning"
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
	KindReminder Kind = "reminder"
)

// Notification is a single user-facing alert.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
	ActionRef string    `json:"actionUrl,omitempty"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store provides access to the persisted notification list.
type Store struct {
	store *storage.Store
	clock Clock
}

// NewStore creates a Store backed by the given record store.
func NewStore(store *storage.Store) *Store {
	return &Store{store: store, clock: realClock{}}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(store *storage.Store, clock Clock) *Store {
	return &Store{store: store, clock: clock}
}

// Add inserts a notification at the head of the list, assigns it an ID and
// timestamp, and truncates the list to the 50 most recent entries. Returns
// the stored notification.
func (s *Store) Add(n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}
	n.Timestamp = s.clock.Now().UTC()

	_, err := storage.Update(s.store, storage.NSNotifications, func(ns []Notification) []Notification {
		ns = append([]Notification{n}, ns...)
		if len(ns) > maxNotifications {
			ns = ns[:maxNotifications]
		}
		return ns
	})
	if err != nil {
		return Notification{}, fmt.Errorf("adding notification: %w", err)
	}
	return n, nil
}

// List returns all stored notifications, newest first.
func (s *Store) List() ([]Notification, error) {
	ns, _, err := storage.Read[[]Notification](s.store, storage.NSNotifications)
	if err != nil {
		return nil, fmt.Errorf("loading notifications: %w", err)
	}
	return ns, nil
}

// MarkRead flags a single notification as read. Unknown IDs are a no-op.
func (s *Store) MarkRead(id string) error {
	_, err := storage.Update(s.store, storage.NSNotifications, func(ns []Notification) []Notification {
		for i := range ns {
			if ns[i].ID == id {
				ns[i].Read = true
				break
			}
		}
		return ns
	})
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every stored notification as read.
func (s *Store) MarkAllRead() error {
	_, err := storage.Update(s.store, storage.NSNotifications, func(ns []Notification) []Notification {
		for i := range ns {
			ns[i].Read = true
		}
		return ns
	})
	if err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// Delete removes a single notification. Unknown IDs are a no-op.
func (s *Store) Delete(id string) error {
	_, err := storage.Update(s.store, storage.NSNotifications, func(ns []Notification) []Notification {
		out := ns[:0]
		for _, n := range ns {
			if n.ID != id {
				out = append(out, n)
			}
		}
		return out
	})
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return nil
}

// Clear replaces the list with an empty one.
func (s *Store) Clear() error {
	if err := storage.Write(s.store, storage.NSNotifications, []Notification{}); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// UnreadCount computes the number of unread notifications. Derived on every
// call, never stored.
func (s *Store) UnreadCount() (int, error) {
	ns, err := s.List()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range ns {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
