// Package reminder manages one-shot reminders and the poller that fires
// them. A reminder is pending until its due instant passes; the poll cycle
// then marks it completed and emits a single notification. Completion is
// terminal.
package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/companion/internal/storage"
)

// Reminder is a one-shot alert at a wall-clock instant. DueAt is compared
// against local "now"; there is no recurrence and no timezone normalization.
type Reminder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueAt       time.Time `json:"datetime"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides CRUD over the persisted reminder collection.
type Manager struct {
	store *storage.Store
	clock Clock
}

// NewManager creates a Manager backed by the given store.
func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store, clock: realClock{}}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store *storage.Store, clock Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// Create persists a new pending reminder and returns it with its assigned ID
// and creation timestamp.
func (m *Manager) Create(title, description string, dueAt time.Time) (Reminder, error) {
	r := Reminder{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		DueAt:       dueAt,
		CreatedAt:   m.clock.Now().UTC(),
	}
	_, err := storage.Update(m.store, storage.NSReminders, func(rs []Reminder) []Reminder {
		return append(rs, r)
	})
	if err != nil {
		return Reminder{}, fmt.Errorf("creating reminder: %w", err)
	}
	return r, nil
}

// List returns all reminders in display order: pending before completed,
// ascending by due time within each group.
func (m *Manager) List() ([]Reminder, error) {
	rs, _, err := storage.Read[[]Reminder](m.store, storage.NSReminders)
	if err != nil {
		return nil, fmt.Errorf("loading reminders: %w", err)
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Completed != rs[j].Completed {
			return !rs[i].Completed
		}
		return rs[i].DueAt.Before(rs[j].DueAt)
	})
	return rs, nil
}

// Get returns a single reminder by ID.
func (m *Manager) Get(id string) (Reminder, error) {
	rs, _, err := storage.Read[[]Reminder](m.store, storage.NSReminders)
	if err != nil {
		return Reminder{}, fmt.Errorf("loading reminders: %w", err)
	}
	for _, r := range rs {
		if r.ID == id {
			return r, nil
		}
	}
	return Reminder{}, storage.ErrNotFound
}

// Complete flips a reminder to completed. Completion is one-way; completing
// an already-completed reminder is a no-op.
func (m *Manager) Complete(id string) error {
	found := false
	_, err := storage.Update(m.store, storage.NSReminders, func(rs []Reminder) []Reminder {
		for i := range rs {
			if rs[i].ID == id {
				rs[i].Completed = true
				found = true
				break
			}
		}
		return rs
	})
	if err != nil {
		return fmt.Errorf("completing reminder: %w", err)
	}
	if !found {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a reminder by ID.
func (m *Manager) Delete(id string) error {
	found := false
	_, err := storage.Update(m.store, storage.NSReminders, func(rs []Reminder) []Reminder {
		out := rs[:0]
		for _, r := range rs {
			if r.ID == id {
				found = true
				continue
			}
			out = append(out, r)
		}
		return out
	})
	if err != nil {
		return fmt.Errorf("deleting reminder: %w", err)
	}
	if !found {
		return storage.ErrNotFound
	}
	return nil
}
