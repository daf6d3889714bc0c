// Package prefs manages the singleton user preference record.
package prefs

import (
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/companion/internal/storage"
)

// Preferences is the single user's settings record. It is saved wholesale on
// every settings change; there is no partial-field validation beyond
// presence.
type Preferences struct {
	Name                 string   `json:"name,omitempty"`
	Location             string   `json:"location,omitempty"`
	Interests            []string `json:"interests,omitempty"`
	NotificationsEnabled bool     `json:"notificationsEnabled"`
	AutoSave             bool     `json:"autoSave"`
	Language             string   `json:"language,omitempty"`
}

// Default returns the preferences used before the user has saved any.
func Default() Preferences {
	return Preferences{
		NotificationsEnabled: true,
		AutoSave:             true,
		Language:             "en",
	}
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to the preference record.
type Manager struct {
	store *storage.Store
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Preferences
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store, clock: realClock{}, ttl: 60 * time.Second}
}

// NewManagerWithClock creates a Manager with a custom clock and TTL (for testing).
func NewManagerWithClock(store *storage.Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl}
}

// Get returns the stored preferences, or the defaults if none have been
// saved (or the stored record is malformed).
func (m *Manager) Get() (Preferences, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := copyPrefs(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copyPrefs(m.cached), nil
	}

	p, ok, err := storage.Read[Preferences](m.store, storage.NSPreferences)
	if err != nil {
		return Preferences{}, fmt.Errorf("loading preferences: %w", err)
	}
	if !ok {
		p = Default()
	}
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return copyPrefs(&p), nil
}

// Save overwrites the preference record wholesale and invalidates the cache.
func (m *Manager) Save(p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := storage.Write(m.store, storage.NSPreferences, p); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	m.cached = nil
	return nil
}

// Summary renders the preferences as compact plain text for interpolation
// into an LLM prompt.
func (m *Manager) Summary() (string, error) {
	p, err := m.Get()
	if err != nil {
		return "", err
	}

	var s string
	if p.Name != "" {
		s += fmt.Sprintf("Name: %s. ", p.Name)
	}
	if p.Location != "" {
		s += fmt.Sprintf("Location: %s. ", p.Location)
	}
	if len(p.Interests) > 0 {
		s += "Interests: "
		for i, in := range p.Interests {
			if i > 0 {
				s += ", "
			}
			s += in
		}
		s += ". "
	}
	if p.Language != "" && p.Language != "en" {
		s += fmt.Sprintf("Preferred language: %s. ", p.Language)
	}
	return s, nil
}

func copyPrefs(p *Preferences) Preferences {
	out := *p
	if p.Interests != nil {
		out.Interests = append([]string(nil), p.Interests...)
	}
	return out
}
