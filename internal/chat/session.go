// Package chat manages conversation sessions and drives the exchange with
// the hosted completion model.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/companion/internal/storage"
)

// Message senders. A message carries exactly one of these tags.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one utterance in a session. Immutable once created;
// append-only within a session.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is an ordered conversation. Exactly one session is current at a
// time, tracked by a separate pointer record; sessions are created
// explicitly and never auto-expired.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Topics    []string  `json:"topics"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sessions provides access to the persisted session collection and the
// current-session pointer.
type Sessions struct {
	store *storage.Store
	clock Clock
}

// NewSessions creates a Sessions manager backed by the given store.
func NewSessions(store *storage.Store) *Sessions {
	return &Sessions{store: store, clock: realClock{}}
}

// NewSessionsWithClock creates a Sessions manager with a custom clock (for testing).
func NewSessionsWithClock(store *storage.Store, clock Clock) *Sessions {
	return &Sessions{store: store, clock: clock}
}

// Create starts a new session, persists it, and points the current-session
// pointer at it. An empty title defaults to "Chat <date>".
func (s *Sessions) Create(title string) (Session, error) {
	now := s.clock.Now().UTC()
	if title == "" {
		title = "Chat " + now.Format("2006-01-02")
	}
	sess := Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// All returns every stored session.
func (s *Sessions) All() ([]Session, error) {
	sessions, _, err := storage.Read[[]Session](s.store, storage.NSSessions)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	return sessions, nil
}

// Get returns a single session by ID.
func (s *Sessions) Get(id string) (Session, error) {
	sessions, err := s.All()
	if err != nil {
		return Session{}, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return Session{}, storage.ErrNotFound
}

// Current returns the session the pointer record references, or ok=false if
// there is no current session (no pointer, or a dangling one).
func (s *Sessions) Current() (Session, bool, error) {
	id, ok, err := storage.Read[string](s.store, storage.NSCurrentSession)
	if err != nil {
		return Session{}, false, fmt.Errorf("loading current session pointer: %w", err)
	}
	if !ok || id == "" {
		return Session{}, false, nil
	}
	sess, err := s.Get(id)
	if err == storage.ErrNotFound {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Append adds a message to a session, refreshes its updated timestamp, and
// unions in any new topic labels. Returns the updated session.
func (s *Sessions) Append(sessionID string, msg Message, labels []string) (Session, error) {
	var out Session
	found := false
	_, err := storage.Update(s.store, storage.NSSessions, func(sessions []Session) []Session {
		for i := range sessions {
			if sessions[i].ID != sessionID {
				continue
			}
			sessions[i].Messages = append(sessions[i].Messages, msg)
			sessions[i].UpdatedAt = s.clock.Now().UTC()
			sessions[i].Topics = unionLabels(sessions[i].Topics, labels)
			out = sessions[i]
			found = true
			break
		}
		return sessions
	})
	if err != nil {
		return Session{}, fmt.Errorf("appending message: %w", err)
	}
	if !found {
		return Session{}, storage.ErrNotFound
	}
	return out, nil
}

// Delete removes a session. If the current-session pointer referenced it,
// the pointer is cleared.
func (s *Sessions) Delete(id string) error {
	found := false
	_, err := storage.Update(s.store, storage.NSSessions, func(sessions []Session) []Session {
		out := sessions[:0]
		for _, sess := range sessions {
			if sess.ID == id {
				found = true
				continue
			}
			out = append(out, sess)
		}
		return out
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if !found {
		return storage.ErrNotFound
	}

	current, ok, err := storage.Read[string](s.store, storage.NSCurrentSession)
	if err != nil {
		return err
	}
	if ok && current == id {
		if err := s.store.Delete(storage.NSCurrentSession); err != nil {
			return fmt.Errorf("clearing current session pointer: %w", err)
		}
	}
	return nil
}

// SetCurrent points the current-session pointer at an existing session.
func (s *Sessions) SetCurrent(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return storage.Write(s.store, storage.NSCurrentSession, id)
}

// save upserts a session into the collection and sets the pointer to it.
func (s *Sessions) save(sess Session) error {
	_, err := storage.Update(s.store, storage.NSSessions, func(sessions []Session) []Session {
		for i := range sessions {
			if sessions[i].ID == sess.ID {
				sessions[i] = sess
				return sessions
			}
		}
		return append(sessions, sess)
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := storage.Write(s.store, storage.NSCurrentSession, sess.ID); err != nil {
		return fmt.Errorf("setting current session pointer: %w", err)
	}
	return nil
}

func unionLabels(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, l := range existing {
		seen[l] = true
	}
	for _, l := range incoming {
		if !seen[l] {
			seen[l] = true
			existing = append(existing, l)
		}
	}
	return existing
}
