package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Namespace keys. The companion_ prefixes are load-bearing: they are the
// on-disk identity of each record slot and changing one orphans the data
// stored under the old key.
const (
	NSPreferences    = "companion_preferences"
	NSReminders      = "companion_reminders"
	NSNotifications  = "companion_notifications"
	NSTopics         = "companion_topics"
	NSSessions       = "companion_sessions"
	NSCurrentSession = "companion_current_session"
)

// Read decodes the record stored under namespace into T. A missing namespace
// returns ok=false with no error. A stored document that fails to decode is
// treated exactly like a missing one: the malformed payload is logged and
// left in place, to be overwritten by the next Write. This policy applies to
// every namespace; do not special-case callers.
func Read[T any](s *Store, namespace string) (T, bool, error) {
	var zero T
	raw, ok, err := s.GetRaw(namespace)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, ok := decode[T](namespace, raw)
	return v, ok, nil
}

// Write serializes v and overwrites the document stored under namespace.
func Write[T any](s *Store, namespace string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding namespace %q: %w", namespace, err)
	}
	return s.PutRaw(namespace, string(data))
}

// Update applies fn to the current value of namespace (zero value if absent
// or malformed) and writes the result back. The read and write happen under
// the store's mutex inside a single transaction, so concurrent in-process
// updates to the same collection serialize instead of clobbering each other.
func Update[T any](s *Store, namespace string, fn func(T) T) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return zero, fmt.Errorf("beginning update of %q: %w", namespace, err)
	}
	defer tx.Rollback()

	var current T
	var raw string
	err = tx.QueryRow("SELECT value FROM records WHERE namespace = ?", namespace).Scan(&raw)
	switch {
	case err == nil:
		current, _ = decode[T](namespace, raw)
	case errors.Is(err, sql.ErrNoRows):
		// absent: fn starts from the zero value
	default:
		return zero, fmt.Errorf("reading namespace %q: %w", namespace, err)
	}

	next := fn(current)

	data, err := json.Marshal(next)
	if err != nil {
		return zero, fmt.Errorf("encoding namespace %q: %w", namespace, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO records (namespace, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, string(data),
	); err != nil {
		return zero, fmt.Errorf("writing namespace %q: %w", namespace, err)
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("committing update of %q: %w", namespace, err)
	}
	return next, nil
}

func decode[T any](namespace, raw string) (T, bool) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("malformed record, treating as absent", "namespace", namespace, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}
