package topics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/companion/internal/storage"
)

const (
	// maxTopics bounds the persisted collection; lowest-ranked entries
	// beyond it are dropped after every batch.
	maxTopics = 10

	trendingWindow = 7 * 24 * time.Hour
	trendingLimit  = 5
)

// Topic is a frequency-ranked conversation category. Name is its identity,
// compared case-insensitively.
type Topic struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Count    int       `json:"count"`
	LastUsed time.Time `json:"lastUsed"`
	Keywords []string  `json:"keywords"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Aggregator maintains the bounded, count-ranked topic collection persisted
// under the topics namespace.
type Aggregator struct {
	store *storage.Store
	clock Clock
}

// NewAggregator creates an Aggregator backed by the given store.
func NewAggregator(store *storage.Store) *Aggregator {
	return &Aggregator{store: store, clock: realClock{}}
}

// NewAggregatorWithClock creates an Aggregator with a custom clock (for testing).
func NewAggregatorWithClock(store *storage.Store, clock Clock) *Aggregator {
	return &Aggregator{store: store, clock: clock}
}

// Record applies a batch of extracted matches to the collection: existing
// topics (matched by name, case-insensitively) get count+1, a refreshed
// last-used timestamp, and any new keywords unioned in; unknown labels become
// new topics with count 1. The whole batch is applied first, then the
// collection is re-ranked and truncated to the top 10. Returns the persisted
// collection.
func (a *Aggregator) Record(matches []Match) ([]Topic, error) {
	if len(matches) == 0 {
		return a.All()
	}

	now := a.clock.Now().UTC()
	updated, err := storage.Update(a.store, storage.NSTopics, func(ts []Topic) []Topic {
		for _, m := range matches {
			ts = apply(ts, m, now)
		}
		rank(ts)
		if len(ts) > maxTopics {
			ts = ts[:maxTopics]
		}
		return ts
	})
	if err != nil {
		return nil, fmt.Errorf("recording topics: %w", err)
	}
	return updated, nil
}

func apply(ts []Topic, m Match, now time.Time) []Topic {
	for i := range ts {
		if strings.EqualFold(ts[i].Name, m.Label) {
			ts[i].Count++
			ts[i].LastUsed = now
			ts[i].Keywords = unionKeywords(ts[i].Keywords, m.Keywords)
			return ts
		}
	}
	return append(ts, Topic{
		ID:       uuid.New().String(),
		Name:     m.Label,
		Count:    1,
		LastUsed: now,
		Keywords: m.Keywords,
	})
}

// rank orders by count descending. Ties break on last-used descending, then
// name ascending, so the truncation boundary is deterministic.
func rank(ts []Topic) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Count != ts[j].Count {
			return ts[i].Count > ts[j].Count
		}
		if !ts[i].LastUsed.Equal(ts[j].LastUsed) {
			return ts[i].LastUsed.After(ts[j].LastUsed)
		}
		return ts[i].Name < ts[j].Name
	})
}

func unionKeywords(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, k := range existing {
		seen[k] = true
	}
	for _, k := range incoming {
		if !seen[k] {
			seen[k] = true
			existing = append(existing, k)
		}
	}
	return existing
}

// All returns the persisted collection in its ranked order.
func (a *Aggregator) All() ([]Topic, error) {
	ts, _, err := storage.Read[[]Topic](a.store, storage.NSTopics)
	if err != nil {
		return nil, fmt.Errorf("loading topics: %w", err)
	}
	return ts, nil
}

// Recent returns the first limit entries of the persisted collection. The
// collection is stored count-ranked, so "recent" means most frequent, not
// most recently used; callers depend on that.
func (a *Aggregator) Recent(limit int) ([]Topic, error) {
	ts, err := a.All()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ts) > limit {
		ts = ts[:limit]
	}
	return ts, nil
}

// Trending returns the top 5 topics used within the last 7 days, by count
// descending.
func (a *Aggregator) Trending() ([]Topic, error) {
	ts, err := a.All()
	if err != nil {
		return nil, err
	}

	threshold := a.clock.Now().UTC().Add(-trendingWindow)
	var recent []Topic
	for _, t := range ts {
		if t.LastUsed.After(threshold) {
			recent = append(recent, t)
		}
	}
	rank(recent)
	if len(recent) > trendingLimit {
		recent = recent[:trendingLimit]
	}
	return recent, nil
}
