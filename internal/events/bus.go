// Package events fans application events out to in-process subscribers.
// The HTTP layer and the CLI attach here to surface new messages, fired
// reminders, and topic changes without coupling the producers to the
// presentation surfaces.
package events

import (
	"sync"

	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/topics"
)

// Bus is a synchronous publish/subscribe hub. Subscribers are invoked on
// the publisher's goroutine, in registration order; a slow subscriber
// slows the publisher, so handlers must be cheap or hand off themselves.
// Subscriptions cannot be removed, the bus lives for the process.
type Bus struct {
	mu         sync.RWMutex
	onMessage  []func(chat.Message)
	onReminder []func(notify.Notification)
	onTopics   []func([]topics.Topic)
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// OnMessage registers a handler for new chat messages.
func (b *Bus) OnMessage(fn func(chat.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = append(b.onMessage, fn)
}

// OnReminderDue registers a handler for fired-reminder notifications.
func (b *Bus) OnReminderDue(fn func(notify.Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReminder = append(b.onReminder, fn)
}

// OnTopicsChanged registers a handler for topic ranking updates. The
// handler receives the full ranked snapshot, not a delta.
func (b *Bus) OnTopicsChanged(fn func([]topics.Topic)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTopics = append(b.onTopics, fn)
}

// PublishMessage delivers a chat message to every message subscriber.
func (b *Bus) PublishMessage(m chat.Message) {
	b.mu.RLock()
	handlers := b.onMessage
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(m)
	}
}

// PublishReminderDue delivers a fired-reminder notification to every
// reminder subscriber.
func (b *Bus) PublishReminderDue(n notify.Notification) {
	b.mu.RLock()
	handlers := b.onReminder
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

// PublishTopicsChanged delivers a ranked topic snapshot to every topic
// subscriber.
func (b *Bus) PublishTopicsChanged(ts []topics.Topic) {
	b.mu.RLock()
	handlers := b.onTopics
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(ts)
	}
}
