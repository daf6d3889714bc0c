package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/storage"
)

// Alerter delivers a user-facing notification for a fired reminder.
// Implemented by notify.Store.
type Alerter interface {
	Add(n notify.Notification) (notify.Notification, error)
}

// DuePublisher pushes fired-reminder notifications to the event surface.
// Implemented by events.Bus.
type DuePublisher interface {
	PublishReminderDue(n notify.Notification)
}

// Poller periodically checks for due reminders. It is the single firing
// path: a due pending reminder is flipped to completed and yields exactly
// one notification, in the same pass. There is no per-creation timer, so a
// reminder can never fire twice.
type Poller struct {
	store     *storage.Store
	alerts    Alerter
	publisher DuePublisher // optional
	interval  time.Duration
	clock     Clock
	logger    *slog.Logger
}

// NewPoller creates a Poller with the given dependencies.
// If interval is <= 0, it defaults to 60s.
func NewPoller(store *storage.Store, alerts Alerter, publisher DuePublisher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		store:     store,
		alerts:    alerts,
		publisher: publisher,
		interval:  interval,
		clock:     realClock{},
		logger:    slog.Default(),
	}
}

// WithClock swaps the poller's clock (for testing).
func (p *Poller) WithClock(clock Clock) *Poller {
	p.clock = clock
	return p
}

// Run checks for due reminders until ctx is cancelled. The first check runs
// immediately so reminders already past due fire on startup.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.RunOnce(); err != nil {
			p.logger.Error("reminder poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// RunOnce performs a single due-check pass. Returns the number of reminders
// fired. The completion write happens atomically with the due scan, so a
// reminder observed due is completed before its notification goes out.
func (p *Poller) RunOnce() (int, error) {
	now := p.clock.Now()

	var fired []Reminder
	_, err := storage.Update(p.store, storage.NSReminders, func(rs []Reminder) []Reminder {
		for i := range rs {
			if rs[i].Completed || rs[i].DueAt.After(now) {
				continue
			}
			rs[i].Completed = true
			fired = append(fired, rs[i])
		}
		return rs
	})
	if err != nil {
		return 0, err
	}

	for _, r := range fired {
		n, err := p.alerts.Add(notify.Notification{
			Title:     "Reminder",
			Message:   r.Title,
			Kind:      notify.KindReminder,
			ActionRef: r.ID,
		})
		if err != nil {
			// The reminder is already completed; losing the notification is
			// preferable to firing it twice on the next pass.
			p.logger.Error("failed to deliver reminder notification", "reminder_id", r.ID, "error", err)
			continue
		}
		if p.publisher != nil {
			p.publisher.PublishReminderDue(n)
		}
	}
	return len(fired), nil
}
