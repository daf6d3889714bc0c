package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/topics"
)

// fallbackReply is surfaced verbatim when the completion call fails. The
// failure is logged; it never propagates to the caller.
const fallbackReply = "Sorry, I encountered an error. Please try again."

// historyWindow bounds how much recent conversation is interpolated into
// the prompt.
const historyWindow = 5

// Completer produces a plain-text completion for a plain-text prompt.
// Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Publisher pushes conversation events to the UI-facing surface.
// Implemented by events.Bus.
type Publisher interface {
	PublishMessage(m Message)
	PublishTopicsChanged(ts []topics.Topic)
}

// Service runs a user utterance through the whole conversation flow:
// persist, classify, aggregate, prompt the model, persist the reply.
type Service struct {
	sessions   *Sessions
	prefs      *prefs.Manager
	aggregator *topics.Aggregator
	completer  Completer
	publisher  Publisher // optional
	clock      Clock
	logger     *slog.Logger
}

// NewService creates a Service with the given collaborators. publisher may
// be nil when no presentation layer is attached.
func NewService(sessions *Sessions, prefsMgr *prefs.Manager, aggregator *topics.Aggregator, completer Completer, publisher Publisher) *Service {
	return &Service{
		sessions:   sessions,
		prefs:      prefsMgr,
		aggregator: aggregator,
		completer:  completer,
		publisher:  publisher,
		clock:      realClock{},
		logger:     slog.Default(),
	}
}

// WithClock swaps the service clock (for testing).
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	s.sessions.clock = clock
	return s
}

// Send processes one user message in the current session (creating a session
// if none is current) and returns the assistant's reply message. Topic
// extraction and aggregation happen before the completion call; a failed
// completion degrades to a static reply and still yields a persisted
// assistant message.
func (s *Service) Send(ctx context.Context, text string) (Message, error) {
	sess, ok, err := s.sessions.Current()
	if err != nil {
		return Message{}, err
	}
	if !ok {
		sess, err = s.sessions.Create("")
		if err != nil {
			return Message{}, err
		}
	}

	history := lastMessages(sess.Messages, historyWindow)

	userMsg := Message{
		ID:        uuid.New().String(),
		Content:   text,
		Sender:    SenderUser,
		Timestamp: s.clock.Now().UTC(),
	}

	matches := topics.ExtractMatches(text)
	labels := make([]string, len(matches))
	for i, m := range matches {
		labels[i] = m.Label
	}

	sess, err = s.sessions.Append(sess.ID, userMsg, labels)
	if err != nil {
		return Message{}, fmt.Errorf("recording user message: %w", err)
	}
	if s.publisher != nil {
		s.publisher.PublishMessage(userMsg)
	}

	ranked, err := s.aggregator.Record(matches)
	if err != nil {
		// Topic bookkeeping must not break the conversation.
		s.logger.Warn("failed to record topics", "error", err)
	} else if s.publisher != nil {
		s.publisher.PublishTopicsChanged(ranked)
	}

	summary, err := s.prefs.Summary()
	if err != nil {
		s.logger.Warn("failed to summarize preferences", "error", err)
		summary = ""
	}

	reply, err := s.completer.Complete(ctx, buildPrompt(summary, history, text))
	if err != nil {
		s.logger.Warn("completion failed, using fallback reply", "error", err)
		reply = fallbackReply
	}

	assistantMsg := Message{
		ID:        uuid.New().String(),
		Content:   reply,
		Sender:    SenderAssistant,
		Timestamp: s.clock.Now().UTC(),
	}
	if _, err := s.sessions.Append(sess.ID, assistantMsg, nil); err != nil {
		return Message{}, fmt.Errorf("recording assistant message: %w", err)
	}
	if s.publisher != nil {
		s.publisher.PublishMessage(assistantMsg)
	}

	return assistantMsg, nil
}

// buildPrompt interpolates preferences and recent history into the prompt as
// plain text. No schema beyond text in, text out.
func buildPrompt(prefsSummary string, history []Message, text string) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful personal assistant. Consider the user's preferences and conversation history.\n")
	if prefsSummary != "" {
		sb.WriteString("User preferences: ")
		sb.WriteString(prefsSummary)
		sb.WriteString("\n")
	}
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range history {
			sb.WriteString(m.Sender)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(text)
	sb.WriteString("\n\nProvide a helpful, personalized response:")
	return sb.String()
}

func lastMessages(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
