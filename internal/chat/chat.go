// Package chat runs a conversation turn: persist, dispatch, persist, announce.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/events"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryLimit caps history requests without a session.
const HistoryLimit = 50

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Dispatcher turns input into a reply.
type Dispatcher interface {
	Process(ctx context.Context, input string, rc agent.RoutingContext) string
}

// Scrubber removes secrets before messages are stored.
type Scrubber interface {
	Scrub(content string) string
}

// Reply is the outcome of one turn.
type Reply struct {
	Message   string    `json:"message"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Service handles chat turns and history.
type Service struct {
	messages   store.MessageStore
	dispatcher Dispatcher
	publisher  events.Publisher
	scrubber   Scrubber
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher announces persisted messages.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithScrubber redacts stored messages.
func WithScrubber(sc Scrubber) Option {
	return func(s *Service) { s.scrubber = sc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat service.
func NewService(messages store.MessageStore, dispatcher Dispatcher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		messages:   messages,
		dispatcher: dispatcher,
		publisher:  events.Nop{},
		now:        time.Now,
		logger:     logger.Named("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send stores the user message, dispatches it and stores the reply under
// the same session. An empty sessionID starts a new session.
func (s *Service) Send(ctx context.Context, text, sessionID string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("session_id", sessionID))

	if err := s.save(ctx, store.RoleUser, text, sessionID); err != nil {
		return Reply{}, err
	}

	reply := s.dispatcher.Process(ctx, text, agent.RoutingContext{"session_id": sessionID})

	if err := s.save(ctx, store.RoleAssistant, reply, sessionID); err != nil {
		return Reply{}, err
	}
	logger.Debug("chat turn complete", zap.Int("reply_len", len(reply)))

	return Reply{Message: reply, SessionID: sessionID, Timestamp: s.now().UTC()}, nil
}

func (s *Service) save(ctx context.Context, role store.Role, content, sessionID string) error {
	if s.scrubber != nil {
		content = s.scrubber.Scrub(content)
	}
	msg := store.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		SessionID: sessionID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.messages.Add(ctx, msg); err != nil {
		return fmt.Errorf("saving %s message: %w", role, err)
	}
	if err := s.publisher.MessageSaved(ctx, msg); err != nil {
		s.logger.Warn("message event not published", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return nil
}

// History returns a session's messages oldest first, or the latest
// HistoryLimit messages newest first when sessionID is empty.
func (s *Service) History(ctx context.Context, sessionID string) ([]store.Message, error) {
	if sessionID != "" {
		return s.messages.ListBySession(ctx, sessionID)
	}
	return s.messages.ListRecent(ctx, HistoryLimit)
}
