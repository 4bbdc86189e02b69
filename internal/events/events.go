// Package events publishes assistant activity on NATS.
//
// Subjects:
//   - chat.{session_id}.{role} for every persisted chat message
//   - reminders.due for every reminder the scheduler fires
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectReminderDue carries fired reminders.
const SubjectReminderDue = "reminders.due"

// ErrPublish wraps transport failures.
var ErrPublish = errors.New("event publish failed")

// MessageEvent is the payload of a chat subject.
type MessageEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReminderEvent is the payload of SubjectReminderDue.
type ReminderEvent struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	RemindAt          time.Time `json:"remind_at"`
	Recurring         bool      `json:"recurring"`
	RecurrencePattern string    `json:"recurrence_pattern,omitempty"`
	FiredAt           time.Time `json:"fired_at"`
}

// Publisher announces domain events. Implementations must not block on
// slow consumers.
type Publisher interface {
	MessageSaved(ctx context.Context, m store.Message) error
	ReminderDue(ctx context.Context, r store.Reminder, firedAt time.Time) error
}

// Config configures the NATS connection.
type Config struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = time.Second
	}
}

// Connect dials NATS with reconnect handling.
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	nc, err := nats.Connect(cfg.URL,
		nats.Name("assistantd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.URL))
	return nc, nil
}

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher. prefix, if set, is prepended to
// every subject with a dot.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, ".")
	if prefix != "" {
		prefix += "."
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// MessageSaved publishes on chat.{session}.{role}.
func (p *NATSPublisher) MessageSaved(_ context.Context, m store.Message) error {
	subject := p.prefix + ChatSubject(m.SessionID, string(m.Role))
	return p.publish(subject, MessageEvent{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	})
}

// ReminderDue publishes on reminders.due.
func (p *NATSPublisher) ReminderDue(_ context.Context, r store.Reminder, firedAt time.Time) error {
	return p.publish(p.prefix+SubjectReminderDue, ReminderEvent{
		ID:                r.ID,
		Title:             r.Title,
		RemindAt:          r.RemindAt,
		Recurring:         r.Recurring,
		RecurrencePattern: r.RecurrencePattern,
		FiredAt:           firedAt,
	})
}

func (p *NATSPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrPublish, subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return nil
}

// ChatSubject builds the subject for a chat message. Tokens are sanitized
// so a session ID cannot add subject levels or wildcards.
func ChatSubject(sessionID, role string) string {
	return "chat." + token(sessionID) + "." + token(role)
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Nop discards events.
type Nop struct{}

var _ Publisher = Nop{}

// MessageSaved does nothing.
func (Nop) MessageSaved(context.Context, store.Message) error { return nil }

// ReminderDue does nothing.
func (Nop) ReminderDue(context.Context, store.Reminder, time.Time) error { return nil }
