// Package agent implements the capabilities a request can be routed to.
//
// Each capability answers two questions: whether it can handle a piece of
// text (a cheap local keyword test) and what text to answer with. Expected
// situations such as "nothing to complete" are answered in text; only
// infrastructure failures come back as errors.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Label names a capability.
type Label int

const (
	// Unknown is the classifier's answer when no label matched.
	Unknown Label = iota
	Task
	Reminder
	Memory
	Query
)

var labelNames = map[Label]string{
	Unknown:  "unknown",
	Task:     "task",
	Reminder: "reminder",
	Memory:   "memory",
	Query:    "query",
}

func (l Label) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return "unknown"
}

// ParseLabel maps a model reply to a label. The reply is trimmed and
// case-folded and must then equal a label name exactly.
func ParseLabel(s string) Label {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task":
		return Task
	case "reminder":
		return Reminder
	case "memory":
		return Memory
	case "query":
		return Query
	default:
		return Unknown
	}
}

// RoutingContext carries caller data to the selected agent untouched.
type RoutingContext map[string]any

// SessionID returns the "session_id" entry, if any.
func (rc RoutingContext) SessionID() string {
	s, _ := rc["session_id"].(string)
	return s
}

// Agent is one capability.
type Agent interface {
	Label() Label
	CanHandle(input string) bool
	Execute(ctx context.Context, input string, rc RoutingContext) (string, error)
}

// ErrNoQueryAgent is returned by Set.Validate when the fallback is missing.
var ErrNoQueryAgent = errors.New("capability set requires a query agent")

// Set is the closed capability set. Any variant except Query may be nil.
type Set struct {
	Task     Agent
	Reminder Agent
	Memory   Agent
	Query    Agent
}

// Validate checks that the fallback capability is present.
func (s Set) Validate() error {
	if s.Query == nil {
		return ErrNoQueryAgent
	}
	return nil
}

// Resolve maps a label to its agent. Unknown labels and missing variants
// resolve to Query.
func (s Set) Resolve(l Label) Agent {
	var a Agent
	switch l {
	case Task:
		a = s.Task
	case Reminder:
		a = s.Reminder
	case Memory:
		a = s.Memory
	case Query:
		a = s.Query
	default:
		a = nil
	}
	if a == nil {
		return s.Query
	}
	return a
}

// Ordered returns the present agents in registration order, Query last.
func (s Set) Ordered() []Agent {
	out := make([]Agent, 0, 4)
	for _, a := range []Agent{s.Task, s.Reminder, s.Memory, s.Query} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Option configures an agent.
type Option func(*base)

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

type base struct {
	logger *zap.Logger
	now    func() time.Time
}

func newBase(name string, opts []Option) base {
	b := base{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.Named(name)
	return b
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
