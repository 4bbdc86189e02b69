package router

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Apology replaces an agent error in the user-facing reply.
const Apology = "Извините, произошла ошибка при обработке запроса. Попробуйте ещё раз."

var tracer = otel.Tracer("assistantd.router")

// LabelClassifier is the classification step of the dispatcher.
type LabelClassifier interface {
	Classify(ctx context.Context, input string) agent.Label
}

// Dispatcher routes input to one agent of a closed set.
type Dispatcher struct {
	classifier LabelClassifier
	agents     agent.Set
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. The set must contain a Query agent.
func NewDispatcher(classifier LabelClassifier, agents agent.Set, logger *zap.Logger) (*Dispatcher, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if err := agents.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{classifier: classifier, agents: agents, logger: logger.Named("dispatcher")}, nil
}

// Process classifies input, runs the resolved agent and returns its reply.
// It always returns text; agent errors are logged and replaced by Apology.
func (d *Dispatcher) Process(ctx context.Context, input string, rc agent.RoutingContext) string {
	ctx, span := tracer.Start(ctx, "Dispatcher.Process")
	defer span.End()

	label := d.classifier.Classify(ctx, input)
	target := d.agents.Resolve(label)
	name := target.Label().String()
	span.SetAttributes(
		attribute.String("classified", label.String()),
		attribute.String("agent", name),
	)

	ctx = logging.WithSessionID(logging.WithAgent(ctx, name), rc.SessionID())
	logger := d.logger.With(append(logging.ContextFields(ctx), zap.String("classified", label.String()))...)

	start := time.Now()
	reply, err := target.Execute(ctx, input, rc)
	dispatchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent failed")
		dispatchTotal.WithLabelValues(name, "error").Inc()
		logger.Error("agent failed", zap.Error(err))
		return Apology
	}
	dispatchTotal.WithLabelValues(name, "success").Inc()
	logger.Debug("request dispatched", zap.Duration("duration", time.Since(start)))
	return reply
}

// Route returns the first agent, in registration order, that claims the
// input. The Query agent accepts everything so the scan always ends.
func (d *Dispatcher) Route(input string) agent.Agent {
	for _, a := range d.agents.Ordered() {
		if a.CanHandle(input) {
			return a
		}
	}
	return d.agents.Query
}
