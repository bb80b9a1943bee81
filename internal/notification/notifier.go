// Package notification consumes workflow events for human-facing delivery.
// Actual channels (email, SMS, push) live outside this system; the default
// notifier records what would be delivered. Delivery is best-effort and
// never affects the transitions that produced the events.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/dispatcher"
	"github.com/schoolops/caseflow/internal/domain/event"
)

// LogNotifier logs transition and escalation events at a level operators
// can alert on.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Register subscribes the notifier to the workflow event types.
func (n *LogNotifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeTransitionAccepted, "log-notifier", n.Handle)
	d.SubscribeNamed(event.TypeTransitionRejected, "log-notifier", n.Handle)
	d.SubscribeNamed(event.TypeSLABreached, "log-notifier", n.Handle)
}

// Handle processes a single event.
func (n *LogNotifier) Handle(ctx context.Context, evt *event.Event) error {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.String("case_id", evt.CaseID),
		zap.String("category", evt.Category),
		zap.String("correlation_id", evt.CorrelationID),
		zap.Any("payload", evt.Payload),
	}

	if evt.Type == event.TypeSLABreached {
		n.logger.Warn("Notification: SLA escalation", fields...)
		return nil
	}

	n.logger.Info("Notification: workflow transition",
		append(fields, zap.String("action", evt.GetPayloadString("action")))...)
	return nil
}
