package relay

import (
	"context"
	"log/slog"

	"cityledger/pkg/platform/events"
)

// LogPublisher writes events to a structured log. It stands in for a broker in
// development and single-node deployments.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, batch []events.Event) error {
	for _, e := range batch {
		p.logger.InfoContext(ctx, "ledger event",
			"event_id", e.ID.String(),
			"event_type", e.Type,
			"aggregate_id", e.AggregateID,
			"request_id", e.RequestID,
			"payload", string(e.Payload),
		)
	}
	return nil
}
