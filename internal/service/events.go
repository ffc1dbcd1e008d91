package service

import (
	"context"
	"log/slog"
	"time"

	"fintrack/internal/event"
	"fintrack/internal/obs"
)

const publishTimeout = 2 * time.Second

// publishEvent delivers a domain event. Failures are logged and never reach the caller.
func publishEvent(ctx context.Context, publisher event.Publisher, logger *slog.Logger, eventType, aggregateID, ownerID string, data any) {
	log := obs.WithContext(ctx, logger).With(
		slog.String("event_type", eventType),
		slog.String("aggregate_id", aggregateID),
	)

	evt, err := event.New(eventType, aggregateID, ownerID, data)
	if err != nil {
		log.Error("build event", slog.Any("error", err))
		return
	}
	evt.RequestID = obs.RequestIDFromContext(ctx)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := publisher.Publish(pubCtx, evt); err != nil {
		log.Error("publish event", slog.Any("error", err))
	}
}
