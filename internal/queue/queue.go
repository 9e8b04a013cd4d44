package queue

import (
	"context"
	"fmt"

	redisclient "github.com/shopchat/autoreply-backend/internal/clients/redis"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

const (
	pendingKey = "autoresp:pending"
	poisonKey  = "autoresp:poison"
	failedKey  = "autoresp:failed"

	poisonMaxLen = 500
	failedMaxLen = 1000
)

// EventQueue is the push-queue side of the engine: pending events wait on
// a list, structurally invalid payloads are relocated to a poison list,
// and failed dispatches are retained on a bounded side-channel for manual
// inspection.
type EventQueue struct {
	coord redisclient.Coordinator
	log   *logger.Logger
}

func NewEventQueue(coord redisclient.Coordinator, baseLog *logger.Logger) *EventQueue {
	return &EventQueue{
		coord: coord,
		log:   baseLog.With("component", "EventQueue"),
	}
}

func (q *EventQueue) Enqueue(ctx context.Context, ev AutoResponseEvent) error {
	raw, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return q.coord.PushList(ctx, pendingKey, raw)
}

// PopPending pops up to limit payloads and strictly parses each one.
// A payload is only ever removed from the queue by being parsed, poisoned
// or pushed back; it is never silently dropped.
func (q *EventQueue) PopPending(ctx context.Context, limit int) ([]AutoResponseEvent, error) {
	events := make([]AutoResponseEvent, 0, limit)
	for i := 0; i < limit; i++ {
		raw, ok, err := q.coord.PopList(ctx, pendingKey)
		if err != nil {
			return events, fmt.Errorf("pop pending: %w", err)
		}
		if !ok {
			break
		}
		ev, perr := ParseEvent(raw)
		if perr != nil {
			q.log.Warn("Malformed queue event, relocating to poison list", "error", perr)
			if err := q.Poison(ctx, raw); err != nil {
				// Could not relocate, so the payload goes back where it was.
				if pushErr := q.coord.PushList(ctx, pendingKey, raw); pushErr != nil {
					q.log.Error("Failed to return malformed event to queue", "error", pushErr)
				}
				return events, fmt.Errorf("poison relocate: %w", err)
			}
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (q *EventQueue) Poison(ctx context.Context, raw string) error {
	if err := q.coord.PushList(ctx, poisonKey, raw); err != nil {
		return err
	}
	if err := q.coord.TrimList(ctx, poisonKey, poisonMaxLen); err != nil {
		q.log.Warn("Failed to trim poison list", "error", err)
	}
	return nil
}

// RecordFailed retains the raw event for manual retry after a transient
// dispatch failure.
func (q *EventQueue) RecordFailed(ctx context.Context, ev AutoResponseEvent) error {
	raw, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := q.coord.PushList(ctx, failedKey, raw); err != nil {
		return err
	}
	if err := q.coord.TrimList(ctx, failedKey, failedMaxLen); err != nil {
		q.log.Warn("Failed to trim failed list", "error", err)
	}
	return nil
}
