package crank

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Event is a notification about a state transition the crank committed.
// Every event carries a unique id so downstream consumers can dedupe.
type Event struct {
	ID   string
	Type string
	// Payload is a flat set of slog-style key/value pairs.
	Payload []any
}

const (
	EventHonoraryPositionInitialized = "honorary_position_initialized"
	EventQuoteFeesClaimed            = "quote_fees_claimed"
	EventInvestorPayoutPage          = "investor_payout_page"
	EventCreatorPayoutDayClosed      = "creator_payout_day_closed"
)

// Emitter receives events after the owning transaction commits. Emitters must
// not fail the crank; errors are the emitter's problem.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NewEvent builds an event with a fresh uuid.
func NewEvent(typ string, payload ...any) Event {
	return Event{ID: uuid.NewString(), Type: typ, Payload: payload}
}

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, ev Event) {
	args := append([]any{"event", ev.Type, "event_id", ev.ID}, ev.Payload...)
	e.Logger.InfoContext(ctx, "crank: event", args...)
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
