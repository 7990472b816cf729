package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventPaid          EventType = "order.paid"
	EventCancelled     EventType = "order.cancelled"
	EventRefunded      EventType = "order.refunded"
	EventCompleted     EventType = "order.completed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is emitted after the transaction that caused it has committed.
type Event struct {
	Type   EventType
	Number string
	UserID int64
	Status Status
	Amount int64
	At     time.Time
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// Emit publishes e. Failures are logged, not returned.
func Emit(ctx context.Context, p Publisher, e Event) {
	if err := p.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(e.Type)),
			zap.String("order", e.Number),
			zap.Error(err),
		)
	}
}

// NewEvent builds an event describing o in its current state.
func NewEvent(typ EventType, o *Order, at time.Time) Event {
	return Event{
		Type:   typ,
		Number: o.Number,
		UserID: o.UserID,
		Status: o.Status,
		Amount: o.PayableAmount(),
		At:     at,
	}
}
