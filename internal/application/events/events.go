// Package events fans domain events out to the realtime hub and the durable event log.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	TradeStatusChanged       = "trade.status_changed"
	TransactionStatusChanged = "transaction.status_changed"
	PortfolioBalanceChanged  = "portfolio.balance_changed"
	UserKYCChanged           = "user.kyc_changed"
	TicketStatusChanged      = "support_ticket.status_changed"
)

// Event is the envelope every publisher receives.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	UserID    uuid.UUID   `json:"user_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(eventType string, userID uuid.UUID, payload interface{}) Event {
	return Event{ID: uuid.New(), Type: eventType, UserID: userID, Payload: payload, Timestamp: time.Now().UTC()}
}

// Publisher defines the interface for event sinks.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event interface{}) error
}

// Fanout delivers each event to every publisher. A nil *Fanout drops events.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	var ps []Publisher
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Fanout{publishers: ps}
}

// Emit publishes ev to topic. It runs after the owning database transaction has committed,
// so failures are logged and never returned.
func (f *Fanout) Emit(ctx context.Context, topic string, ev Event) {
	if f == nil {
		return
	}
	ok := 0
	for i, p := range f.publishers {
		if err := p.PublishEvent(ctx, topic, ev); err != nil {
			log.Error().Err(err).Int("publisher_index", i).Str("event_type", ev.Type).
				Str("event_id", ev.ID.String()).Str("topic", topic).Msg("failed to publish event")
			continue
		}
		ok++
	}
	log.Debug().Str("event_type", ev.Type).Str("topic", topic).
		Int("publishers_success", ok).Int("publishers_total", len(f.publishers)).Msg("published event")
}
