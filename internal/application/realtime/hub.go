// Package realtime pushes live portfolio and user updates to subscribers over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"brokerdesk-backend/internal/application/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "rt:"

func PortfolioTopic(id uuid.UUID) string { return "portfolio:" + id.String() }

func UserTopic(id uuid.UUID) string { return "user:" + id.String() }

type Hub struct {
	rdb *redis.Client
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{rdb: rdb}
}

// PublishEvent implements events.Publisher.
func (h *Hub) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, channelPrefix+topic, data).Err()
}

// Subscription is a live stream of events. Receive from C until it is closed; call Close
// to release it. No event is delivered once Close has returned.
type Subscription struct {
	C <-chan events.Event

	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Subscribe returns once Redis has confirmed every channel. Cancelling ctx releases the
// subscription the same way Close does.
func (h *Hub) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("realtime: no topics")
	}
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + t
	}
	ps := h.rdb.Subscribe(ctx, channels...)
	for range channels {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("realtime subscribe: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			_ = ps.Close()
			return nil, fmt.Errorf("realtime subscribe: unexpected %T", msg)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan events.Event)
	s := &Subscription{C: out, ps: ps, cancel: cancel, done: make(chan struct{})}
	go s.pump(ctx, out)
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

// pump hands messages over an unbuffered channel so nothing is queued past Close.
func (s *Subscription) pump(ctx context.Context, out chan<- events.Event) {
	defer close(s.done)
	defer close(out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed realtime event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops delivery and waits for the pump to exit. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.err = s.ps.Close()
	})
	return s.err
}
