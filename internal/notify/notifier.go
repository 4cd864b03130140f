// Package notify delivers verification and payout events to in-process
// subscribers and, when configured, to Redis pub/sub channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventCredited     EventKind = "CREDITED"
	EventRejected     EventKind = "REJECTED"
	EventExpired      EventKind = "EXPIRED"
	EventPayoutSent   EventKind = "PAYOUT_SENT"
	EventPayoutFailed EventKind = "PAYOUT_FAILED"
)

// Event is one outcome surfaced to external collaborators. The store stays
// the source of truth; events are hints to re-query it.
type Event struct {
	Kind             EventKind `json:"kind"`
	CorrelationToken string    `json:"correlation_token,omitempty"`
	RequesterID      string    `json:"requester_id,omitempty"`
	TxID             string    `json:"tx_id,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	PayoutID         string    `json:"payout_id,omitempty"`
	Error            string    `json:"error,omitempty"`
	At               time.Time `json:"at"`
}

// Handler receives events for a subscribed key.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the subset of *redis.Client used for fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func TokenChannel(token string) string {
	return "donations:token:" + token
}

func RequesterChannel(requesterID string) string {
	return "donations:requester:" + requesterID
}

type subscription struct {
	id      uint64
	handler Handler
}

// Notifier fans events out without blocking the caller. Failed deliveries are
// logged and dropped.
type Notifier struct {
	mu        sync.RWMutex
	subs      map[string][]subscription
	nextID    uint64
	publisher Publisher
	timeout   time.Duration
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// New creates a Notifier. publisher may be nil when Redis is not configured.
func New(publisher Publisher, timeout time.Duration, logger zerolog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		subs:      map[string][]subscription{},
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With().Str("component", "notifier").Logger(),
	}
}

// Subscribe registers h for events whose correlation token or requester id
// equals key. The returned function removes the subscription.
func (n *Notifier) Subscribe(key string, h Handler) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[key] = append(n.subs[key], subscription{id: id, handler: h})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		list := n.subs[key]
		for i, s := range list {
			if s.id == id {
				n.subs[key] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(n.subs[key]) == 0 {
			delete(n.subs, key)
		}
	}
}

// Notify schedules delivery of ev and returns immediately.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	keys := make([]string, 0, 2)
	if ev.CorrelationToken != "" {
		keys = append(keys, ev.CorrelationToken)
	}
	if ev.RequesterID != "" && ev.RequesterID != ev.CorrelationToken {
		keys = append(keys, ev.RequesterID)
	}
	if len(keys) == 0 {
		n.logger.Debug().Str("kind", string(ev.Kind)).Str("tx_id", ev.TxID).Msg("event has no recipient key")
		return
	}

	base := context.WithoutCancel(ctx)

	n.mu.RLock()
	for _, key := range keys {
		for _, s := range n.subs[key] {
			n.deliver(base, ev, "subscriber:"+key, func(ctx context.Context) error {
				return s.handler(ctx, ev)
			})
		}
	}
	n.mu.RUnlock()

	if n.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("encode event")
		return
	}
	if ev.CorrelationToken != "" {
		channel := TokenChannel(ev.CorrelationToken)
		n.deliver(base, ev, channel, func(ctx context.Context) error {
			return n.publisher.Publish(ctx, channel, payload).Err()
		})
	}
	if ev.RequesterID != "" {
		channel := RequesterChannel(ev.RequesterID)
		n.deliver(base, ev, channel, func(ctx context.Context) error {
			return n.publisher.Publish(ctx, channel, payload).Err()
		})
	}
}

func (n *Notifier) deliver(base context.Context, ev Event, target string, send func(context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return send(ctx)
		}()
		if err != nil {
			n.logger.Warn().Err(err).
				Str("kind", string(ev.Kind)).
				Str("token", ev.CorrelationToken).
				Str("target", target).
				Msg("event delivery failed")
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
