// Package sse fans published events out to Server-Sent-Events subscribers.
package sse

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber queue length used when none is given.
const DefaultBufferSize = 64

// Broker delivers events published on a stream to every subscriber of that stream.
// Publish never blocks: a subscriber whose queue is full misses the event.
type Broker struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscription]struct{}
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// Subscription receives the events of one stream until closed.
type Subscription struct {
	broker *Broker
	stream string
	events chan Event
	closed bool // guarded by broker.mu
}

// NewBroker creates a broker whose subscribers queue up to bufferSize events.
func NewBroker(bufferSize int, logger *zap.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:       make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a new subscriber on stream. Subscribing to a closed broker
// returns a subscription whose channel is already closed.
func (b *Broker) Subscribe(stream string) *Subscription {
	sub := &Subscription{
		broker: b,
		stream: stream,
		events: make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.events)
		return sub
	}
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[*Subscription]struct{})
	}
	b.subs[stream][sub] = struct{}{}
	b.logger.Debug("sse_subscribed",
		zap.String("stream", stream),
		zap.Int("subscribers", len(b.subs[stream])),
	)
	return sub
}

// Publish assigns data an event id and delivers it to the current subscribers of stream.
func (b *Broker) Publish(stream, data string) Event {
	ev := Event{
		ID:     uuid.NewString(),
		Stream: stream,
		Name:   eventName(stream),
		Data:   data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ev
	}
	for sub := range b.subs[stream] {
		select {
		case sub.events <- ev:
		default:
			b.logger.Warn("sse_event_dropped",
				zap.String("stream", stream),
				zap.String("event_id", ev.ID),
				zap.Int("buffer_size", b.bufferSize),
			)
		}
	}
	return ev
}

// SubscriberCount returns the number of open subscriptions on stream.
func (b *Broker) SubscriberCount(stream string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[stream])
}

// Close ends every subscription. Later publishes are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			sub.closed = true
			close(sub.events)
		}
	}
	b.subs = make(map[string]map[*Subscription]struct{})
	b.logger.Info("sse_broker_closed")
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.events)
	if subs := b.subs[sub.stream]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.stream)
		}
	}
	b.logger.Debug("sse_unsubscribed", zap.String("stream", sub.stream))
}

// Stream returns the stream name.
func (s *Subscription) Stream() string {
	return s.stream
}

// Events returns the channel events arrive on. It is closed when the subscription
// or the broker is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}
