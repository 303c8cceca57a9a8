// Package source feeds events from external brokers into the SSE broker.
package source

import (
	"context"
	"time"

	"github.com/benvon/logstream/internal/sse"
	"go.uber.org/zap"
)

// Reconnect backoff bounds.
const (
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 30 * time.Second
)

// Publisher receives payloads for a stream. *sse.Broker satisfies it.
type Publisher interface {
	Publish(stream, data string) sse.Event
}

// Source consumes an external broker and publishes what it receives.
type Source interface {
	// Name identifies the source in logs and health output.
	Name() string
	// Run consumes until ctx is cancelled, reconnecting after failures.
	Run(ctx context.Context, pub Publisher) error
	// Ping reports whether the source is currently connected.
	Ping(ctx context.Context) error
	Close() error
}

// Backoff yields exponentially growing delays between Initial and Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	attempt int
}

// NewBackoff returns a backoff starting at InitialBackoff and capped at MaxBackoff.
func NewBackoff() *Backoff {
	return &Backoff{Initial: InitialBackoff, Max: MaxBackoff}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := b.Initial
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	return d
}

// Reset starts the sequence over.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// consumeFunc runs one session against the broker. It calls connected once the
// subscription is established and returns when the session ends.
type consumeFunc func(ctx context.Context, connected func()) error

// runWithReconnect repeats consume until ctx is done, sleeping with backoff between
// failed sessions. A session that got connected resets the backoff.
func runWithReconnect(ctx context.Context, name string, backoff *Backoff, logger *zap.Logger, consume consumeFunc) error {
	for {
		err := consume(ctx, func() {
			backoff.Reset()
			logger.Info("event_source_connected", zap.String("source", name))
		})
		if ctx.Err() != nil {
			logger.Info("event_source_stopped", zap.String("source", name))
			return nil
		}

		delay := backoff.Next()
		logger.Warn("event_source_disconnected_retrying",
			zap.String("source", name),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("event_source_stopped", zap.String("source", name))
			return nil
		case <-timer.C:
		}
	}
}

func knownStreams(streams []string) map[string]bool {
	if len(streams) == 0 {
		streams = sse.StreamNames()
	}
	known := make(map[string]bool, len(streams))
	for _, s := range streams {
		known[s] = true
	}
	return known
}
