package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannelPrefix is prepended to stream names to form channel names.
const DefaultRedisChannelPrefix = "logstream:"

// NewRedisClient parses redisURL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisSource publishes messages from Redis pub/sub channels named
// <prefix><stream> to the matching stream.
type RedisSource struct {
	client  *redis.Client
	prefix  string
	streams map[string]bool
	backoff *Backoff
	logger  *zap.Logger
}

// NewRedisSource creates a source over client. An empty prefix uses
// DefaultRedisChannelPrefix; no streams means every known stream.
func NewRedisSource(client *redis.Client, prefix string, streams []string, logger *zap.Logger) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisChannelPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{
		client:  client,
		prefix:  prefix,
		streams: knownStreams(streams),
		backoff: NewBackoff(),
		logger:  logger,
	}
}

// Name implements Source.
func (s *RedisSource) Name() string {
	return "redis"
}

// Channels returns the subscribed channel names in sorted order.
func (s *RedisSource) Channels() []string {
	channels := make([]string, 0, len(s.streams))
	for stream := range s.streams {
		channels = append(channels, s.prefix+stream)
	}
	sort.Strings(channels)
	return channels
}

// StreamForChannel maps a channel name back to its stream.
func (s *RedisSource) StreamForChannel(channel string) (string, bool) {
	stream, ok := strings.CutPrefix(channel, s.prefix)
	if !ok || !s.streams[stream] {
		return "", false
	}
	return stream, true
}

// Run implements Source.
func (s *RedisSource) Run(ctx context.Context, pub Publisher) error {
	return runWithReconnect(ctx, s.Name(), s.backoff, s.logger, func(ctx context.Context, connected func()) error {
		return s.consume(ctx, pub, connected)
	})
}

func (s *RedisSource) consume(ctx context.Context, pub Publisher, connected func()) error {
	ps := s.client.Subscribe(ctx, s.Channels()...)
	defer func() { _ = ps.Close() }()

	// Wait for the subscribe confirmation so connection errors surface here.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis channels: %w", err)
	}
	connected()

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			s.handle(pub, msg)
		}
	}
}

func (s *RedisSource) handle(pub Publisher, msg *redis.Message) {
	stream, ok := s.StreamForChannel(msg.Channel)
	if !ok {
		s.logger.Debug("redis_message_ignored", zap.String("channel", msg.Channel))
		return
	}
	ev := pub.Publish(stream, msg.Payload)
	s.logger.Debug("redis_message_published",
		zap.String("stream", stream),
		zap.String("event_id", ev.ID),
	)
}

// Ping implements Source.
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Source.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
