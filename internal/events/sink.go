package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, e Event) error {
	ev := s.Logger.Info().
		Str("event_id", e.ID).
		Str("kind", string(e.Kind)).
		Time("occurred_at", e.OccurredAt)
	if e.DoctorID != "" {
		ev = ev.Str("doctor_id", e.DoctorID)
	}
	if e.TicketID != "" {
		ev = ev.Str("ticket_id", e.TicketID).Int("number", e.Number)
	}
	if e.Count > 0 {
		ev = ev.Int("count", e.Count)
	}
	if e.ConversationID != "" {
		ev = ev.Str("conversation_id", e.ConversationID).
			Int("urgency_level", e.UrgencyLevel).
			Str("recommended_action", e.RecommendedAction).
			Bool("degraded", e.Degraded)
	}
	ev.Msg("queue event")
	return nil
}

// RedisSink publishes encoded events on a pub/sub channel and, when Stream
// is set, appends them to a capped Redis stream for late subscribers.
type RedisSink struct {
	Client  redis.UniversalClient
	Channel string
	Stream  string
	// MaxLen bounds the stream (approximate trimming); 0 means 10000.
	MaxLen int64
	Codec  Codec
}

// NewRedisSink parses url and returns a sink publishing on channel.
func NewRedisSink(url, channel string, codec Codec) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	if codec == nil {
		codec = JSON{}
	}
	return &RedisSink{
		Client:  redis.NewClient(opt),
		Channel: channel,
		Stream:  channel + ".stream",
		Codec:   codec,
	}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := s.Codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind, err)
	}
	if err := s.Client.Publish(ctx, s.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	if s.Stream == "" {
		return nil
	}
	maxLen := s.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":    string(e.Kind),
			"codec":   s.Codec.Name(),
			"payload": payload,
		},
	}).Err()
}

// Close releases the client.
func (s *RedisSink) Close() error { return s.Client.Close() }
