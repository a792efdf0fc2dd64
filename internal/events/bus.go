package events

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// eventsPublished counts events accepted into the buffer, by kind.
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_events_published_total",
			Help: "Events accepted by the event bus.",
		},
		[]string{"kind"},
	)

	// eventsDropped counts events discarded because the buffer was full or
	// the bus was closed.
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_events_dropped_total",
			Help: "Events dropped by the event bus.",
		},
		[]string{"kind"},
	)

	// eventsFailed counts per-sink delivery errors.
	eventsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_event_delivery_failures_total",
			Help: "Failed event deliveries by sink.",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDropped, eventsFailed)
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Bus fans events out to sinks from a single background goroutine. Publish
// never blocks: when the buffer is full the event is dropped, counted and
// logged.
type Bus struct {
	ch      chan Event
	sinks   []Sink
	log     zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for drop and delivery warnings.
func WithLogger(l zerolog.Logger) BusOption {
	return func(b *Bus) { b.log = l }
}

// WithDeliveryTimeout bounds each sink call. Default 2s.
func WithDeliveryTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus starts a bus with the given buffer size (minimum 1).
func NewBus(buffer int, sinks []Sink, opts ...BusOption) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	b := &Bus{
		ch:      make(chan Event, buffer),
		sinks:   sinks,
		log:     zerolog.Nop(),
		timeout: 2 * time.Second,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

// Publish enqueues e without blocking.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.drop(e, "bus closed")
		return
	}
	select {
	case b.ch <- e:
		eventsPublished.WithLabelValues(string(e.Kind)).Inc()
	default:
		b.drop(e, "buffer full")
	}
}

func (b *Bus) drop(e Event, reason string) {
	eventsDropped.WithLabelValues(string(e.Kind)).Inc()
	b.log.Warn().Str("kind", string(e.Kind)).Str("event_id", e.ID).Str("reason", reason).Msg("event dropped")
}

func (b *Bus) run() {
	defer close(b.done)
	for e := range b.ch {
		for _, s := range b.sinks {
			b.deliver(s, e)
		}
	}
}

func (b *Bus) deliver(s Sink, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			eventsFailed.WithLabelValues(s.Name()).Inc()
			b.log.Error().Interface("panic", r).Str("sink", s.Name()).Msg("event sink panicked")
		}
	}()
	if err := s.Deliver(ctx, e); err != nil {
		eventsFailed.WithLabelValues(s.Name()).Inc()
		b.log.Warn().Err(err).Str("sink", s.Name()).Str("kind", string(e.Kind)).Msg("event delivery failed")
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to
// expire.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	b.mu.Unlock()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
