// Package dispatcher fans engine messages out to registered subscribers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/starlogs/starlogs/pkg/streaming"
)

// HandlerFunc consumes one message.
type HandlerFunc func(streaming.Message) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures subscriber registration.
type Option func(*config)

type config struct {
	bufferSize int
	logged     bool
}

// Buffered makes the subscriber async with a queue of the given size.
// When the queue is full the oldest queued message is dropped.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Logged adds debug logging to the subscriber.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscriber struct {
	name    string
	handler HandlerFunc
	buffer  chan streaming.Message
	attr    metric.MeasurementOption
	dropped atomic.Int64
}

// Dispatcher delivers every published message to all subscribers in
// registration order. Buffered subscribers never block Publish.
type Dispatcher struct {
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
	wg     sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{logger: logger}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of messages queued per subscriber"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, s := range d.subs {
				if s.buffer != nil {
					o.ObserveInt64(d.queueSize, int64(len(s.buffer)),
						metric.WithAttributes(attribute.String("subscriber", s.name)))
				}
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.delivered, err = m.Int64Counter(
		"dispatcher.messages.delivered",
		metric.WithDescription("Total messages delivered to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.messages.dropped",
		metric.WithDescription("Total messages dropped because a subscriber queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.messages.failed",
		metric.WithDescription("Total messages a subscriber returned an error for"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a subscriber. Registering an existing name replaces it.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	s := &subscriber{
		name:    name,
		handler: handler,
		attr:    metric.WithAttributes(attribute.String("subscriber", name)),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.bufferSize > 0 {
		s.buffer = make(chan streaming.Message, cfg.bufferSize)
		d.wg.Add(1)
		go d.drain(s)
	}

	for i, old := range d.subs {
		if old.name == name {
			if old.buffer != nil {
				close(old.buffer)
			}
			d.subs[i] = s
			return
		}
	}
	d.subs = append(d.subs, s)
}

// Unregister removes a subscriber; its queued messages are still delivered.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.name == name {
			if s.buffer != nil {
				close(s.buffer)
			}
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// HasHandler returns true if a subscriber is registered under name.
func (d *Dispatcher) HasHandler(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.subs {
		if s.name == name {
			return true
		}
	}
	return false
}

// Dropped returns how many messages were dropped for the named subscriber.
func (d *Dispatcher) Dropped(name string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.subs {
		if s.name == name {
			return s.dropped.Load()
		}
	}
	return 0
}

// Publish delivers msg to every subscriber. Unbuffered subscribers run
// inline and must not call back into the dispatcher. Subscriber errors
// are logged, not returned.
func (d *Dispatcher) Publish(msg streaming.Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, s := range d.subs {
		if s.buffer == nil {
			d.deliver(s, msg)
			continue
		}
		d.enqueue(s, msg)
	}
}

// Close stops accepting messages and waits until buffered subscribers
// have drained their queues.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, s := range d.subs {
		if s.buffer != nil {
			close(s.buffer)
		}
	}
	d.subs = nil
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) enqueue(s *subscriber, msg streaming.Message) {
	for {
		select {
		case s.buffer <- msg:
			return
		default:
		}

		select {
		case <-s.buffer:
			s.dropped.Add(1)
			d.dropped.Add(context.Background(), 1, s.attr)
		default:
		}
	}
}

func (d *Dispatcher) drain(s *subscriber) {
	defer d.wg.Done()
	for msg := range s.buffer {
		d.deliver(s, msg)
	}
}

func (d *Dispatcher) deliver(s *subscriber, msg streaming.Message) {
	if err := s.handler(msg); err != nil {
		d.failed.Add(context.Background(), 1, s.attr)
		d.logger.Error("subscriber failed", "subscriber", s.name, "type", msg.Type, "error", err)
		return
	}
	d.delivered.Add(context.Background(), 1, s.attr)
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(msg streaming.Message) error {
		start := time.Now()
		d.logger.Debug("delivering message", "subscriber", name, "type", msg.Type)

		err := h(msg)

		d.logger.Debug("message handled", "subscriber", name, "type", msg.Type, "duration", time.Since(start), "ok", err == nil)
		return err
	}
}
