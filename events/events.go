// Package events delivers run lifecycle notifications to subscribers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBusClosed is returned by Publish after Stop.
	ErrBusClosed = errors.New("event bus is closed")
	// ErrChannelFull is returned when the queue cannot take another event.
	ErrChannelFull = errors.New("event channel is full")
	// ErrNoHandler is returned when nothing listens for the event type.
	ErrNoHandler = errors.New("no handlers registered for event type")
)

// Run lifecycle event types.
const (
	NodeStarted   = "node_started"
	NodeCompleted = "node_completed"
	NodeFailed    = "node_failed"
	NodeBlocked   = "node_blocked"
	RunCompleted  = "run_completed"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// Event is a run lifecycle notification.
type Event struct {
	Type   string
	RunID  string
	NodeID string // empty for run-level events
	Data   map[string]interface{}
}

// EventHandler handles a single event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// EventBus queues events and delivers them on one background goroutine.
// Handlers for an event run in subscription order, so a subscriber sees
// events in the order they were published.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID atomic.Uint64

	queue          chan Event
	handlerTimeout time.Duration
	blocking       bool
	onError        func(event Event, err error)
	logger         *zap.Logger

	stateMu sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithBufferSize sets the queue capacity.
func WithBufferSize(size int) EventBusOption {
	return func(eb *EventBus) {
		if size > 0 {
			eb.queue = make(chan Event, size)
		}
	}
}

// WithErrorHandler replaces the default handler error logger.
func WithErrorHandler(handler func(event Event, err error)) EventBusOption {
	return func(eb *EventBus) {
		if handler != nil {
			eb.onError = handler
		}
	}
}

// WithLogger sets the logger used for handler errors.
func WithLogger(logger *zap.Logger) EventBusOption {
	return func(eb *EventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// WithHandlerTimeout bounds each handler call.
func WithHandlerTimeout(d time.Duration) EventBusOption {
	return func(eb *EventBus) {
		if d > 0 {
			eb.handlerTimeout = d
		}
	}
}

// WithBlockingPublish makes Publish wait for queue space instead of
// returning ErrChannelFull.
func WithBlockingPublish() EventBusOption {
	return func(eb *EventBus) {
		eb.blocking = true
	}
}

// NewEventBus starts a bus with a 100 event queue. Handler errors are logged.
func NewEventBus(options ...EventBusOption) *EventBus {
	eb := &EventBus{
		subs:           make(map[string][]subscription),
		queue:          make(chan Event, 100),
		handlerTimeout: 5 * time.Second,
		logger:         zap.NewNop(),
		done:           make(chan struct{}),
	}
	for _, option := range options {
		option(eb)
	}
	if eb.onError == nil {
		eb.onError = eb.logError
	}

	go eb.loop()
	return eb
}

// Subscribe registers handler for eventType, or for every type with AllEvents.
func (eb *EventBus) Subscribe(eventType string, handler EventHandler) SubscriptionID {
	id := SubscriptionID(eb.nextID.Add(1))

	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subs[eventType] = append(eb.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeFunc registers a function handler.
func (eb *EventBus) SubscribeFunc(eventType string, fn func(ctx context.Context, event Event) error) SubscriptionID {
	return eb.Subscribe(eventType, EventHandlerFunc(fn))
}

// Unsubscribe removes the subscription and reports whether it existed.
func (eb *EventBus) Unsubscribe(id SubscriptionID) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for eventType, subs := range eb.subs {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			rest := append(subs[:i:i], subs[i+1:]...)
			if len(rest) == 0 {
				delete(eb.subs, eventType)
			} else {
				eb.subs[eventType] = rest
			}
			return true
		}
	}
	return false
}

// HasSubscribers reports whether an event of this type would reach a handler.
func (eb *EventBus) HasSubscribers(eventType string) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs[eventType]) > 0 || len(eb.subs[AllEvents]) > 0
}

// Dropped returns how many events were rejected because the queue was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// Publish queues event for delivery.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	eb.stateMu.RLock()
	defer eb.stateMu.RUnlock()
	if eb.closed {
		return ErrBusClosed
	}
	if !eb.HasSubscribers(event.Type) {
		return ErrNoHandler
	}

	if eb.blocking {
		select {
		case eb.queue <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case eb.queue <- event:
		return nil
	default:
		eb.dropped.Add(1)
		return ErrChannelFull
	}
}

// PublishSync delivers event on the calling goroutine and returns handler errors.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) []error {
	eb.stateMu.RLock()
	closed := eb.closed
	eb.stateMu.RUnlock()
	if closed {
		return []error{ErrBusClosed}
	}

	subs := eb.subscribers(event.Type)
	if len(subs) == 0 {
		return []error{ErrNoHandler}
	}
	return eb.deliver(ctx, subs, event)
}

// Stop closes the bus, drains queued events to their handlers and waits
// for delivery to finish.
func (eb *EventBus) Stop() {
	eb.stateMu.Lock()
	if !eb.closed {
		eb.closed = true
		close(eb.queue)
	}
	eb.stateMu.Unlock()
	<-eb.done
}

func (eb *EventBus) loop() {
	defer close(eb.done)

	for event := range eb.queue {
		subs := eb.subscribers(event.Type)
		for _, err := range eb.deliver(context.Background(), subs, event) {
			eb.onError(event, err)
		}
	}
}

func (eb *EventBus) subscribers(eventType string) []subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	typed, all := eb.subs[eventType], eb.subs[AllEvents]
	out := make([]subscription, 0, len(typed)+len(all))
	out = append(out, typed...)
	if eventType != AllEvents {
		out = append(out, all...)
	}
	return out
}

func (eb *EventBus) deliver(ctx context.Context, subs []subscription, event Event) []error {
	var errs []error
	for _, s := range subs {
		if err := eb.call(ctx, s.handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (eb *EventBus) call(ctx context.Context, h EventHandler, event Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, eb.handlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, event)
}

func (eb *EventBus) logError(event Event, err error) {
	eb.logger.Error("event handler failed",
		zap.String("type", event.Type),
		zap.String("run_id", event.RunID),
		zap.String("node_id", event.NodeID),
		zap.Error(err))
}
