// Package events is a small typed in-process event bus used to fan compile
// lifecycle notifications out to the development server and its observers.
package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// Bus delivers published events to typed subscribers.
//
// Publish blocks until every matching subscriber has accepted the event or the
// context is canceled. Close closes all subscription channels. The bus is not
// durable.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
}

type subscriber struct {
	mu     sync.Mutex
	closed bool
	send   func(ctx context.Context, evt any) error
	close  func()
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[reflect.Type]map[uint64]*subscriber),
	}
}

// Subscribe registers a subscription for events of type T.
//
// If T is an interface, published events whose concrete type implements T are
// delivered. For concrete T, the concrete type must match exactly.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.isClosed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscriber{}
	sub.send = func(ctx context.Context, evt any) error {
		v, ok := evt.(T)
		if !ok {
			return ferrors.InternalError("event type mismatch").
				WithContext("expected", eventType.String()).
				WithContext("actual", reflect.TypeOf(evt).String()).
				Build()
		}
		select {
		case ch <- v:
			return nil
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
				WithContext("event_type", eventType.String()).
				Build()
		}
	}
	sub.close = func() { close(ch) }

	unsubscribe := func() {
		b.mu.Lock()
		if typeSubs, ok := b.subs[eventType]; ok {
			delete(typeSubs, id)
			if len(typeSubs) == 0 {
				delete(b.subs, eventType)
			}
		}
		b.mu.Unlock()
		sub.shutdown()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed.Load() {
		sub.shutdown()
		return ch, func() {}
	}
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscriber)
	}
	b.subs[eventType][id] = sub

	return ch, unsubscribe
}

// deliver sends under the subscriber lock so that a concurrent unsubscribe
// never closes the channel mid-send.
func (s *subscriber) deliver(ctx context.Context, evt any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.send(ctx, evt)
}

func (s *subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.close()
}

// SubscriberCount returns the number of active subscribers for events of type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	eventType := reflect.TypeFor[T]()

	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Publish delivers an event to all matching subscribers. A nil bus drops the
// event.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if b == nil {
		return nil
	}
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if b.isClosed.Load() {
		return ferrors.NewError(ferrors.CategoryRuntime, "event bus is closed").Build()
	}

	evtType := reflect.TypeOf(evt)

	b.mu.RLock()
	var targets []*subscriber
	for subType, typeSubs := range b.subs {
		match := subType == evtType
		if !match && subType.Kind() == reflect.Interface {
			match = evtType.Implements(subType)
		}
		if !match {
			continue
		}
		for _, s := range typeSubs {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the bus and all subscription channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.isClosed.Store(true)

		b.mu.Lock()
		var toClose []*subscriber
		for _, typeSubs := range b.subs {
			for _, s := range typeSubs {
				toClose = append(toClose, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
		b.mu.Unlock()

		for _, s := range toClose {
			s.shutdown()
		}
	})
}
