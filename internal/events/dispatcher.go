// Package events implements the typed publish/subscribe table used by voice
// sessions.
package events

import (
	"sync"
	"sync/atomic"

	"agentvoice/native/internal/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler receives an emitted event.
type Handler func(domain.Event)

// Subscription is a single registration returned by On.
type Subscription struct {
	d      *Dispatcher
	kind   domain.EventKind
	id     uint64
	fn     Handler
	active atomic.Bool
}

// Unsubscribe removes the registration. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.d == nil {
		return
	}
	s.d.Off(s)
}

// Dispatcher maps event kinds to ordered handler lists.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind][]*Subscription
	nextID   uint64
	logger   zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.EventKind][]*Subscription),
		logger:   log.With().Str("module", "events").Logger(),
	}
}

// SetLogger replaces the logger used to report handler panics.
func (d *Dispatcher) SetLogger(l zerolog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

// On registers fn for kind.
func (d *Dispatcher) On(kind domain.EventKind, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &Subscription{d: d, kind: kind, id: d.nextID, fn: fn}
	sub.active.Store(true)
	d.handlers[kind] = append(d.handlers[kind], sub)
	return sub
}

// Off removes sub if it is still registered.
func (d *Dispatcher) Off(sub *Subscription) {
	if sub == nil || !sub.active.CompareAndSwap(true, false) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[sub.kind]
	for i, s := range list {
		if s.id == sub.id {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, sub.kind)
			} else {
				d.handlers[sub.kind] = next
			}
			return
		}
	}
}

// Count returns the number of handlers registered for kind.
func (d *Dispatcher) Count(kind domain.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// Emit calls every handler registered for ev's kind, in registration order.
// Handlers added during the pass are not called; handlers removed during the
// pass are skipped. A panicking handler does not stop the others.
func (d *Dispatcher) Emit(ev domain.Event) {
	d.mu.RLock()
	snapshot := d.handlers[ev.Kind()]
	logger := d.logger
	d.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		d.call(logger, sub, ev)
	}
}

func (d *Dispatcher) call(logger zerolog.Logger, sub *Subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("event", string(ev.Kind())).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	sub.fn(ev)
}

// Subscribe registers a handler typed to a single event payload.
func Subscribe[T domain.Event](d *Dispatcher, fn func(T)) *Subscription {
	var zero T
	return d.On(zero.Kind(), func(ev domain.Event) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}
