package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Publisher is the publishing side of a Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type subscription struct {
	id     uint64
	names  []string
	h      Handler
	active atomic.Bool

	// q is set for ordered subscriptions.
	q *queue
}

type delivery struct {
	ctx context.Context
	e   Event
}

// queue runs the deliveries of one ordered subscription one at a time, in publish order.
type queue struct {
	mu      sync.Mutex
	pending []delivery
	running bool
}

// Bus is an in-memory event bus.
type Bus struct {
	pool chan struct{}
	wg   *sync.WaitGroup

	mu       sync.RWMutex
	nextID   uint64
	stopped  bool
	handlers map[string][]*subscription
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus() *Bus {
	return &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]*subscription),
	}
}

// Subscribe to an event. Handlers run concurrently, in no particular order.
// The returned function cancels the subscription,
// the handler is not invoked for events published after it returns.
func (b *Bus) Subscribe(name string, h Handler) (cancel func()) {
	return b.subscribe([]string{name}, h, nil)
}

// SubscribeOrdered subscribes h to all names at once. h handles one event at a time,
// in the order the events were published.
func (b *Bus) SubscribeOrdered(names []string, h Handler) (cancel func()) {
	return b.subscribe(names, h, new(queue))
}

func (b *Bus) subscribe(names []string, h Handler, q *queue) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, names: names, h: h, q: q}
	sub.active.Store(true)
	for _, name := range names {
		b.handlers[name] = append(b.handlers[name], sub)
	}

	return func() { b.unsubscribe(sub) }
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !sub.active.CompareAndSwap(true, false) {
		return
	}

	for _, name := range sub.names {
		subs := b.handlers[name]
		for i, s := range subs {
			if s.id == sub.id {
				b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish an event. Events published after Stop are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		slog.WarnContext(ctx, "event: publish after stop", "event", e.Name())
		return
	}

	for _, s := range b.handlers[e.Name()] {
		if s.q != nil {
			b.enqueue(ctx, s, e)
			continue
		}
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s *subscription, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		defer func() {
			<-b.pool
			b.wg.Done()
		}()

		b.handle(ctx, s, e)
	}()
}

func (b *Bus) enqueue(ctx context.Context, s *subscription, e Event) {
	b.wg.Add(1)

	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	s.q.pending = append(s.q.pending, delivery{ctx: ctx, e: e})
	if s.q.running {
		return
	}

	s.q.running = true
	go b.drain(s)
}

func (b *Bus) drain(s *subscription) {
	for {
		s.q.mu.Lock()
		if len(s.q.pending) == 0 {
			s.q.running = false
			s.q.mu.Unlock()
			return
		}

		d := s.q.pending[0]
		s.q.pending[0] = delivery{}
		s.q.pending = s.q.pending[1:]
		s.q.mu.Unlock()

		b.handle(d.ctx, s, d.e)
		b.wg.Done()
	}
}

func (b *Bus) handle(ctx context.Context, s *subscription, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}

		cancel()
	}()

	if !s.active.Load() {
		return
	}

	if err := s.h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// Stop rejects further events and waits for all handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
}
