package lives

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/lifequiz/internal/clock"
	"github.com/victornm/lifequiz/internal/domain"
)

const defaultRegenInterval = time.Minute

type Config struct {
	Source        Source
	Clock         clock.Clock
	RegenInterval time.Duration

	// OnUpdate receives every pushed balance.
	OnUpdate func(k domain.CourseKey, b domain.LifeBudget)
	// OnTick is called once per RegenInterval while subscribed.
	OnTick func(k domain.CourseKey)
	OnError func(k domain.CourseKey, err error)
}

// Observer keeps one standing subscription to the learner's life balance.
// Callbacks must not call Start or Stop.
type Observer struct {
	source   Source
	clock    clock.Clock
	interval time.Duration
	onUpdate func(domain.CourseKey, domain.LifeBudget)
	onTick   func(domain.CourseKey)
	onError  func(domain.CourseKey, error)

	// delivering is held for reading by every callback, Stop takes it to wait for them.
	delivering sync.RWMutex

	mu     sync.Mutex
	gen    uint64
	key    domain.CourseKey
	sub    Subscription
	ticker *regenTicker
}

type regenTicker struct {
	done chan struct{}
	wg   sync.WaitGroup
}

func NewObserver(c Config) *Observer {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.RegenInterval <= 0 {
		c.RegenInterval = defaultRegenInterval
	}
	if c.OnUpdate == nil {
		c.OnUpdate = func(domain.CourseKey, domain.LifeBudget) {}
	}
	if c.OnTick == nil {
		c.OnTick = func(domain.CourseKey) {}
	}
	if c.OnError == nil {
		c.OnError = func(k domain.CourseKey, err error) {
			slog.Error("lives: subscription error", "course", k.CourseID, "error", err)
		}
	}

	return &Observer{
		source:   c.Source,
		clock:    c.Clock,
		interval: c.RegenInterval,
		onUpdate: c.OnUpdate,
		onTick:   c.OnTick,
		onError:  c.OnError,
	}
}

// Start subscribes to k, replacing any previous subscription.
func (o *Observer) Start(ctx context.Context, k domain.CourseKey) error {
	o.Stop()

	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.key = k
	o.mu.Unlock()

	sub, err := o.source.Subscribe(ctx, k,
		func(b domain.LifeBudget) {
			o.deliver(gen, func() { o.onUpdate(k, b) })
		},
		func(err error) {
			o.deliver(gen, func() { o.onError(k, err) })
		},
	)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	o.sub = sub
	o.ticker = o.startTicker(gen, k)
	o.mu.Unlock()

	slog.InfoContext(ctx, "lives: subscribed", "course", k.CourseID)
	return nil
}

// Stop unsubscribes and cancels the regeneration ticker. No callback runs after it returns.
func (o *Observer) Stop() {
	o.mu.Lock()
	o.gen++
	sub, t, k := o.sub, o.ticker, o.key
	o.sub, o.ticker = nil, nil
	o.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if t != nil {
		close(t.done)
		t.wg.Wait()
	}

	// Wait for callbacks that passed the generation check before it changed.
	o.delivering.Lock()
	o.delivering.Unlock()

	if sub != nil {
		slog.Info("lives: unsubscribed", "course", k.CourseID)
	}
}

// Subscribed returns the course currently observed.
func (o *Observer) Subscribed() (domain.CourseKey, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.key, o.sub != nil
}

func (o *Observer) deliver(gen uint64, f func()) {
	o.delivering.RLock()
	defer o.delivering.RUnlock()

	o.mu.Lock()
	current := o.gen == gen
	o.mu.Unlock()

	if current {
		f()
	}
}

func (o *Observer) startTicker(gen uint64, k domain.CourseKey) *regenTicker {
	rt := &regenTicker{done: make(chan struct{})}
	t := o.clock.NewTicker(o.interval)

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer t.Stop()

		for {
			select {
			case <-rt.done:
				return
			case <-t.C():
				o.deliver(gen, func() { o.onTick(k) })
			}
		}
	}()

	return rt
}
