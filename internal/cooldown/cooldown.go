package cooldown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/lifequiz/internal/clock"
	"github.com/victornm/lifequiz/internal/domain"
)

const (
	defaultInterval    = time.Minute
	defaultReadTimeout = 10 * time.Second
)

// Window derives the re-attempt lock of a topic at now.
// Only a best percentage of at least 80 locks the topic, for 24h after the last attempt.
func Window(c domain.TopicCompletion, now time.Time) domain.CooldownWindow {
	if c.BestPercentage < domain.PassingPercentage || c.LastAttemptTimestampMillis == 0 {
		return domain.CooldownWindow{}
	}

	end := c.LastAttempt().Add(domain.CooldownDuration)
	remaining := end.Sub(now)
	if remaining <= 0 {
		return domain.CooldownWindow{EndsAt: end}
	}

	return domain.CooldownWindow{
		Active:    true,
		EndsAt:    end,
		Remaining: remaining,
		Hours:     int(remaining / time.Hour),
		Minutes:   int(remaining % time.Hour / time.Minute),
	}
}

type Reader interface {
	Completion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error)
}

type Config struct {
	Reader   Reader
	Clock    clock.Clock
	Interval time.Duration
	// OnUpdate receives every derived window. It must not call back into the Scheduler.
	OnUpdate func(k domain.TopicKey, w domain.CooldownWindow)
}

// Scheduler re-derives the cooldown of the watched topic once per interval while it is active.
// It only reads completions.
type Scheduler struct {
	reader   Reader
	clock    clock.Clock
	interval time.Duration
	onUpdate func(domain.TopicKey, domain.CooldownWindow)

	mu     sync.Mutex
	key    domain.TopicKey
	window domain.CooldownWindow
	watch  *watch
}

type watch struct {
	done chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(c Config) *Scheduler {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.OnUpdate == nil {
		c.OnUpdate = func(domain.TopicKey, domain.CooldownWindow) {}
	}

	return &Scheduler{
		reader:   c.Reader,
		clock:    c.Clock,
		interval: c.Interval,
		onUpdate: c.OnUpdate,
	}
}

// Watch switches the scheduler to k and returns its current window.
func (s *Scheduler) Watch(ctx context.Context, k domain.TopicKey) (domain.CooldownWindow, error) {
	s.Stop()

	s.mu.Lock()
	s.key = k
	s.window = domain.CooldownWindow{}
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Refresh re-reads the watched topic, restarting the periodic check when the window is active.
func (s *Scheduler) Refresh(ctx context.Context) (domain.CooldownWindow, error) {
	s.mu.Lock()
	k := s.key
	s.mu.Unlock()

	c, err := s.reader.Completion(ctx, k)
	if err != nil {
		return domain.CooldownWindow{}, err
	}

	w := Window(c, s.clock.Now())
	s.publish(k, w)

	s.mu.Lock()
	running := s.watch != nil
	s.mu.Unlock()

	if w.Active && !running {
		s.start(k)
	}

	return w, nil
}

// Current returns the last derived window of the watched topic.
func (s *Scheduler) Current() (domain.TopicKey, domain.CooldownWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.key, s.window
}

// Stop cancels the periodic check. No update is delivered after it returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	w := s.watch
	s.watch = nil
	s.mu.Unlock()

	if w == nil {
		return
	}

	close(w.done)
	w.wg.Wait()
}

func (s *Scheduler) start(k domain.TopicKey) {
	w := &watch{done: make(chan struct{})}
	t := s.clock.NewTicker(s.interval)

	s.mu.Lock()
	if s.watch != nil {
		s.mu.Unlock()
		t.Stop()
		return
	}
	s.watch = w
	s.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer t.Stop()

		for {
			select {
			case <-w.done:
				return
			case <-t.C():
			}

			if !s.tick(k, w) {
				s.mu.Lock()
				if s.watch == w {
					s.watch = nil
				}
				s.mu.Unlock()
				return
			}
		}
	}()
}

// tick reports whether the window is still active.
func (s *Scheduler) tick(k domain.TopicKey, w *watch) bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultReadTimeout)
	defer cancel()

	c, err := s.reader.Completion(ctx, k)
	if err != nil {
		slog.WarnContext(ctx, "cooldown: recheck failed", "topic", k.TopicID, "error", err)
		return true
	}

	select {
	case <-w.done:
		return false
	default:
	}

	win := Window(c, s.clock.Now())
	s.publish(k, win)
	return win.Active
}

func (s *Scheduler) publish(k domain.TopicKey, w domain.CooldownWindow) {
	s.mu.Lock()
	if s.key != k {
		s.mu.Unlock()
		return
	}
	s.window = w
	s.mu.Unlock()

	s.onUpdate(k, w)
}
