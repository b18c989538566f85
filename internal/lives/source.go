package lives

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/lifequiz/internal/domain"
)

const subscribeRetries = 3

// Source delivers pushed life balances of a learner in a course.
type Source interface {
	Subscribe(ctx context.Context, k domain.CourseKey, onUpdate func(domain.LifeBudget), onError func(error)) (Subscription, error)
}

type Subscription interface {
	// Unsubscribe stops delivery. No callback runs after it returns.
	Unsubscribe()
}

type message struct {
	Current                   int   `json:"current"`
	Max                       int   `json:"max"`
	MinutesToNextRegeneration int   `json:"minutes_to_next_regeneration"`
	UpdatedAtMillis           int64 `json:"updated_at_ms"`
}

// RedisSource reads the latest balance from a snapshot key and follows a pub/sub channel
// of the same name.
type RedisSource struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisSource(r redis.UniversalClient, prefix string) *RedisSource {
	return &RedisSource{redis: r, prefix: prefix}
}

func (s *RedisSource) Subscribe(ctx context.Context, k domain.CourseKey, onUpdate func(domain.LifeBudget), onError func(error)) (Subscription, error) {
	name := s.channel(k)
	ps := s.redis.Subscribe(ctx, name)

	confirm := func() error {
		_, err := ps.Receive(ctx)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), subscribeRetries), ctx)
	if err := backoff.Retry(confirm, b); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("lives: subscribe %s: %w", name, err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}

	raw, err := s.redis.Get(ctx, name).Bytes()
	switch {
	case stderrors.Is(err, redis.Nil):
	case err != nil:
		_ = ps.Close()
		return nil, fmt.Errorf("lives: read snapshot %s: %w", name, err)
	default:
		sub.deliver(raw, onUpdate, onError)
	}

	ch := ps.Channel()
	go func() {
		defer close(sub.done)

		for msg := range ch {
			sub.deliver([]byte(msg.Payload), onUpdate, onError)
		}
	}()

	return sub, nil
}

// Publish stores b as the latest balance and pushes it to subscribers.
func (s *RedisSource) Publish(ctx context.Context, k domain.CourseKey, b domain.LifeBudget, at time.Time) error {
	raw, err := json.Marshal(message{
		Current:                   b.Current,
		Max:                       b.Max,
		MinutesToNextRegeneration: b.MinutesToNextRegeneration,
		UpdatedAtMillis:           at.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("lives: marshal: %w", err)
	}

	name := s.channel(k)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, name, raw, 0)
		p.Publish(ctx, name, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lives: publish: %w", err)
	}
	return nil
}

func (s *RedisSource) channel(k domain.CourseKey) string {
	return fmt.Sprintf("%s:lives:%s:%s", s.prefix, k.LearnerID, k.CourseID)
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	stopped bool
	last    int64
}

func (s *redisSubscription) deliver(raw []byte, onUpdate func(domain.LifeBudget), onError func(error)) {
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		if !s.isStopped() {
			onError(fmt.Errorf("lives: decode: %w", err))
		}
		return
	}

	s.mu.Lock()
	if s.stopped || m.UpdatedAtMillis < s.last {
		s.mu.Unlock()
		return
	}
	s.last = m.UpdatedAtMillis
	s.mu.Unlock()

	onUpdate(domain.LifeBudget{
		Current:                   m.Current,
		Max:                       m.Max,
		MinutesToNextRegeneration: m.MinutesToNextRegeneration,
	}.Normalize())
}

func (s *redisSubscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		_ = s.ps.Close()
		<-s.done
	})
}
