package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
)

// Store persists topic completions and streaks. Reading a missing record returns the zero value.
type Store interface {
	ReadTopicCompletion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error)
	WriteTopicCompletion(ctx context.Context, k domain.TopicKey, c domain.TopicCompletion) error
	ReadStreakState(ctx context.Context, k domain.CourseKey) (domain.StreakState, error)
	WriteStreakState(ctx context.Context, k domain.CourseKey, s domain.StreakState) error
}

type Config struct {
	Store Store
}

// Service applies the topic completion rules on top of a Store.
type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

func (s *Service) Completion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error) {
	c, err := s.store.ReadTopicCompletion(ctx, k)
	if err != nil {
		return domain.TopicCompletion{}, fmt.Errorf("read topic completion: %w", err)
	}
	return c, nil
}

// RecordBest stores percentage as the best result only when it beats the stored one.
func (s *Service) RecordBest(ctx context.Context, k domain.TopicKey, percentage int) (domain.TopicCompletion, error) {
	if percentage < 0 || percentage > 100 {
		return domain.TopicCompletion{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("percentage out of range: %d", percentage))
	}

	c, err := s.Completion(ctx, k)
	if err != nil {
		return c, err
	}

	if percentage <= c.BestPercentage {
		slog.DebugContext(ctx, "progress: best percentage kept",
			"topic", k.TopicID, "stored", c.BestPercentage, "got", percentage)
		return c, nil
	}

	c.BestPercentage = percentage
	if percentage >= domain.PassingPercentage {
		c.Approved = true
	}

	if err := s.store.WriteTopicCompletion(ctx, k, c); err != nil {
		return c, fmt.Errorf("write topic completion: %w", err)
	}

	return c, nil
}

// RecordPassingAttempt marks the topic approved and starts its cooldown at.
func (s *Service) RecordPassingAttempt(ctx context.Context, k domain.TopicKey, at time.Time) (domain.TopicCompletion, error) {
	c, err := s.Completion(ctx, k)
	if err != nil {
		return c, err
	}

	c.Approved = true
	c.LastAttemptTimestampMillis = at.UnixMilli()

	if err := s.store.WriteTopicCompletion(ctx, k, c); err != nil {
		return c, fmt.Errorf("write topic completion: %w", err)
	}

	return c, nil
}
