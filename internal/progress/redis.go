package progress

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/lifequiz/internal/domain"
)

const (
	fieldApproved    = "approved"
	fieldBest        = "best_percentage"
	fieldLastAttempt = "last_attempt_ms"
	fieldDays        = "consecutive_days"
	fieldDate        = "last_streak_date"
)

// RedisStore keeps each record in a hash.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(r redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{redis: r, prefix: prefix}
}

func (s *RedisStore) ReadTopicCompletion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error) {
	m, err := s.redis.HGetAll(ctx, s.completionKey(k)).Result()
	if err != nil {
		return domain.TopicCompletion{}, fmt.Errorf("hgetall: %w", err)
	}

	var c domain.TopicCompletion
	if len(m) == 0 {
		return c, nil
	}

	c.Approved = m[fieldApproved] == "1"
	if c.BestPercentage, err = atoi(m, fieldBest); err != nil {
		return c, err
	}
	if c.LastAttemptTimestampMillis, err = atoi64(m, fieldLastAttempt); err != nil {
		return c, err
	}

	return c, nil
}

func (s *RedisStore) WriteTopicCompletion(ctx context.Context, k domain.TopicKey, c domain.TopicCompletion) error {
	approved := "0"
	if c.Approved {
		approved = "1"
	}

	return s.redis.HSet(ctx, s.completionKey(k),
		fieldApproved, approved,
		fieldBest, c.BestPercentage,
		fieldLastAttempt, c.LastAttemptTimestampMillis,
	).Err()
}

func (s *RedisStore) ReadStreakState(ctx context.Context, k domain.CourseKey) (domain.StreakState, error) {
	m, err := s.redis.HGetAll(ctx, s.streakKey(k)).Result()
	if err != nil {
		return domain.StreakState{}, fmt.Errorf("hgetall: %w", err)
	}

	var st domain.StreakState
	if len(m) == 0 {
		return st, nil
	}

	if st.ConsecutiveDays, err = atoi(m, fieldDays); err != nil {
		return st, err
	}
	st.LastStreakDate = m[fieldDate]

	return st, nil
}

func (s *RedisStore) WriteStreakState(ctx context.Context, k domain.CourseKey, st domain.StreakState) error {
	return s.redis.HSet(ctx, s.streakKey(k),
		fieldDays, st.ConsecutiveDays,
		fieldDate, st.LastStreakDate,
	).Err()
}

func (s *RedisStore) completionKey(k domain.TopicKey) string {
	return fmt.Sprintf("%s:completion:%s:%s:%s", s.prefix, k.LearnerID, k.CourseID, k.TopicID)
}

func (s *RedisStore) streakKey(k domain.CourseKey) string {
	return fmt.Sprintf("%s:streak:%s:%s", s.prefix, k.LearnerID, k.CourseID)
}

func atoi(m map[string]string, field string) (int, error) {
	v, err := atoi64(m, field)
	return int(v), err
}

func atoi64(m map[string]string, field string) (int64, error) {
	s, ok := m[field]
	if !ok || s == "" {
		return 0, nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}
