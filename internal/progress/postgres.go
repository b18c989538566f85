package progress

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/lifequiz/internal/domain"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS topic_completions (
	learner_id      TEXT    NOT NULL,
	course_id       TEXT    NOT NULL,
	topic_id        TEXT    NOT NULL,
	approved        BOOLEAN NOT NULL DEFAULT FALSE,
	best_percentage INTEGER NOT NULL DEFAULT 0 CHECK (best_percentage BETWEEN 0 AND 100),
	last_attempt_ms BIGINT  NOT NULL DEFAULT 0,
	PRIMARY KEY (learner_id, course_id, topic_id)
);

CREATE TABLE IF NOT EXISTS streaks (
	learner_id       TEXT    NOT NULL,
	course_id        TEXT    NOT NULL,
	consecutive_days INTEGER NOT NULL DEFAULT 0,
	last_streak_date TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (learner_id, course_id)
);`

// PostgresStore is the durable Store.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadTopicCompletion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error) {
	const stmt = `
SELECT approved, best_percentage, last_attempt_ms
FROM topic_completions
WHERE learner_id = $1 AND course_id = $2 AND topic_id = $3;`

	var c domain.TopicCompletion
	err := s.db.QueryRow(ctx, stmt, k.LearnerID, k.CourseID, k.TopicID).
		Scan(&c.Approved, &c.BestPercentage, &c.LastAttemptTimestampMillis)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.TopicCompletion{}, nil
	}
	if err != nil {
		return domain.TopicCompletion{}, err
	}

	return c, nil
}

func (s *PostgresStore) WriteTopicCompletion(ctx context.Context, k domain.TopicKey, c domain.TopicCompletion) error {
	const stmt = `
INSERT INTO topic_completions (learner_id, course_id, topic_id, approved, best_percentage, last_attempt_ms)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (learner_id, course_id, topic_id) DO UPDATE
SET approved = EXCLUDED.approved,
	best_percentage = EXCLUDED.best_percentage,
	last_attempt_ms = EXCLUDED.last_attempt_ms;`

	_, err := s.db.Exec(ctx, stmt, k.LearnerID, k.CourseID, k.TopicID, c.Approved, c.BestPercentage, c.LastAttemptTimestampMillis)
	return err
}

func (s *PostgresStore) ReadStreakState(ctx context.Context, k domain.CourseKey) (domain.StreakState, error) {
	const stmt = `
SELECT consecutive_days, last_streak_date
FROM streaks
WHERE learner_id = $1 AND course_id = $2;`

	var st domain.StreakState
	err := s.db.QueryRow(ctx, stmt, k.LearnerID, k.CourseID).Scan(&st.ConsecutiveDays, &st.LastStreakDate)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.StreakState{}, nil
	}
	if err != nil {
		return domain.StreakState{}, err
	}

	return st, nil
}

func (s *PostgresStore) WriteStreakState(ctx context.Context, k domain.CourseKey, st domain.StreakState) error {
	const stmt = `
INSERT INTO streaks (learner_id, course_id, consecutive_days, last_streak_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (learner_id, course_id) DO UPDATE
SET consecutive_days = EXCLUDED.consecutive_days,
	last_streak_date = EXCLUDED.last_streak_date;`

	_, err := s.db.Exec(ctx, stmt, k.LearnerID, k.CourseID, st.ConsecutiveDays, st.LastStreakDate)
	return err
}
