package streak

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/lifequiz/internal/domain"
)

type Store interface {
	ReadStreakState(ctx context.Context, k domain.CourseKey) (domain.StreakState, error)
	WriteStreakState(ctx context.Context, k domain.CourseKey, s domain.StreakState) error
}

type Config struct {
	Store Store
	// Location decides where a calendar day starts, defaults to time.Local.
	Location *time.Location
}

// Accountant counts consecutive days with a passing official attempt.
type Accountant struct {
	store Store
	loc   *time.Location
}

func NewAccountant(c Config) *Accountant {
	if c.Location == nil {
		c.Location = time.Local
	}

	return &Accountant{
		store: c.Store,
		loc:   c.Location,
	}
}

// Next returns the streak after activity on the day of now.
// changed is false when the streak was already counted for that day.
func Next(s domain.StreakState, now time.Time) (next domain.StreakState, changed bool) {
	today := now.Format(domain.DateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(domain.DateLayout)

	switch s.LastStreakDate {
	case today:
		return s, false
	case yesterday:
		if s.ConsecutiveDays < 1 {
			s.ConsecutiveDays = 1
		}
		return domain.StreakState{ConsecutiveDays: s.ConsecutiveDays + 1, LastStreakDate: today}, true
	default:
		// First activity or a broken streak.
		return domain.StreakState{ConsecutiveDays: 1, LastStreakDate: today}, true
	}
}

// Record applies Next to the stored streak and persists the result.
func (a *Accountant) Record(ctx context.Context, k domain.CourseKey, now time.Time) (domain.StreakState, error) {
	cur, err := a.store.ReadStreakState(ctx, k)
	if err != nil {
		return cur, fmt.Errorf("read streak: %w", err)
	}

	next, changed := Next(cur, now.In(a.loc))
	if !changed {
		slog.DebugContext(ctx, "streak: already counted today", "course", k.CourseID, "days", cur.ConsecutiveDays)
		return cur, nil
	}

	if err := a.store.WriteStreakState(ctx, k, next); err != nil {
		return cur, fmt.Errorf("write streak: %w", err)
	}

	slog.InfoContext(ctx, "streak: updated", "course", k.CourseID, "days", next.ConsecutiveDays)
	return next, nil
}
