package quiz

import (
	"context"
	"log/slog"

	"github.com/victornm/lifequiz/internal/cooldown"
	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
)

type FinalizeOutcome string

const (
	FinalizeDropped     FinalizeOutcome = "dropped"
	FinalizeNoop        FinalizeOutcome = "noop"
	FinalizeCompleted   FinalizeOutcome = "completed"
	FinalizeInterrupted FinalizeOutcome = "interrupted"
	FinalizeFailed      FinalizeOutcome = "failed"
)

type FinalizeResult struct {
	Outcome    FinalizeOutcome
	Percentage int
	Passed     bool
	Final      domain.FinalOutcome
	Completion *domain.TopicCompletion
	Streak     *domain.StreakState
	Cooldown   domain.CooldownWindow
	Failure    *errors.Failure
}

// Finalize sends the recorded answers and, for official sessions, records the result
// locally. Failed calls keep the answers so a retry sends the same payload.
func (c *Controller) Finalize(ctx context.Context) (FinalizeResult, error) {
	if !c.finalizing.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "quiz: finalize already in flight, dropped")
		c.metrics.ObserveFinalize(string(FinalizeDropped))
		return FinalizeResult{Outcome: FinalizeDropped}, nil
	}
	defer c.finalizing.Store(false)

	res, evs, err := c.finalize(ctx)
	if err != nil {
		return res, err
	}

	c.metrics.ObserveFinalize(string(res.Outcome))
	c.emit(ctx, evs...)
	return res, nil
}

func (c *Controller) finalize(ctx context.Context) (FinalizeResult, []event.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return FinalizeResult{}, nil, errors.ErrClosed
	}
	if c.session == nil || c.phase != PhaseActive || c.answering || len(c.session.Answers) == 0 {
		slog.WarnContext(ctx, "quiz: nothing to finalize", "phase", c.phase, "has_session", c.session != nil)
		c.mu.Unlock()
		return FinalizeResult{Outcome: FinalizeNoop}, nil, nil
	}

	s := c.session
	answers := append([]domain.Answer(nil), s.Answers...)
	c.phase = PhaseFinalizing
	c.inFlight++
	c.mu.Unlock()

	out, err := c.gateway.FinalizeQuiz(ctx, s.SessionID, s.RequestID, answers)

	c.mu.Lock()
	c.inFlight--
	if c.closed {
		c.mu.Unlock()
		return FinalizeResult{}, nil, errors.ErrClosed
	}
	if c.session != s {
		c.mu.Unlock()
		return FinalizeResult{}, nil, errors.ErrNoActiveSession
	}

	if err != nil {
		f := errors.Classify(err)
		c.phase = PhaseActive

		if f.LivesExhausted() {
			evs := []event.Event{c.setLivesLocked(0)}
			evs = append(evs, c.interruptLocked(domain.InterruptSourceFinalize)...)
			c.mu.Unlock()
			return FinalizeResult{Outcome: FinalizeInterrupted, Failure: &f}, evs, nil
		}

		c.lastError = f.Message
		c.mu.Unlock()
		slog.ErrorContext(ctx, "quiz: finalize failed", "session", s.SessionID, "request_id", s.RequestID, "error", err)
		return FinalizeResult{Outcome: FinalizeFailed, Failure: &f}, failureDirectives(f), nil
	}

	evs := []event.Event{c.setLivesLocked(out.LivesRemaining)}
	c.resetLocked()
	watched := c.topic
	c.mu.Unlock()

	pct := out.CorrectCount * 100 / len(answers)
	res := FinalizeResult{
		Outcome:    FinalizeCompleted,
		Percentage: pct,
		Passed:     pct >= domain.PassingPercentage,
		Final:      *out,
	}

	slog.InfoContext(ctx, "quiz: session finalized",
		"session", s.SessionID,
		"topic", s.TopicID,
		"mode", s.Mode,
		"percentage", pct,
		"xp", out.ExperienceGained.String(),
	)

	if s.Mode == domain.ModeOfficial {
		evs = append(evs, c.record(ctx, s, &res, watched)...)
	}

	evs = append(evs, domain.EventSessionFinalized{
		SessionID:  s.SessionID,
		CourseID:   s.CourseID,
		TopicID:    s.TopicID,
		Mode:       s.Mode,
		Outcome:    *out,
		Percentage: pct,
		Streak:     res.Streak,
	})

	return res, evs, nil
}

// record persists the result of an official session. The backend already holds the
// result, so local failures are reported without failing the finalization.
func (c *Controller) record(ctx context.Context, s *domain.QuizSession, res *FinalizeResult, watched domain.TopicKey) []event.Event {
	k := domain.TopicKey{LearnerID: c.learnerID, CourseID: s.CourseID, TopicID: s.TopicID}
	now := c.clock.Now()

	var evs []event.Event
	notSaved := func(what string, err error) {
		slog.ErrorContext(ctx, "quiz: "+what, "session", s.SessionID, "error", err)
		evs = append(evs, directive(domain.DirectiveMessage, msgProgressNotSaved))
	}

	completion, err := c.progress.RecordBest(ctx, k, res.Percentage)
	if err != nil {
		notSaved("record best percentage", err)
		return evs
	}
	res.Completion = &completion

	if !res.Passed {
		return evs
	}

	st, err := c.streaks.Record(ctx, k.Course(), now)
	if err != nil {
		notSaved("record streak", err)
	} else {
		res.Streak = &st
	}

	completion, err = c.progress.RecordPassingAttempt(ctx, k, now)
	if err != nil {
		notSaved("record passing attempt", err)
		return evs
	}
	res.Completion = &completion

	// Read the stored record back so the lock reflects what was persisted.
	if watched == k {
		w, err := c.cooldown.Refresh(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "quiz: refresh cooldown", "topic", k.TopicID, "error", err)
			res.Cooldown = cooldown.Window(completion, now)
		} else {
			res.Cooldown = w
		}
	} else {
		res.Cooldown = cooldown.Window(completion, now)
	}

	return evs
}
