package quiz

import (
	"context"
	"log/slog"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
)

type AnswerOutcome string

const (
	AnswerAccepted    AnswerOutcome = "accepted"
	AnswerInterrupted AnswerOutcome = "interrupted"
	AnswerFailed      AnswerOutcome = "failed"
)

type AnswerResult struct {
	Outcome AnswerOutcome
	Correct bool
	Lives   domain.LifeBudget
	// Completed is true once every question of the session has an answer.
	Completed bool
	Session   *domain.QuizSession
	Failure   *errors.Failure
}

// Answer submits the selected option for the question being shown.
func (c *Controller) Answer(ctx context.Context, questionID string, selected int) (AnswerResult, error) {
	res, evs, err := c.answer(ctx, questionID, selected)
	c.emit(ctx, evs...)
	return res, err
}

func (c *Controller) answer(ctx context.Context, questionID string, selected int) (AnswerResult, []event.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.ErrClosed
	}
	if c.session == nil {
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.ErrNoActiveSession
	}
	if c.phase == PhaseInterrupted {
		c.mu.Unlock()
		return AnswerResult{Outcome: AnswerInterrupted, Lives: c.lives}, nil, nil
	}
	if c.phase != PhaseActive || c.answering {
		phase := c.phase
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("cannot answer while %s", phase))
	}

	q, ok := c.session.CurrentQuestion()
	if !ok {
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("all questions were answered"))
	}
	if q.QuestionID != questionID {
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s is not the one being shown", questionID))
	}
	if selected < 0 || (len(q.Options) > 0 && selected >= len(q.Options)) {
		c.mu.Unlock()
		return AnswerResult{}, nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("option %d out of range", selected))
	}

	// The balance is already known to be empty, the backend would reject the answer anyway.
	if c.livesKnown && c.lives.Current == 0 {
		evs := c.interruptLocked(domain.InterruptSourceLocal)
		b := c.lives
		c.mu.Unlock()
		return AnswerResult{Outcome: AnswerInterrupted, Lives: b}, evs, nil
	}

	now := c.clock.Now()
	elapsed := int(now.Sub(c.session.QuestionShownAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	a := domain.Answer{QuestionID: questionID, SelectedOption: selected, ElapsedSeconds: elapsed}
	s := c.session

	c.answering = true
	c.inFlight++
	c.mu.Unlock()

	out, err := c.gateway.SubmitAnswer(ctx, s.SessionID, a)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.answering = false
	c.inFlight--
	if c.closed {
		return AnswerResult{}, nil, errors.ErrClosed
	}
	if c.session != s {
		return AnswerResult{}, nil, errors.ErrNoActiveSession
	}

	if err != nil {
		f := errors.Classify(err)
		if f.LivesExhausted() {
			evs := []event.Event{c.setLivesLocked(0)}
			evs = append(evs, c.interruptLocked(domain.InterruptSourceAnswer)...)
			return AnswerResult{Outcome: AnswerInterrupted, Lives: c.lives, Failure: &f}, evs, nil
		}

		c.lastError = f.Message
		slog.ErrorContext(ctx, "quiz: submit answer failed", "session", s.SessionID, "question", questionID, "error", err)
		return AnswerResult{Outcome: AnswerFailed, Lives: c.lives, Failure: &f}, failureDirectives(f), nil
	}

	evs := []event.Event{c.setLivesLocked(out.LivesRemaining)}

	// A push may have interrupted the session while the call was in flight.
	if c.phase == PhaseInterrupted {
		return AnswerResult{Outcome: AnswerInterrupted, Correct: out.IsCorrect, Lives: c.lives}, evs, nil
	}
	if out.LivesRemaining == 0 || !out.SessionStillActive {
		evs = append(evs, c.interruptLocked(domain.InterruptSourceAnswer)...)
		return AnswerResult{Outcome: AnswerInterrupted, Correct: out.IsCorrect, Lives: c.lives}, evs, nil
	}

	s.Answers = append(s.Answers, a)
	if out.IsCorrect {
		s.CorrectCount++
	}
	s.CurrentIndex++
	s.QuestionShownAt = c.clock.Now()
	c.lastError = ""

	evs = append(evs, domain.EventSessionAnswered{SessionID: s.SessionID, Answer: a, Outcome: *out})

	return AnswerResult{
		Outcome:   AnswerAccepted,
		Correct:   out.IsCorrect,
		Lives:     c.lives,
		Completed: s.CurrentIndex >= len(s.Questions),
		Session:   s.Clone(),
	}, evs, nil
}
