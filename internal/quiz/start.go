package quiz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/victornm/lifequiz/internal/cooldown"
	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
)

type StartOutcome string

const (
	StartDropped          StartOutcome = "dropped"
	StartStarted          StartOutcome = "started"
	StartAlreadyCompleted StartOutcome = "already_completed"
	StartConfirmNeeded    StartOutcome = "confirm_needed"
	StartCooldownActive   StartOutcome = "cooldown_active"
	StartNoLives          StartOutcome = "no_lives"
	StartSessionActive    StartOutcome = "session_active"
	StartFailed           StartOutcome = "failed"
)

type StartRequest struct {
	CourseID string
	TopicID  string
	Mode     domain.Mode
}

type StartResult struct {
	Outcome  StartOutcome
	Session  *domain.QuizSession
	Cooldown domain.CooldownWindow
	Failure  *errors.Failure
}

// Start begins a quiz after the local preconditions pass. A call made while another
// start is in flight is dropped.
func (c *Controller) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	return c.start(ctx, req, false)
}

// ForceStart is Start after the learner confirmed retaking an approved topic.
func (c *Controller) ForceStart(ctx context.Context, req StartRequest) (StartResult, error) {
	return c.start(ctx, req, true)
}

func (c *Controller) start(ctx context.Context, req StartRequest, force bool) (StartResult, error) {
	if req.CourseID == "" || req.TopicID == "" {
		return StartResult{}, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("course and topic are required"))
	}
	k := domain.TopicKey{LearnerID: c.learnerID, CourseID: req.CourseID, TopicID: req.TopicID}
	if k.IsFinalExam() {
		req.Mode = domain.ModeOfficial
	}
	if !req.Mode.Valid() {
		return StartResult{}, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid mode %q", req.Mode))
	}

	if !c.starting.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "quiz: start already in flight, dropped", "topic", req.TopicID)
		c.metrics.ObserveStart(string(StartDropped))
		return StartResult{Outcome: StartDropped}, nil
	}
	defer c.starting.Store(false)

	res, evs, err := c.doStart(ctx, req, k, force)
	if err != nil {
		return StartResult{}, err
	}

	c.metrics.ObserveStart(string(res.Outcome))
	c.emit(ctx, evs...)
	return res, nil
}

func (c *Controller) doStart(ctx context.Context, req StartRequest, k domain.TopicKey, force bool) (StartResult, []event.Event, error) {
	finalExam := k.IsFinalExam()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StartResult{}, nil, errors.ErrClosed
	}
	opened := c.topic == k
	busy := c.phase == PhaseActive || c.phase == PhaseFinalizing || c.phase == PhaseStarting
	c.mu.Unlock()

	// A running session keeps its topic watched, the start is rejected below.
	if !opened && !busy {
		if _, err := c.OpenTopic(ctx, req.CourseID, req.TopicID); err != nil {
			slog.WarnContext(ctx, "quiz: open topic before start", "topic", req.TopicID, "error", err)
		}
	}

	if req.Mode == domain.ModeOfficial {
		completion, err := c.progress.Completion(ctx, k)
		if err != nil {
			return StartResult{}, nil, err
		}

		if finalExam && completion.BestPercentage >= domain.PassingPercentage {
			return StartResult{Outcome: StartAlreadyCompleted},
				[]event.Event{directive(domain.DirectiveAlreadyCompleted, msgAlreadyCompleted)}, nil
		}

		if !finalExam && completion.IsApproved() {
			w := cooldown.Window(completion, c.clock.Now())
			if w.Active {
				return StartResult{Outcome: StartCooldownActive, Cooldown: w},
					[]event.Event{cooldownDirective(w)}, nil
			}
			if !force {
				return StartResult{Outcome: StartConfirmNeeded},
					[]event.Event{directive(domain.DirectiveConfirmAlreadyApproved, msgConfirmApproved)}, nil
			}
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StartResult{}, nil, errors.ErrClosed
	}
	if c.livesKnown && c.course == k.Course() && c.lives.Current == 0 {
		c.mu.Unlock()
		return StartResult{Outcome: StartNoLives}, []event.Event{directive(domain.DirectiveNoLives, msgNoLives)}, nil
	}
	switch c.phase {
	case PhaseActive, PhaseFinalizing, PhaseStarting:
		c.mu.Unlock()
		return StartResult{Outcome: StartSessionActive}, []event.Event{directive(domain.DirectiveMessage, msgSessionActive)}, nil
	case PhaseInterrupted:
		slog.InfoContext(ctx, "quiz: discarding interrupted session", "session", c.session.SessionID)
		c.resetLocked()
	}
	c.phase = PhaseStarting
	c.lastError = ""
	c.inFlight++
	c.mu.Unlock()

	var (
		snap *domain.SessionSnapshot
		err  error
	)
	if finalExam {
		snap, err = c.gateway.StartFinalExam(ctx, req.CourseID)
	} else {
		snap, err = c.gateway.StartQuiz(ctx, req.CourseID, req.TopicID, req.Mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight--
	if c.closed {
		c.phase = PhaseIdle
		return StartResult{}, nil, errors.ErrClosed
	}

	if err == nil && len(snap.Questions) == 0 {
		err = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef(msgNoQuestions))
	}
	if err != nil {
		c.phase = PhaseIdle
		f := errors.Classify(err)
		c.lastError = f.Message
		slog.ErrorContext(ctx, "quiz: start failed", "topic", req.TopicID, "kind", f.Kind, "error", err)
		return StartResult{Outcome: StartFailed, Failure: &f}, failureDirectives(f), nil
	}

	now := c.clock.Now()
	s := &domain.QuizSession{
		SessionID:       snap.SessionID,
		CourseID:        req.CourseID,
		TopicID:         req.TopicID,
		Mode:            req.Mode,
		Questions:       snap.Questions,
		RequestID:       newRequestID(),
		StartedAt:       now,
		QuestionShownAt: now,
	}
	if snap.Mode.Valid() {
		s.Mode = snap.Mode
	}

	c.session = s
	c.phase = PhaseActive
	c.interruptRaised = false

	slog.InfoContext(ctx, "quiz: session started",
		"session", s.SessionID,
		"topic", s.TopicID,
		"mode", s.Mode,
		"questions", len(s.Questions),
	)

	return StartResult{Outcome: StartStarted, Session: s.Clone()},
		[]event.Event{domain.EventSessionStarted{Session: *s.Clone()}}, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
