package quiz

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/victornm/lifequiz/internal/clock"
	"github.com/victornm/lifequiz/internal/cooldown"
	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
	"github.com/victornm/lifequiz/internal/lives"
	"github.com/victornm/lifequiz/internal/telemetry"
)

// Gateway is the quiz backend.
type Gateway interface {
	StartQuiz(ctx context.Context, courseID, topicID string, mode domain.Mode) (*domain.SessionSnapshot, error)
	StartFinalExam(ctx context.Context, courseID string) (*domain.SessionSnapshot, error)
	SubmitAnswer(ctx context.Context, sessionID string, a domain.Answer) (*domain.AnswerOutcome, error)
	FinalizeQuiz(ctx context.Context, sessionID, requestID string, answers []domain.Answer) (*domain.FinalOutcome, error)
}

// Progress reads and records topic completions.
type Progress interface {
	Completion(ctx context.Context, k domain.TopicKey) (domain.TopicCompletion, error)
	RecordBest(ctx context.Context, k domain.TopicKey, percentage int) (domain.TopicCompletion, error)
	RecordPassingAttempt(ctx context.Context, k domain.TopicKey, at time.Time) (domain.TopicCompletion, error)
}

type Streaks interface {
	Record(ctx context.Context, k domain.CourseKey, now time.Time) (domain.StreakState, error)
}

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseStarting    Phase = "starting"
	PhaseActive      Phase = "active"
	PhaseFinalizing  Phase = "finalizing"
	PhaseInterrupted Phase = "interrupted"
)

type Config struct {
	LearnerID string
	Gateway   Gateway
	Progress  Progress
	Streaks   Streaks
	Lives     lives.Source
	Events    event.Publisher
	Metrics   *telemetry.Metrics
	Clock     clock.Clock
}

// Controller runs the quiz sessions of one learner.
type Controller struct {
	learnerID string
	gateway   Gateway
	progress  Progress
	streaks   Streaks
	events    event.Publisher
	metrics   *telemetry.Metrics
	clock     clock.Clock

	observer *lives.Observer
	cooldown *cooldown.Scheduler

	starting   atomic.Bool
	finalizing atomic.Bool

	mu              sync.Mutex
	closed          bool
	phase           Phase
	session         *domain.QuizSession
	answering       bool
	interruptRaised bool
	inFlight        int
	lastError       string

	course     domain.CourseKey
	topic      domain.TopicKey
	lives      domain.LifeBudget
	livesKnown bool
	window     domain.CooldownWindow
}

func NewController(c Config) *Controller {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Events == nil {
		c.Events = nopPublisher{}
	}

	ctrl := &Controller{
		learnerID: c.LearnerID,
		gateway:   c.Gateway,
		progress:  c.Progress,
		streaks:   c.Streaks,
		events:    c.Events,
		metrics:   c.Metrics,
		clock:     c.Clock,
		phase:     PhaseIdle,
	}

	ctrl.observer = lives.NewObserver(lives.Config{
		Source:   c.Lives,
		Clock:    c.Clock,
		OnUpdate: ctrl.onLifeBalance,
		OnTick:   ctrl.onRegenTick,
	})

	ctrl.cooldown = cooldown.NewScheduler(cooldown.Config{
		Reader:   c.Progress,
		Clock:    c.Clock,
		OnUpdate: ctrl.onCooldown,
	})

	return ctrl
}

// State is a copy of the controller state for the presentation layer.
type State struct {
	Phase       Phase
	Session     *domain.QuizSession
	Course      domain.CourseKey
	Topic       domain.TopicKey
	Lives       domain.LifeBudget
	LivesKnown  bool
	Cooldown    domain.CooldownWindow
	Loading     bool
	Interrupted bool
	LastError   string
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Phase:       c.phase,
		Session:     c.session.Clone(),
		Course:      c.course,
		Topic:       c.topic,
		Lives:       c.lives,
		LivesKnown:  c.livesKnown,
		Cooldown:    c.window,
		Loading:     c.inFlight > 0,
		Interrupted: c.phase == PhaseInterrupted,
		LastError:   c.lastError,
	}
}

// TopicView is what the learner sees when a topic is opened.
type TopicView struct {
	Completion domain.TopicCompletion
	Cooldown   domain.CooldownWindow
}

// OpenTopic subscribes to the life balance of the course and starts watching the topic cooldown.
func (c *Controller) OpenTopic(ctx context.Context, courseID, topicID string) (TopicView, error) {
	if courseID == "" || topicID == "" {
		return TopicView{}, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("course and topic are required"))
	}

	course := domain.CourseKey{LearnerID: c.learnerID, CourseID: courseID}
	topic := domain.TopicKey{LearnerID: c.learnerID, CourseID: courseID, TopicID: topicID}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return TopicView{}, errors.ErrClosed
	}
	if c.session != nil && c.session.CourseID != courseID && c.phase != PhaseInterrupted {
		c.mu.Unlock()
		return TopicView{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("a quiz of course %s is in progress", c.session.CourseID))
	}
	switchCourse := c.course != course
	if switchCourse {
		c.course = course
		c.lives = domain.LifeBudget{}
		c.livesKnown = false
	}
	c.topic = topic
	c.window = domain.CooldownWindow{}
	c.mu.Unlock()

	if _, subscribed := c.observer.Subscribed(); switchCourse || !subscribed {
		if err := c.observer.Start(ctx, course); err != nil {
			slog.WarnContext(ctx, "quiz: life balance subscription failed", "course", courseID, "error", err)
		}
	}

	completion, err := c.progress.Completion(ctx, topic)
	if err != nil {
		return TopicView{}, err
	}

	w, err := c.cooldown.Watch(ctx, topic)
	if err != nil {
		return TopicView{}, err
	}

	return TopicView{Completion: completion, Cooldown: w}, nil
}

// Reset acknowledges an interruption or abandons the current session, returning to idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClosed
	}
	if c.phase == PhaseStarting || c.phase == PhaseFinalizing || c.answering {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("a request is in flight"))
	}

	if c.session != nil {
		slog.Info("quiz: session cleared", "session", c.session.SessionID, "phase", c.phase)
	}
	c.resetLocked()
	return nil
}

// Close stops the timers and the life balance subscription. Results of calls still
// in flight are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.observer.Stop()
	c.cooldown.Stop()

	slog.Info("quiz: controller closed", "learner", c.learnerID)
}

func (c *Controller) resetLocked() {
	c.session = nil
	c.phase = PhaseIdle
	c.interruptRaised = false
	c.lastError = ""
}

func (c *Controller) onLifeBalance(k domain.CourseKey, b domain.LifeBudget) {
	ctx := context.Background()

	c.mu.Lock()
	if c.closed || k != c.course {
		c.mu.Unlock()
		return
	}

	prev, prevKnown := c.lives, c.livesKnown
	c.lives = b.Normalize()
	c.livesKnown = true

	evs := []event.Event{domain.EventLivesUpdated{CourseID: k.CourseID, Lives: c.lives}}

	// An unknown previous balance counts as positive: a session could only start with lives left.
	wasPositive := !prevKnown || prev.Current > 0
	if wasPositive && c.lives.Current == 0 && c.phase == PhaseActive && c.session != nil && c.session.CourseID == k.CourseID {
		evs = append(evs, c.interruptLocked(domain.InterruptSourcePush)...)
	}
	c.mu.Unlock()

	c.emit(ctx, evs...)
}

func (c *Controller) onRegenTick(k domain.CourseKey) {
	c.mu.Lock()
	if c.closed || k != c.course || !c.livesKnown || c.lives.Current >= c.lives.Max || c.lives.MinutesToNextRegeneration == 0 {
		c.mu.Unlock()
		return
	}
	c.lives.MinutesToNextRegeneration--
	b := c.lives
	c.mu.Unlock()

	c.emit(context.Background(), domain.EventLivesUpdated{CourseID: k.CourseID, Lives: b})
}

func (c *Controller) onCooldown(k domain.TopicKey, w domain.CooldownWindow) {
	c.mu.Lock()
	if c.closed || k != c.topic {
		c.mu.Unlock()
		return
	}
	c.window = w
	c.mu.Unlock()

	c.emit(context.Background(), domain.EventCooldownUpdated{Topic: k, Window: w})
}

// interruptLocked moves the active session to Interrupted once and returns the events to emit.
func (c *Controller) interruptLocked(source domain.InterruptSource) []event.Event {
	if c.session == nil || c.interruptRaised {
		return nil
	}

	c.interruptRaised = true
	c.phase = PhaseInterrupted
	c.lastError = msgInterrupted
	c.metrics.ObserveInterruption(string(source))

	slog.Warn("quiz: session interrupted, lives exhausted",
		"session", c.session.SessionID,
		"source", source,
		"answered", len(c.session.Answers),
	)

	return []event.Event{
		domain.EventSessionInterrupted{SessionID: c.session.SessionID, Source: source},
		directive(domain.DirectiveInterrupted, msgInterrupted),
	}
}

// setLivesLocked applies the balance reported by a call response.
func (c *Controller) setLivesLocked(current int) event.Event {
	c.lives = c.lives.WithCurrent(current)
	c.livesKnown = true
	return domain.EventLivesUpdated{CourseID: c.course.CourseID, Lives: c.lives}
}

func (c *Controller) emit(ctx context.Context, evs ...event.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	for _, e := range evs {
		c.events.Publish(ctx, e)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, event.Event) {}
