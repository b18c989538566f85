package quiz_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/lifequiz/internal/clock"
	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/event"
	"github.com/victornm/lifequiz/internal/lives"
	"github.com/victornm/lifequiz/internal/progress"
	"github.com/victornm/lifequiz/internal/quiz"
	"github.com/victornm/lifequiz/internal/streak"
)

const learner = "u1"

var (
	now    = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	topic  = domain.TopicKey{LearnerID: learner, CourseID: "c1", TopicID: "t1"}
	final  = domain.TopicKey{LearnerID: learner, CourseID: "c1", TopicID: domain.FinalExamTopic}
	course = topic.Course()
)

type fixture struct {
	ctrl     *quiz.Controller
	gw       *fakeGateway
	events   *publisher
	progress *progress.Service
	store    *progress.RedisStore
	lives    *lives.RedisSource
	clock    *clock.Fake
}

func setup(t *testing.T) *fixture {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")
	t.Cleanup(func() { rc.Close() })

	f := &fixture{
		gw:     newFakeGateway(5),
		events: &publisher{},
		store:  progress.NewRedisStore(rc, "test"),
		lives:  lives.NewRedisSource(rc, "test"),
		clock:  clock.NewFake(now),
	}
	f.progress = progress.NewService(progress.Config{Store: f.store})

	f.ctrl = quiz.NewController(quiz.Config{
		LearnerID: learner,
		Gateway:   f.gw,
		Progress:  f.progress,
		Streaks:   streak.NewAccountant(streak.Config{Store: f.store, Location: time.UTC}),
		Lives:     f.lives,
		Events:    f.events,
		Clock:     f.clock,
	})
	t.Cleanup(f.ctrl.Close)

	return f
}

func (f *fixture) publishLives(t *testing.T, b domain.LifeBudget, at time.Time) {
	require.NoError(t, f.lives.Publish(context.Background(), course, b, at))
}

// approve stores an approved completion whose last passing attempt happened at.
func (f *fixture) approve(t *testing.T, k domain.TopicKey, pct int, at time.Time) {
	ctx := context.Background()
	_, err := f.progress.RecordBest(ctx, k, pct)
	require.NoError(t, err)
	_, err = f.progress.RecordPassingAttempt(ctx, k, at)
	require.NoError(t, err)
}

// startOfficial starts an official session on topic and fails the test otherwise.
func (f *fixture) startOfficial(t *testing.T) *domain.QuizSession {
	res, err := f.ctrl.Start(context.Background(), quiz.StartRequest{CourseID: topic.CourseID, TopicID: topic.TopicID, Mode: domain.ModeOfficial})
	require.NoError(t, err)
	require.Equal(t, quiz.StartStarted, res.Outcome)
	return res.Session
}

// answerAll answers every question, the first correct ones are right.
func (f *fixture) answerAll(t *testing.T, correct int) {
	for i := 0; i < len(f.gw.questions); i++ {
		f.gw.setCorrect(i < correct)
		res, err := f.ctrl.Answer(context.Background(), f.gw.questions[i].QuestionID, 0)
		require.NoError(t, err)
		require.Equal(t, quiz.AnswerAccepted, res.Outcome)
	}
}

type finalizeCall struct {
	requestID string
	answers   []domain.Answer
}

type fakeGateway struct {
	questions []domain.Question

	mu        sync.Mutex
	startErr  error
	answerErr error
	outcome   domain.AnswerOutcome
	final     domain.FinalOutcome
	finalErr  error
	starts    int
	answers   []domain.Answer
	finalizes []finalizeCall

	// When block is set, calls signal entered and wait for block to be closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeGateway(n int) *fakeGateway {
	g := &fakeGateway{
		outcome: domain.AnswerOutcome{IsCorrect: true, LivesRemaining: 3, SessionStillActive: true},
		final:   domain.FinalOutcome{ExperienceGained: decimal.NewFromInt(50), LivesRemaining: 3},
		entered: make(chan struct{}, 10),
	}
	for i := 1; i <= n; i++ {
		g.questions = append(g.questions, domain.Question{
			QuestionID:       fmt.Sprintf("q%d", i),
			Text:             fmt.Sprintf("question %d", i),
			Options:          []string{"a", "b", "c", "d"},
			TimeLimitSeconds: 30,
		})
	}
	return g
}

func (g *fakeGateway) wait() {
	g.mu.Lock()
	block := g.block
	g.mu.Unlock()

	if block != nil {
		g.entered <- struct{}{}
		<-block
	}
}

func (g *fakeGateway) hold() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.block = make(chan struct{})
	return g.block
}

func (g *fakeGateway) snapshot(courseID, topicID string, mode domain.Mode) (*domain.SessionSnapshot, error) {
	g.wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.starts++
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &domain.SessionSnapshot{
		SessionID: fmt.Sprintf("s%d", g.starts),
		CourseID:  courseID,
		TopicID:   topicID,
		Mode:      mode,
		Questions: g.questions,
	}, nil
}

func (g *fakeGateway) StartQuiz(_ context.Context, courseID, topicID string, mode domain.Mode) (*domain.SessionSnapshot, error) {
	return g.snapshot(courseID, topicID, mode)
}

func (g *fakeGateway) StartFinalExam(_ context.Context, courseID string) (*domain.SessionSnapshot, error) {
	return g.snapshot(courseID, domain.FinalExamTopic, domain.ModeOfficial)
}

func (g *fakeGateway) SubmitAnswer(_ context.Context, _ string, a domain.Answer) (*domain.AnswerOutcome, error) {
	g.wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.answerErr != nil {
		return nil, g.answerErr
	}
	g.answers = append(g.answers, a)
	out := g.outcome
	return &out, nil
}

func (g *fakeGateway) FinalizeQuiz(_ context.Context, _, requestID string, answers []domain.Answer) (*domain.FinalOutcome, error) {
	g.wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.finalizes = append(g.finalizes, finalizeCall{requestID: requestID, answers: answers})
	if g.finalErr != nil {
		return nil, g.finalErr
	}
	out := g.final
	return &out, nil
}

func (g *fakeGateway) setCorrect(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcome.IsCorrect = ok
}

func (g *fakeGateway) startCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts
}

func (g *fakeGateway) finalizeCalls() []finalizeCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]finalizeCall(nil), g.finalizes...)
}

type publisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *publisher) Publish(_ context.Context, e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *publisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.Name() == name {
			n++
		}
	}
	return n
}

func (p *publisher) directives() []domain.DirectiveKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res []domain.DirectiveKind
	for _, e := range p.events {
		if d, ok := e.(domain.EventDirective); ok {
			res = append(res, d.Directive.Kind)
		}
	}
	return res
}
