package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
	"github.com/victornm/lifequiz/internal/quiz"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Controller   Controller
	Redis        Redis
	PubsubPrefix string
	LearnerID    string
}

type Controller interface {
	OpenTopic(ctx context.Context, courseID, topicID string) (quiz.TopicView, error)
	Start(ctx context.Context, req quiz.StartRequest) (quiz.StartResult, error)
	ForceStart(ctx context.Context, req quiz.StartRequest) (quiz.StartResult, error)
	Answer(ctx context.Context, questionID string, selected int) (quiz.AnswerResult, error)
	Finalize(ctx context.Context) (quiz.FinalizeResult, error)
	Reset() error
	Snapshot() quiz.State
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ctrl Controller

	redis   Redis
	prefix  string
	learner string

	stream *stream
	cancel func()
}

func New(c Config) *API {
	a := &API{
		ctrl:    c.Controller,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
		learner: c.LearnerID,
		stream:  newStream(),
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/topics/open", a.OpenTopic)
	v1.GET("/quiz", a.GetState)
	v1.POST("/quiz/start", a.Start)
	v1.POST("/quiz/answer", a.Answer)
	v1.POST("/quiz/finalize", a.Finalize)
	v1.POST("/quiz/reset", a.Reset)
	v1.GET("/events", a.Events)

	// Notifications keep the order the controller emitted them in, the last lives update wins.
	a.cancel = c.EventBus.SubscribeOrdered([]string{
		domain.EventNameDirective,
		domain.EventNameLivesUpdated,
		domain.EventNameCooldownUpdated,
		domain.EventNameSessionInterrupted,
		domain.EventNameSessionFinalized,
	}, a.handleEvent)

	return a
}

// Close stops forwarding events and ends the open event streams.
func (a *API) Close() {
	a.cancel()
	a.stream.close()
}

func (a *API) OpenTopic(c *gin.Context) {
	var req OpenTopicRequest
	if !bind(c, &req) {
		return
	}

	v, err := a.ctrl.OpenTopic(c.Request.Context(), req.CourseID, req.TopicID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, OpenTopicResponse{
		Approved:       v.Completion.IsApproved(),
		BestPercentage: v.Completion.BestPercentage,
		Cooldown:       toCooldown(v.Cooldown),
	})
}

func (a *API) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, toState(a.ctrl.Snapshot()))
}

func (a *API) Start(c *gin.Context) {
	var req StartRequest
	if !bind(c, &req) {
		return
	}

	sr := quiz.StartRequest{CourseID: req.CourseID, TopicID: req.TopicID, Mode: domain.Mode(req.Mode)}
	if sr.Mode == "" {
		sr.Mode = domain.ModeOfficial
	}

	start := a.ctrl.Start
	if req.Force {
		start = a.ctrl.ForceStart
	}

	res, err := start(c.Request.Context(), sr)
	if err != nil {
		abort(c, err)
		return
	}

	resp := StartResponse{
		Outcome: string(res.Outcome),
		Session: toSession(res.Session),
		Failure: toFailure(res.Failure),
	}
	if res.Outcome == quiz.StartCooldownActive {
		cd := toCooldown(res.Cooldown)
		resp.Cooldown = &cd
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) Answer(c *gin.Context) {
	var req AnswerRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.ctrl.Answer(c.Request.Context(), req.QuestionID, *req.SelectedOption)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, AnswerResponse{
		Outcome:   string(res.Outcome),
		Correct:   res.Correct,
		Completed: res.Completed,
		Lives:     toLives("", res.Lives),
		Session:   toSession(res.Session),
		Failure:   toFailure(res.Failure),
	})
}

func (a *API) Finalize(c *gin.Context) {
	res, err := a.ctrl.Finalize(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	resp := FinalizeResponse{
		Outcome:          string(res.Outcome),
		Percentage:       res.Percentage,
		Passed:           res.Passed,
		CorrectCount:     res.Final.CorrectCount,
		IncorrectCount:   res.Final.IncorrectCount,
		ExperienceGained: res.Final.ExperienceGained,
		LivesRemaining:   res.Final.LivesRemaining,
		Streak:           toStreak(res.Streak),
		Failure:          toFailure(res.Failure),
	}
	if res.Completion != nil {
		best := res.Completion.BestPercentage
		resp.BestPercentage = &best
	}
	if res.Cooldown.Active {
		cd := toCooldown(res.Cooldown)
		resp.Cooldown = &cd
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) Reset(c *gin.Context) {
	if err := a.ctrl.Reset(); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toState(a.ctrl.Snapshot()))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err), errors.WithCause(err)))
		return false
	}
	return true
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
