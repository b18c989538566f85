package quiz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/quiz"
)

func TestController_PushToZeroInterruptsOnce(t *testing.T) {
	f := setup(t)
	f.publishLives(t, domain.LifeBudget{Current: 2, Max: 5, MinutesToNextRegeneration: 10}, now)
	f.startOfficial(t)

	f.publishLives(t, domain.LifeBudget{Current: 0, Max: 5, MinutesToNextRegeneration: 30}, now.Add(time.Second))
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().Interrupted }, time.Second, 5*time.Millisecond)

	f.publishLives(t, domain.LifeBudget{Current: 0, Max: 5, MinutesToNextRegeneration: 29}, now.Add(2*time.Second))
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().Lives.MinutesToNextRegeneration == 29
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.events.count(domain.EventNameSessionInterrupted))
	assert.Equal(t, []domain.DirectiveKind{domain.DirectiveInterrupted}, f.events.directives())

	res, err := f.ctrl.Answer(context.Background(), "q1", 0)
	require.NoError(t, err)
	assert.Equal(t, quiz.AnswerInterrupted, res.Outcome)
}

func TestController_PushWithLivesLeftKeepsSession(t *testing.T) {
	f := setup(t)
	f.startOfficial(t)

	f.publishLives(t, domain.LifeBudget{Current: 4, Max: 5, MinutesToNextRegeneration: 3}, now)
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().LivesKnown }, time.Second, 5*time.Millisecond)

	st := f.ctrl.Snapshot()
	assert.Equal(t, quiz.PhaseActive, st.Phase)
	assert.Equal(t, domain.LifeBudget{Current: 4, Max: 5, MinutesToNextRegeneration: 3}, st.Lives)
}

func TestController_PushForAnotherCourseIsIgnored(t *testing.T) {
	f := setup(t)
	f.startOfficial(t)

	other := domain.CourseKey{LearnerID: learner, CourseID: "c2"}
	require.NoError(t, f.lives.Publish(context.Background(), other, domain.LifeBudget{Current: 0, Max: 5}, now))
	time.Sleep(50 * time.Millisecond)

	st := f.ctrl.Snapshot()
	assert.Equal(t, quiz.PhaseActive, st.Phase)
	assert.False(t, st.LivesKnown)
}

func TestController_RegenerationCountdown(t *testing.T) {
	f := setup(t)
	f.publishLives(t, domain.LifeBudget{Current: 2, Max: 5, MinutesToNextRegeneration: 2}, now)

	_, err := f.ctrl.OpenTopic(context.Background(), topic.CourseID, topic.TopicID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().Lives.MinutesToNextRegeneration == 1
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().Lives.MinutesToNextRegeneration == 0
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.ctrl.Snapshot().Lives.MinutesToNextRegeneration)
	assert.Equal(t, 2, f.ctrl.Snapshot().Lives.Current)
}

func TestController_OpenTopic(t *testing.T) {
	f := setup(t)
	f.approve(t, topic, 90, now.Add(-time.Hour))

	v, err := f.ctrl.OpenTopic(context.Background(), topic.CourseID, topic.TopicID)
	require.NoError(t, err)
	assert.Equal(t, 90, v.Completion.BestPercentage)
	assert.True(t, v.Cooldown.Active)
	assert.Equal(t, 23, v.Cooldown.Hours)

	st := f.ctrl.Snapshot()
	assert.Equal(t, topic, st.Topic)
	assert.True(t, st.Cooldown.Active)

	_, err = f.ctrl.Start(context.Background(), quiz.StartRequest{CourseID: topic.CourseID, TopicID: topic.TopicID, Mode: domain.ModePractice})
	require.NoError(t, err)
	_, err = f.ctrl.OpenTopic(context.Background(), "c2", "t1")
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestController_CloseStopsTimers(t *testing.T) {
	f := setup(t)
	f.approve(t, topic, 90, now.Add(-time.Hour))

	_, err := f.ctrl.OpenTopic(context.Background(), topic.CourseID, topic.TopicID)
	require.NoError(t, err)
	require.Equal(t, 2, f.clock.Active(), "regeneration and cooldown tickers")

	f.ctrl.Close()
	assert.Zero(t, f.clock.Active())

	_, err = f.ctrl.Answer(context.Background(), "q1", 0)
	assert.ErrorIs(t, err, errors.ErrClosed)
}
