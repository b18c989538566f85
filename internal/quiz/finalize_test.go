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

func TestController_Finalize(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, f *fixture)
		assert  func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error)
	}{
		"a passing official attempt should record progress, streak and cooldown": {
			arrange: func(t *testing.T, f *fixture) {
				f.startOfficial(t)
				f.answerAll(t, 4)
				f.gw.final.CorrectCount = 4
				f.gw.final.IncorrectCount = 1
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				require.Equal(t, quiz.FinalizeCompleted, res.Outcome)
				assert.Equal(t, 80, res.Percentage)
				assert.True(t, res.Passed)
				assert.Equal(t, "50", res.Final.ExperienceGained.String())

				c, err := f.progress.Completion(context.Background(), topic)
				require.NoError(t, err)
				assert.Equal(t, domain.TopicCompletion{Approved: true, BestPercentage: 80, LastAttemptTimestampMillis: now.UnixMilli()}, c)

				require.NotNil(t, res.Streak)
				assert.Equal(t, domain.StreakState{ConsecutiveDays: 1, LastStreakDate: "2026-10-17"}, *res.Streak)

				assert.True(t, res.Cooldown.Active)
				assert.Equal(t, 24*time.Hour, res.Cooldown.Remaining)
				assert.True(t, f.ctrl.Snapshot().Cooldown.Active)

				st := f.ctrl.Snapshot()
				assert.Equal(t, quiz.PhaseIdle, st.Phase)
				assert.Nil(t, st.Session)
				assert.Equal(t, 1, f.events.count(domain.EventNameSessionFinalized))
			},
		},

		"a failing official attempt should only record the best percentage": {
			arrange: func(t *testing.T, f *fixture) {
				f.startOfficial(t)
				f.answerAll(t, 3)
				f.gw.final.CorrectCount = 3
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, 60, res.Percentage)
				assert.False(t, res.Passed)
				assert.Nil(t, res.Streak)
				assert.False(t, res.Cooldown.Active)

				c, err := f.progress.Completion(context.Background(), topic)
				require.NoError(t, err)
				assert.Equal(t, domain.TopicCompletion{BestPercentage: 60}, c)
			},
		},

		"a worse official attempt should keep the best percentage": {
			arrange: func(t *testing.T, f *fixture) {
				_, err := f.progress.RecordBest(context.Background(), topic, 60)
				require.NoError(t, err)

				f.startOfficial(t)
				f.answerAll(t, 2)
				f.gw.final.CorrectCount = 2
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, 40, res.Percentage)
				require.NotNil(t, res.Completion)
				assert.Equal(t, 60, res.Completion.BestPercentage)
			},
		},

		"a practice attempt should not record anything": {
			arrange: func(t *testing.T, f *fixture) {
				_, err := f.ctrl.Start(context.Background(), quiz.StartRequest{CourseID: "c1", TopicID: "t1", Mode: domain.ModePractice})
				require.NoError(t, err)
				f.answerAll(t, 5)
				f.gw.final.CorrectCount = 5
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, 100, res.Percentage)
				assert.Nil(t, res.Completion)

				c, err := f.progress.Completion(context.Background(), topic)
				require.NoError(t, err)
				assert.Zero(t, c)
			},
		},

		"no answers should be a no-op": {
			arrange: func(t *testing.T, f *fixture) {
				f.startOfficial(t)
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, quiz.FinalizeNoop, res.Outcome)
				assert.Empty(t, f.gw.finalizeCalls())
				assert.Equal(t, quiz.PhaseActive, f.ctrl.Snapshot().Phase)
			},
		},

		"no session should be a no-op": {
			arrange: func(t *testing.T, f *fixture) {},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, quiz.FinalizeNoop, res.Outcome)
			},
		},

		"a throttled finalize should keep the session and lives": {
			arrange: func(t *testing.T, f *fixture) {
				f.startOfficial(t)
				f.answerAll(t, 5)
				f.gw.finalErr = errors.New(errors.CodeResourceExhausted, errors.WithMessagef("rate limit exceeded, slow down"))
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, quiz.FinalizeFailed, res.Outcome)
				assert.True(t, res.Failure.Retryable())

				st := f.ctrl.Snapshot()
				assert.Equal(t, quiz.PhaseActive, st.Phase)
				assert.Equal(t, 3, st.Lives.Current)
				assert.Len(t, st.Session.Answers, 5)
				assert.Zero(t, f.events.count(domain.EventNameSessionInterrupted))
			},
		},

		"a lives exhausted rejection should interrupt": {
			arrange: func(t *testing.T, f *fixture) {
				f.startOfficial(t)
				f.answerAll(t, 5)
				f.gw.finalErr = errors.New(errors.CodeResourceExhausted, errors.WithMessagef("no lives"))
			},

			assert: func(t *testing.T, f *fixture, res quiz.FinalizeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, quiz.FinalizeInterrupted, res.Outcome)
				assert.True(t, f.ctrl.Snapshot().Interrupted)
				assert.Equal(t, 1, f.events.count(domain.EventNameSessionInterrupted))
				assert.Zero(t, f.events.count(domain.EventNameSessionFinalized))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := setup(t)
			tt.arrange(t, f)
			res, err := f.ctrl.Finalize(context.Background())

			tt.assert(t, f, res, err)
		})
	}
}

func TestController_Finalize_RetrySendsSamePayload(t *testing.T) {
	f := setup(t)
	s := f.startOfficial(t)
	f.answerAll(t, 5)
	f.gw.finalErr = errors.New(errors.CodeUnavailable, errors.WithMessagef("upstream timeout"))

	res, err := f.ctrl.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, quiz.FinalizeFailed, res.Outcome)
	assert.True(t, res.Failure.Retryable())

	st := f.ctrl.Snapshot()
	assert.Equal(t, quiz.PhaseActive, st.Phase)
	assert.Len(t, st.Session.Answers, 5)

	f.gw.mu.Lock()
	f.gw.finalErr = nil
	f.gw.final.CorrectCount = 5
	f.gw.mu.Unlock()

	res, err = f.ctrl.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, quiz.FinalizeCompleted, res.Outcome)

	calls := f.gw.finalizeCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, s.RequestID, calls[0].requestID)
	assert.Equal(t, calls[0], calls[1])
}

func TestController_Finalize_DropsConcurrentCalls(t *testing.T) {
	f := setup(t)
	f.startOfficial(t)
	f.answerAll(t, 5)
	f.gw.final.CorrectCount = 5

	release := f.gw.hold()
	done := make(chan quiz.FinalizeResult, 1)
	go func() {
		res, _ := f.ctrl.Finalize(context.Background())
		done <- res
	}()
	<-f.gw.entered

	res, err := f.ctrl.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quiz.FinalizeDropped, res.Outcome)

	err = f.ctrl.Reset()
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	close(release)
	assert.Equal(t, quiz.FinalizeCompleted, (<-done).Outcome)
	assert.Len(t, f.gw.finalizeCalls(), 1)
}

func TestController_Finalize_StreakCountsOncePerDay(t *testing.T) {
	f := setup(t)
	f.gw.final.CorrectCount = 5

	other := domain.TopicKey{LearnerID: learner, CourseID: "c1", TopicID: "t2"}
	for _, k := range []domain.TopicKey{topic, other} {
		_, err := f.ctrl.Start(context.Background(), quiz.StartRequest{CourseID: k.CourseID, TopicID: k.TopicID, Mode: domain.ModeOfficial})
		require.NoError(t, err)
		f.answerAll(t, 5)

		res, err := f.ctrl.Finalize(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res.Streak)
		assert.Equal(t, 1, res.Streak.ConsecutiveDays)
	}

	f.clock.Advance(24 * time.Hour)
	_, err := f.ctrl.ForceStart(context.Background(), quiz.StartRequest{CourseID: "c1", TopicID: "t1", Mode: domain.ModeOfficial})
	require.NoError(t, err)
	f.answerAll(t, 5)

	res, err := f.ctrl.Finalize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Streak)
	assert.Equal(t, domain.StreakState{ConsecutiveDays: 2, LastStreakDate: "2026-10-18"}, *res.Streak)
}
