package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/quiz"
)

type (
	OpenTopicRequest struct {
		CourseID string `json:"course_id" binding:"required"`
		TopicID  string `json:"topic_id" binding:"required"`
	}

	OpenTopicResponse struct {
		Approved       bool     `json:"approved"`
		BestPercentage int      `json:"best_percentage"`
		Cooldown       Cooldown `json:"cooldown"`
	}

	StartRequest struct {
		CourseID string `json:"course_id" binding:"required"`
		TopicID  string `json:"topic_id" binding:"required"`
		Mode     string `json:"mode"`
		// Force confirms retaking an approved topic.
		Force bool `json:"force"`
	}

	StartResponse struct {
		Outcome  string    `json:"outcome"`
		Session  *Session  `json:"session,omitempty"`
		Cooldown *Cooldown `json:"cooldown,omitempty"`
		Failure  *Failure  `json:"failure,omitempty"`
	}

	AnswerRequest struct {
		QuestionID     string `json:"question_id" binding:"required"`
		SelectedOption *int   `json:"selected_option" binding:"required"`
	}

	AnswerResponse struct {
		Outcome   string   `json:"outcome"`
		Correct   bool     `json:"correct"`
		Completed bool     `json:"completed"`
		Lives     Lives    `json:"lives"`
		Session   *Session `json:"session,omitempty"`
		Failure   *Failure `json:"failure,omitempty"`
	}

	FinalizeResponse struct {
		Outcome          string          `json:"outcome"`
		Percentage       int             `json:"percentage"`
		Passed           bool            `json:"passed"`
		CorrectCount     int             `json:"correct_count"`
		IncorrectCount   int             `json:"incorrect_count"`
		ExperienceGained decimal.Decimal `json:"experience_gained"`
		LivesRemaining   int             `json:"lives_remaining"`
		BestPercentage   *int            `json:"best_percentage,omitempty"`
		Streak           *Streak         `json:"streak,omitempty"`
		Cooldown         *Cooldown       `json:"cooldown,omitempty"`
		Failure          *Failure        `json:"failure,omitempty"`
	}

	State struct {
		Phase       string   `json:"phase"`
		CourseID    string   `json:"course_id,omitempty"`
		TopicID     string   `json:"topic_id,omitempty"`
		Session     *Session `json:"session,omitempty"`
		Lives       *Lives   `json:"lives,omitempty"`
		Cooldown    Cooldown `json:"cooldown"`
		Loading     bool     `json:"loading"`
		Interrupted bool     `json:"interrupted"`
		LastError   string   `json:"last_error,omitempty"`
	}

	Session struct {
		SessionID    string     `json:"session_id"`
		CourseID     string     `json:"course_id"`
		TopicID      string     `json:"topic_id"`
		Mode         string     `json:"mode"`
		Questions    []Question `json:"questions"`
		CurrentIndex int        `json:"current_index"`
		Answered     int        `json:"answered"`
		CorrectCount int        `json:"correct_count"`
	}

	Question struct {
		QuestionID       string   `json:"question_id"`
		Text             string   `json:"text"`
		Options          []string `json:"options"`
		TimeLimitSeconds int      `json:"time_limit_seconds"`
	}

	Lives struct {
		CourseID                  string `json:"course_id,omitempty"`
		Current                   int    `json:"current"`
		Max                       int    `json:"max"`
		MinutesToNextRegeneration int    `json:"minutes_to_next_regeneration"`
	}

	Cooldown struct {
		Active  bool       `json:"active"`
		EndsAt  *time.Time `json:"ends_at,omitempty"`
		Hours   int        `json:"hours"`
		Minutes int        `json:"minutes"`
	}

	Streak struct {
		ConsecutiveDays int    `json:"consecutive_days"`
		LastStreakDate  string `json:"last_streak_date"`
	}

	Failure struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
		Blocking  bool   `json:"blocking"`
	}

	Directive struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}

	Interruption struct {
		SessionID string `json:"session_id"`
		Source    string `json:"source"`
	}

	Finalized struct {
		SessionID        string          `json:"session_id"`
		CourseID         string          `json:"course_id"`
		TopicID          string          `json:"topic_id"`
		Mode             string          `json:"mode"`
		Percentage       int             `json:"percentage"`
		ExperienceGained decimal.Decimal `json:"experience_gained"`
		Streak           *Streak         `json:"streak,omitempty"`
	}
)

func toSession(s *domain.QuizSession) *Session {
	if s == nil {
		return nil
	}

	res := &Session{
		SessionID:    s.SessionID,
		CourseID:     s.CourseID,
		TopicID:      s.TopicID,
		Mode:         string(s.Mode),
		Questions:    make([]Question, 0, len(s.Questions)),
		CurrentIndex: s.CurrentIndex,
		Answered:     len(s.Answers),
		CorrectCount: s.CorrectCount,
	}
	for _, q := range s.Questions {
		res.Questions = append(res.Questions, Question{
			QuestionID:       q.QuestionID,
			Text:             q.Text,
			Options:          q.Options,
			TimeLimitSeconds: q.TimeLimitSeconds,
		})
	}
	return res
}

func toLives(courseID string, b domain.LifeBudget) Lives {
	return Lives{
		CourseID:                  courseID,
		Current:                   b.Current,
		Max:                       b.Max,
		MinutesToNextRegeneration: b.MinutesToNextRegeneration,
	}
}

func toCooldown(w domain.CooldownWindow) Cooldown {
	c := Cooldown{Active: w.Active, Hours: w.Hours, Minutes: w.Minutes}
	if w.Active {
		endsAt := w.EndsAt
		c.EndsAt = &endsAt
	}
	return c
}

func toStreak(s *domain.StreakState) *Streak {
	if s == nil {
		return nil
	}
	return &Streak{ConsecutiveDays: s.ConsecutiveDays, LastStreakDate: s.LastStreakDate}
}

func toFailure(f *errors.Failure) *Failure {
	if f == nil {
		return nil
	}
	return &Failure{
		Kind:      f.Kind.String(),
		Message:   f.Message,
		Retryable: f.Retryable(),
		Blocking:  f.Blocking(),
	}
}

func toState(s quiz.State) State {
	res := State{
		Phase:       string(s.Phase),
		CourseID:    s.Course.CourseID,
		TopicID:     s.Topic.TopicID,
		Session:     toSession(s.Session),
		Cooldown:    toCooldown(s.Cooldown),
		Loading:     s.Loading,
		Interrupted: s.Interrupted,
		LastError:   s.LastError,
	}
	if s.LivesKnown {
		l := toLives(s.Course.CourseID, s.Lives)
		res.Lives = &l
	}
	return res
}
