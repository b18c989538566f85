package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FinalExamTopic is the topic ID used for a course's final exam.
	FinalExamTopic = "final exam"

	// PassingPercentage is the minimum percentage that approves a topic.
	PassingPercentage = 80

	// CooldownDuration is how long an approved topic is locked after the last passing attempt.
	CooldownDuration = 24 * time.Hour

	// DateLayout is the calendar date format used by streaks.
	DateLayout = "2006-01-02"
)

type Mode string

const (
	ModeOfficial Mode = "official"
	ModePractice Mode = "practice"
)

func (m Mode) Valid() bool {
	return m == ModeOfficial || m == ModePractice
}

// QuizSession represents a timed quiz attempt of a single learner.
type QuizSession struct {
	SessionID string
	CourseID  string
	TopicID   string
	Mode      Mode
	Questions []Question

	// CurrentIndex is the index of the question being shown.
	CurrentIndex int
	// Answers is append-only, in answer order.
	Answers []Answer
	// CorrectCount is tallied from the answer outcomes reported by the backend.
	CorrectCount int

	// RequestID identifies the finalize request, it stays the same across retries.
	RequestID       string
	StartedAt       time.Time
	QuestionShownAt time.Time
}

// CurrentQuestion returns the question being shown, false when all questions were answered.
func (s *QuizSession) CurrentQuestion() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// Clone returns a deep copy that is safe to hand out of the controller.
func (s *QuizSession) Clone() *QuizSession {
	if s == nil {
		return nil
	}

	c := *s
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.Questions[i] = q
	}
	c.Answers = append([]Answer(nil), s.Answers...)
	return &c
}

type Question struct {
	QuestionID       string
	Text             string
	Options          []string
	TimeLimitSeconds int
}

type Answer struct {
	QuestionID     string
	SelectedOption int
	ElapsedSeconds int
}

// LifeBudget is the learner's remaining lives in a course.
type LifeBudget struct {
	Current                   int
	Max                       int
	MinutesToNextRegeneration int
}

// Normalize enforces 0 <= Current <= Max.
func (b LifeBudget) Normalize() LifeBudget {
	if b.Max < 0 {
		b.Max = 0
	}
	if b.Current < 0 {
		b.Current = 0
	}
	if b.Current > b.Max {
		// An unknown maximum is raised to the balance, a known one caps it.
		if b.Max == 0 {
			b.Max = b.Current
		} else {
			b.Current = b.Max
		}
	}
	if b.MinutesToNextRegeneration < 0 {
		b.MinutesToNextRegeneration = 0
	}
	return b
}

// WithCurrent returns the budget with Current replaced by an authoritative value.
func (b LifeBudget) WithCurrent(current int) LifeBudget {
	if b.Max < current {
		b.Max = current
	}
	b.Current = current
	return b.Normalize()
}

// TopicKey identifies a (learner, course, topic) record.
type TopicKey struct {
	LearnerID string
	CourseID  string
	TopicID   string
}

// CourseKey identifies a (learner, course) record.
type CourseKey struct {
	LearnerID string
	CourseID  string
}

func (k TopicKey) Course() CourseKey {
	return CourseKey{LearnerID: k.LearnerID, CourseID: k.CourseID}
}

// IsFinalExam reports whether k is the final exam of its course.
func (k TopicKey) IsFinalExam() bool {
	return k.TopicID == FinalExamTopic
}

// TopicCompletion is the durable result of official attempts on a topic.
type TopicCompletion struct {
	Approved                   bool
	BestPercentage             int
	LastAttemptTimestampMillis int64
}

func (c TopicCompletion) IsApproved() bool {
	return c.Approved || c.BestPercentage >= PassingPercentage
}

func (c TopicCompletion) LastAttempt() time.Time {
	if c.LastAttemptTimestampMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.LastAttemptTimestampMillis)
}

// StreakState tracks consecutive days with a passing official attempt.
type StreakState struct {
	ConsecutiveDays int
	LastStreakDate  string
}

// CooldownWindow is derived from a TopicCompletion, it is never stored.
type CooldownWindow struct {
	Active    bool
	EndsAt    time.Time
	Remaining time.Duration
	Hours     int
	Minutes   int
}

// SessionSnapshot is what the backend returns when a quiz is started.
type SessionSnapshot struct {
	SessionID string
	CourseID  string
	TopicID   string
	Mode      Mode
	Questions []Question
}

type AnswerOutcome struct {
	IsCorrect          bool
	LivesRemaining     int
	SessionStillActive bool
	AnsweredCount      int
	CorrectCount       int
}

type FinalOutcome struct {
	CorrectCount     int
	IncorrectCount   int
	ExperienceGained decimal.Decimal
	LivesRemaining   int
}
