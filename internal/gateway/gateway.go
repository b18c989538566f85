package gateway

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/encoding"

	"github.com/victornm/lifequiz/internal/domain"
)

const (
	serviceName = "lifequiz.v1.QuizService"

	// CodecName is the content-subtype used by the quiz backend.
	CodecName = "json"

	learnerIDHeader = "x-learner-id"
)

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

type (
	StartQuizRequest struct {
		CourseID string `json:"course_id"`
		TopicID  string `json:"topic_id"`
		Mode     string `json:"mode"`
	}

	StartFinalExamRequest struct {
		CourseID string `json:"course_id"`
	}

	SessionResponse struct {
		SessionID string     `json:"session_id"`
		CourseID  string     `json:"course_id"`
		TopicID   string     `json:"topic_id"`
		Mode      string     `json:"mode"`
		Questions []Question `json:"questions"`
	}

	Question struct {
		QuestionID       string   `json:"question_id"`
		Text             string   `json:"text"`
		Options          []string `json:"options"`
		TimeLimitSeconds int      `json:"time_limit_seconds"`
	}

	SubmitAnswerRequest struct {
		SessionID      string `json:"session_id"`
		QuestionID     string `json:"question_id"`
		SelectedOption int    `json:"selected_option"`
		ElapsedSeconds int    `json:"elapsed_seconds"`
	}

	SubmitAnswerResponse struct {
		IsCorrect          bool `json:"is_correct"`
		LivesRemaining     int  `json:"lives_remaining"`
		SessionStillActive bool `json:"session_still_active"`
		AnsweredCount      int  `json:"answered_count"`
		CorrectCount       int  `json:"correct_count"`
	}

	FinalizeQuizRequest struct {
		SessionID string   `json:"session_id"`
		RequestID string   `json:"request_id"`
		Answers   []Answer `json:"answers"`
	}

	Answer struct {
		QuestionID     string `json:"question_id"`
		SelectedOption int    `json:"selected_option"`
		ElapsedSeconds int    `json:"elapsed_seconds"`
	}

	FinalizeQuizResponse struct {
		CorrectCount     int             `json:"correct_count"`
		IncorrectCount   int             `json:"incorrect_count"`
		ExperienceGained decimal.Decimal `json:"experience_gained"`
		LivesRemaining   int             `json:"lives_remaining"`
	}
)

func (r *SessionResponse) toDomain() *domain.SessionSnapshot {
	s := &domain.SessionSnapshot{
		SessionID: r.SessionID,
		CourseID:  r.CourseID,
		TopicID:   r.TopicID,
		Mode:      domain.Mode(r.Mode),
		Questions: make([]domain.Question, 0, len(r.Questions)),
	}

	for _, q := range r.Questions {
		s.Questions = append(s.Questions, domain.Question{
			QuestionID:       q.QuestionID,
			Text:             q.Text,
			Options:          q.Options,
			TimeLimitSeconds: q.TimeLimitSeconds,
		})
	}

	return s
}

func toAnswers(answers []domain.Answer) []Answer {
	res := make([]Answer, 0, len(answers))
	for _, a := range answers {
		res = append(res, Answer{
			QuestionID:     a.QuestionID,
			SelectedOption: a.SelectedOption,
			ElapsedSeconds: a.ElapsedSeconds,
		})
	}
	return res
}
