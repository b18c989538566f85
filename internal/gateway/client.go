package gateway

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	Conn      grpc.ClientConnInterface
	LearnerID string
	Timeout   time.Duration
}

// Client calls the quiz backend. Failures are returned as *errors.Error carrying the
// backend's status code and message.
type Client struct {
	conn      grpc.ClientConnInterface
	learnerID string
	timeout   time.Duration
}

func NewClient(c Config) *Client {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return &Client{
		conn:      c.Conn,
		learnerID: c.LearnerID,
		timeout:   c.Timeout,
	}
}

func (c *Client) StartQuiz(ctx context.Context, courseID, topicID string, mode domain.Mode) (*domain.SessionSnapshot, error) {
	var resp SessionResponse
	err := c.invoke(ctx, "StartQuiz", &StartQuizRequest{
		CourseID: courseID,
		TopicID:  topicID,
		Mode:     string(mode),
	}, &resp)
	if err != nil {
		return nil, err
	}

	return resp.toDomain(), nil
}

func (c *Client) StartFinalExam(ctx context.Context, courseID string) (*domain.SessionSnapshot, error) {
	var resp SessionResponse
	if err := c.invoke(ctx, "StartFinalExam", &StartFinalExamRequest{CourseID: courseID}, &resp); err != nil {
		return nil, err
	}

	s := resp.toDomain()
	if s.TopicID == "" {
		s.TopicID = domain.FinalExamTopic
	}
	return s, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, a domain.Answer) (*domain.AnswerOutcome, error) {
	var resp SubmitAnswerResponse
	err := c.invoke(ctx, "SubmitAnswer", &SubmitAnswerRequest{
		SessionID:      sessionID,
		QuestionID:     a.QuestionID,
		SelectedOption: a.SelectedOption,
		ElapsedSeconds: a.ElapsedSeconds,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &domain.AnswerOutcome{
		IsCorrect:          resp.IsCorrect,
		LivesRemaining:     resp.LivesRemaining,
		SessionStillActive: resp.SessionStillActive,
		AnsweredCount:      resp.AnsweredCount,
		CorrectCount:       resp.CorrectCount,
	}, nil
}

// FinalizeQuiz sends the whole answer list. The backend deduplicates by requestID,
// so a failed call can be repeated with the same arguments.
func (c *Client) FinalizeQuiz(ctx context.Context, sessionID, requestID string, answers []domain.Answer) (*domain.FinalOutcome, error) {
	var resp FinalizeQuizResponse
	err := c.invoke(ctx, "FinalizeQuiz", &FinalizeQuizRequest{
		SessionID: sessionID,
		RequestID: requestID,
		Answers:   toAnswers(answers),
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &domain.FinalOutcome{
		CorrectCount:     resp.CorrectCount,
		IncorrectCount:   resp.IncorrectCount,
		ExperienceGained: resp.ExperienceGained,
		LivesRemaining:   resp.LivesRemaining,
	}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx, learnerIDHeader, c.learnerID)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return errors.FromStatus(err)
	}

	return nil
}
