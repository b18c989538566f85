package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind is the category of a failure reported by the quiz backend.
type Kind int

const (
	KindGeneric Kind = iota
	KindPeriodEnded
	KindNoLivesAvailable
	KindTopicUnavailable
	KindConnectionError
)

func (k Kind) String() string {
	switch k {
	case KindPeriodEnded:
		return "period_ended"
	case KindNoLivesAvailable:
		return "no_lives_available"
	case KindTopicUnavailable:
		return "topic_unavailable"
	case KindConnectionError:
		return "connection_error"
	default:
		return "generic"
	}
}

// Failure is a classified backend failure.
type Failure struct {
	Kind Kind
	// Message is a short text for the learner.
	Message string
	// Detail is the raw message returned by the backend.
	Detail string
}

// Retryable reports whether the same request may succeed if sent again.
func (f Failure) Retryable() bool {
	return f.Kind == KindConnectionError || f.Kind == KindGeneric
}

// LivesExhausted reports whether the backend ended the session because the learner ran out of lives.
// Only such a failure interrupts a running session.
func (f Failure) LivesExhausted() bool {
	return f.Kind == KindNoLivesAvailable
}

// Blocking reports whether the failure should be shown as a blocking dialog.
func (f Failure) Blocking() bool {
	return f.Kind == KindPeriodEnded || f.Kind == KindTopicUnavailable || f.Kind == KindNoLivesAvailable
}

// The backend reports failures as free text, mostly in Spanish. Structured codes are
// checked first, the phrases below are the fallback.
var phrases = []struct {
	kind    Kind
	matches []string
}{
	{
		kind: KindNoLivesAvailable,
		matches: []string{
			"vidas agotadas", "sin vidas", "no tienes vidas", "no hay vidas", "no quedan vidas",
			"abandonada por vidas", "abandonado por falta de vidas",
			"no lives", "out of lives", "lives exhausted", "abandoned due to lives",
		},
	},
	{
		kind: KindPeriodEnded,
		matches: []string{
			"periodo finalizado", "período finalizado", "periodo ha finalizado", "período ha finalizado",
			"periodo terminado", "período terminado", "periodo cerrado", "período cerrado",
			"periodo ha terminado", "período ha terminado",
			"period ended", "period has ended", "period closed",
		},
	},
	{
		kind: KindTopicUnavailable,
		matches: []string{
			"tema no disponible", "tema no encontrado", "tema deshabilitado", "tema inactivo",
			"topic not found", "topic unavailable", "topic not available", "topic disabled",
		},
	},
	{
		kind: KindConnectionError,
		matches: []string{
			"tiempo de espera", "sin conexión", "sin conexion", "error de conexión", "error de conexion",
			"error de red", "timeout", "timed out", "connection refused", "connection reset",
			"network", "no such host", "unreachable",
		},
	},
}

var kindMessages = map[Kind]string{
	KindPeriodEnded:      "The period for this topic has ended.",
	KindNoLivesAvailable: "You have no lives left. Wait for them to regenerate.",
	KindTopicUnavailable: "This topic is not available.",
	KindConnectionError:  "Connection problem, please try again.",
}

// Classify maps an error returned by the quiz backend to a Failure.
// It never returns an empty message: unmatched errors pass their message through.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: KindGeneric}
	}

	detail := err.Error()
	var e *Error
	if errors.As(err, &e) {
		detail = e.Message
	}

	kind := classifyKind(err, e, detail)

	msg := kindMessages[kind]
	if msg == "" {
		msg = detail
	}
	if msg == "" {
		msg = "Something went wrong."
	}

	return Failure{Kind: kind, Message: msg, Detail: detail}
}

func classifyKind(err error, e *Error, detail string) Kind {
	if k, ok := matchPhrase(detail); ok && k != KindConnectionError {
		return k
	}

	// ResourceExhausted alone is throttling. It means no lives only with a lives phrase, matched above.
	if e != nil {
		switch e.Code {
		case CodeNotFound:
			return KindTopicUnavailable
		case CodeUnavailable, CodeDeadlineExceeded, CodeResourceExhausted:
			return KindConnectionError
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectionError
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindConnectionError
	}

	if k, ok := matchPhrase(detail); ok {
		return k
	}

	return KindGeneric
}

func matchPhrase(s string) (Kind, bool) {
	s = strings.ToLower(s)
	for _, p := range phrases {
		for _, m := range p.matches {
			if strings.Contains(s, m) {
				return p.kind, true
			}
		}
	}
	return KindGeneric, false
}
