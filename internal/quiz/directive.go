package quiz

import (
	"fmt"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/errors"
	"github.com/victornm/lifequiz/internal/event"
)

const (
	msgInterrupted      = "You ran out of lives. The quiz was interrupted."
	msgNoLives          = "You have no lives left. Wait for them to regenerate."
	msgAlreadyCompleted = "You already passed the final exam."
	msgConfirmApproved  = "You already approved this topic. Do you want to take it again?"
	msgSessionActive    = "A quiz is already in progress."
	msgNoQuestions      = "This quiz has no questions."
	msgProgressNotSaved = "Your result could not be saved on this device."
)

func directive(kind domain.DirectiveKind, msg string) event.Event {
	return domain.EventDirective{Directive: domain.Directive{Kind: kind, Message: msg}}
}

func cooldownDirective(w domain.CooldownWindow) event.Event {
	return directive(domain.DirectiveCooldownActive,
		fmt.Sprintf("You can take this topic again in %dh %dm.", w.Hours, w.Minutes))
}

// failureDirectives turns a classified backend failure into what the learner should see.
func failureDirectives(f errors.Failure) []event.Event {
	switch f.Kind {
	case errors.KindNoLivesAvailable:
		return []event.Event{directive(domain.DirectiveNoLives, f.Message)}
	case errors.KindPeriodEnded, errors.KindTopicUnavailable:
		return []event.Event{directive(domain.DirectiveBlockingError, f.Message)}
	default:
		return []event.Event{directive(domain.DirectiveMessage, f.Message)}
	}
}
