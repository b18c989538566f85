package domain

const (
	EventNameSessionStarted     = "session.started"
	EventNameSessionAnswered    = "session.answered"
	EventNameSessionInterrupted = "session.interrupted"
	EventNameSessionFinalized   = "session.finalized"
	EventNameLivesUpdated       = "lives.updated"
	EventNameCooldownUpdated    = "cooldown.updated"
	EventNameDirective          = "ui.directive"
)

type EventSessionStarted struct {
	Session QuizSession
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventSessionAnswered struct {
	SessionID string
	Answer    Answer
	Outcome   AnswerOutcome
}

func (EventSessionAnswered) Name() string { return EventNameSessionAnswered }

type InterruptSource string

const (
	InterruptSourceLocal    InterruptSource = "local"
	InterruptSourceAnswer   InterruptSource = "answer"
	InterruptSourceFinalize InterruptSource = "finalize"
	InterruptSourcePush     InterruptSource = "push"
)

type EventSessionInterrupted struct {
	SessionID string
	Source    InterruptSource
}

func (EventSessionInterrupted) Name() string { return EventNameSessionInterrupted }

type EventSessionFinalized struct {
	SessionID  string
	CourseID   string
	TopicID    string
	Mode       Mode
	Outcome    FinalOutcome
	Percentage int
	Streak     *StreakState
}

func (EventSessionFinalized) Name() string { return EventNameSessionFinalized }

type EventLivesUpdated struct {
	CourseID string
	Lives    LifeBudget
}

func (EventLivesUpdated) Name() string { return EventNameLivesUpdated }

type EventCooldownUpdated struct {
	Topic  TopicKey
	Window CooldownWindow
}

func (EventCooldownUpdated) Name() string { return EventNameCooldownUpdated }

type DirectiveKind string

const (
	DirectiveNoLives                DirectiveKind = "no_lives"
	DirectiveConfirmAlreadyApproved DirectiveKind = "confirm_already_approved"
	DirectiveAlreadyCompleted       DirectiveKind = "already_completed"
	DirectiveCooldownActive         DirectiveKind = "cooldown_active"
	DirectiveBlockingError          DirectiveKind = "blocking_error"
	DirectiveInterrupted            DirectiveKind = "interrupted"
	DirectiveMessage                DirectiveKind = "message"
)

// Directive is a discrete instruction for the presentation layer.
type Directive struct {
	Kind    DirectiveKind
	Message string
}

type EventDirective struct {
	Directive Directive
}

func (EventDirective) Name() string { return EventNameDirective }
