package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/event"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (a *API) handleEvent(ctx context.Context, e event.Event) error {
	n, course, ok := toNotification(e)
	if !ok {
		return nil
	}

	a.stream.broadcast(n)
	return a.publishNotification(ctx, course, n)
}

// publishNotification fans n out to the learner channel and, for course scoped events,
// to the learner's course channel.
func (a *API) publishNotification(ctx context.Context, course string, n Notification) error {
	if a.redis == nil {
		return nil
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", n.Event, err)
	}

	channels := []string{fmt.Sprintf("%s:learner:%s", a.prefix, a.learner)}
	if course != "" {
		channels = append(channels, fmt.Sprintf("%s:learner:%s:course:%s", a.prefix, a.learner, course))
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, ch := range channels {
		ch := ch
		eg.Go(func() error {
			return a.redis.Publish(ctx, ch, b).Err()
		})
	}

	return eg.Wait()
}

func toNotification(e event.Event) (Notification, string, bool) {
	switch e := e.(type) {
	case domain.EventDirective:
		return Notification{Event: e.Name(), Data: Directive{Kind: string(e.Directive.Kind), Message: e.Directive.Message}}, "", true

	case domain.EventLivesUpdated:
		return Notification{Event: e.Name(), Data: toLives(e.CourseID, e.Lives)}, e.CourseID, true

	case domain.EventCooldownUpdated:
		return Notification{Event: e.Name(), Data: struct {
			TopicID string `json:"topic_id"`
			Cooldown
		}{TopicID: e.Topic.TopicID, Cooldown: toCooldown(e.Window)}}, e.Topic.CourseID, true

	case domain.EventSessionInterrupted:
		return Notification{Event: e.Name(), Data: Interruption{SessionID: e.SessionID, Source: string(e.Source)}}, "", true

	case domain.EventSessionFinalized:
		return Notification{Event: e.Name(), Data: Finalized{
			SessionID:        e.SessionID,
			CourseID:         e.CourseID,
			TopicID:          e.TopicID,
			Mode:             string(e.Mode),
			Percentage:       e.Percentage,
			ExperienceGained: e.Outcome.ExperienceGained,
			Streak:           toStreak(e.Streak),
		}}, e.CourseID, true
	}

	return Notification{}, "", false
}
