package event_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/lifequiz/internal/domain"
	"github.com/victornm/lifequiz/internal/event"
)

func TestBus_Routing(t *testing.T) {
	var (
		started     = domain.EventSessionStarted{Session: domain.QuizSession{SessionID: "s1"}}
		livesLow    = domain.EventLivesUpdated{CourseID: "c1", Lives: domain.LifeBudget{Current: 1, Max: 5}}
		livesEmpty  = domain.EventLivesUpdated{CourseID: "c1", Lives: domain.LifeBudget{Current: 0, Max: 5}}
		interrupted = domain.EventSessionInterrupted{SessionID: "s1", Source: domain.InterruptSourcePush}
		noLives     = domain.EventDirective{Directive: domain.Directive{Kind: domain.DirectiveNoLives}}
	)

	type (
		listener struct {
			name   string
			events []string
		}

		inputs struct {
			published []event.Event
			listeners []listener
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, received map[string][]event.Event)
	}{
		"listener only receives what it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{started, livesLow},
					listeners: []listener{{name: "lives", events: []string{domain.EventNameLivesUpdated}}},
				}
			},
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{livesLow}, received["lives"])
			},
		},

		"every balance push is delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{livesLow, livesEmpty},
					listeners: []listener{{name: "lives", events: []string{domain.EventNameLivesUpdated}}},
				}
			},
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{livesLow, livesEmpty}, received["lives"])
			},
		},

		"an interruption fans out to all listeners": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{interrupted},
					listeners: []listener{
						{name: "sse", events: []string{domain.EventNameSessionInterrupted}},
						{name: "pubsub", events: []string{domain.EventNameSessionInterrupted}},
						{name: "metrics", events: []string{domain.EventNameSessionInterrupted}},
					},
				}
			},
			assert: func(t *testing.T, received map[string][]event.Event) {
				for _, l := range []string{"sse", "pubsub", "metrics"} {
					assert.ElementsMatch(t, []event.Event{interrupted}, received[l], l)
				}
			},
		},

		"mixed lifecycle is routed per listener": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{started, livesEmpty, interrupted, noLives},
					listeners: []listener{
						{name: "session", events: []string{domain.EventNameSessionStarted, domain.EventNameSessionInterrupted}},
						{name: "ui", events: []string{domain.EventNameDirective, domain.EventNameLivesUpdated}},
						{name: "finalized", events: []string{domain.EventNameSessionFinalized}},
					},
				}
			},
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{started, interrupted}, received["session"])
				assert.ElementsMatch(t, []event.Event{livesEmpty, noLives}, received["ui"])
				assert.Empty(t, received["finalized"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			var mu sync.Mutex
			received := make(map[string][]event.Event)

			b := event.NewBus()
			for _, l := range in.listeners {
				l := l
				for _, name := range l.events {
					b.Subscribe(name, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[l.name] = append(received[l.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, received)
		})
	}
}

func TestBus_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	var (
		mu       sync.Mutex
		received int
	)

	b := event.NewBus()
	b.Subscribe(domain.EventNameDirective, func(ctx context.Context, e event.Event) error {
		return errors.New("redis down")
	})
	b.Subscribe(domain.EventNameDirective, func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe(domain.EventNameDirective, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), domain.EventDirective{Directive: domain.Directive{Kind: domain.DirectiveMessage}})
	b.Stop()

	assert.Equal(t, 1, received)
}

func TestBus_CancelledSubscriptionReceivesNothing(t *testing.T) {
	b := event.NewBus()
	cancel := b.Subscribe(domain.EventNameLivesUpdated, func(ctx context.Context, e event.Event) error {
		t.Error("cancelled handler should not be invoked")
		return nil
	})
	cancel()
	cancel()

	b.Publish(context.Background(), domain.EventLivesUpdated{CourseID: "c1"})
	b.Stop()
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	b := event.NewBus()
	b.Subscribe(domain.EventNameSessionFinalized, func(ctx context.Context, e event.Event) error {
		t.Error("handler should not be invoked after stop")
		return nil
	})
	b.Stop()

	b.Publish(context.Background(), domain.EventSessionFinalized{SessionID: "s1"})
	b.Stop()
}

func TestBus_SubscribeOrdered(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)

	b := event.NewBus()
	b.SubscribeOrdered([]string{domain.EventNameLivesUpdated, domain.EventNameDirective}, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		defer mu.Unlock()

		switch e := e.(type) {
		case domain.EventLivesUpdated:
			received = append(received, fmt.Sprintf("lives:%d", e.Lives.Current))
		case domain.EventDirective:
			received = append(received, "directive:"+string(e.Directive.Kind))
		}
		return nil
	})

	var want []string
	for i := 20; i >= 0; i-- {
		b.Publish(context.Background(), domain.EventLivesUpdated{CourseID: "c1", Lives: domain.LifeBudget{Current: i, Max: 20}})
		want = append(want, fmt.Sprintf("lives:%d", i))
	}
	b.Publish(context.Background(), domain.EventDirective{Directive: domain.Directive{Kind: domain.DirectiveNoLives}})
	want = append(want, "directive:no_lives")
	b.Stop()

	assert.Equal(t, want, received)
}

func TestBus_SubscribeOrdered_Cancel(t *testing.T) {
	b := event.NewBus()
	cancel := b.SubscribeOrdered([]string{domain.EventNameLivesUpdated, domain.EventNameDirective}, func(ctx context.Context, e event.Event) error {
		t.Error("cancelled handler should not be invoked")
		return nil
	})
	cancel()

	b.Publish(context.Background(), domain.EventLivesUpdated{CourseID: "c1"})
	b.Publish(context.Background(), domain.EventDirective{})
	b.Stop()
}
