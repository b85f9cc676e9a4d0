package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// Dispatcher routes an activity event into the badge engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.ActivityEvent) error
}

// ActivityListener feeds activity events published on the bus by other
// services into a Dispatcher.
type ActivityListener struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewActivityListener(d Dispatcher, logger *slog.Logger) *ActivityListener {
	return &ActivityListener{dispatcher: d, logger: logger.With("component", "activity-listener")}
}

// Run consumes laurel.activity.> until ctx is cancelled or the subscription
// closes. A payload without event_type takes it from its subject. Bad
// payloads and dispatch failures are logged and skipped.
func (l *ActivityListener) Run(ctx context.Context, sub Subscriber) error {
	ch, cancel, err := sub.Subscribe(TopicActivityAll)
	if err != nil {
		return fmt.Errorf("activity listener: subscribe: %w", err)
	}
	defer cancel()

	l.logger.Info("activity listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("activity listener stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				l.logger.Info("activity subscription channel closed")
				return nil
			}

			var ev model.ActivityEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				l.logger.Warn("bad activity payload", "subject", msg.Subject, "err", err)
				continue
			}
			if ev.Type == "" {
				ev.Type, _ = ActivityType(msg.Subject)
			}
			if err := model.ValidateActivityEvent(&ev); err != nil {
				l.logger.Warn("rejected activity payload", "user_id", ev.UserID, "err", err)
				continue
			}
			if err := l.dispatcher.Dispatch(ctx, ev); err != nil {
				l.logger.Error("dispatch activity", "user_id", ev.UserID, "event_type", ev.Type, "err", err)
			}
		}
	}
}
