package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Event topic constants
const (
	TopicBadgeAwarded        = "laurel.badge.awarded"
	TopicContestRanked       = "laurel.contest.ranked"
	TopicNotificationCreated = "laurel.notification.created"

	// Inbound activity, one subject per event type (laurel.activity.cooked, ...).
	TopicActivityPrefix = "laurel.activity."
	TopicActivityAll    = TopicActivityPrefix + ">"
)

// ActivityTopic returns the subject an activity event of type t is published on.
func ActivityTopic(t model.EventType) string {
	return TopicActivityPrefix + t.String()
}

// ActivityType recovers the event type from an activity subject. It reports
// false for subjects outside laurel.activity.
func ActivityType(subject string) (model.EventType, bool) {
	rest, ok := strings.CutPrefix(subject, TopicActivityPrefix)
	if !ok || rest == "" {
		return "", false
	}
	return model.EventType(rest), true
}

// Message is one payload received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Event types

type BadgeAwarded struct {
	Award *model.Award `json:"award"`
	Badge string       `json:"badge"`
}

type ContestRanked struct {
	ContestID int64                 `json:"event_id"`
	Results   []model.ContestResult `json:"results"`
}

type NotificationCreated struct {
	Notification *model.Notification `json:"notification"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
