package notify

import (
	"context"
	"time"

	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
)

// BusSubscriptionID is the id of the event bus bridge subscription.
const BusSubscriptionID = "bus"

// publishTimeout bounds one bridge publish.
const publishTimeout = 5 * time.Second

// BusSubscription forwards every notification to the event bus so other
// processes can stream them too.
func BusSubscription(pub events.Publisher) Subscription {
	return Subscription{
		ID: BusSubscriptionID,
		Deliver: func(n *model.Notification) error {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			return pub.Publish(ctx, events.TopicNotificationCreated, events.NotificationCreated{Notification: n})
		},
	}
}
