package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/alfredjeanlab/laurel/internal/idgen"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/presence"
)

const (
	// streamQueueSize bounds the notifications buffered per connection.
	streamQueueSize = 64

	// keepaliveInterval is how often idle connections are pinged.
	keepaliveInterval = 15 * time.Second
)

// errQueueFull is the delivery failure reported when a slow connection's
// queue is full. The notification is dropped for that connection.
var errQueueFull = errors.New("stream queue full")

// stream is one live connection's subscription to the poller.
type stream struct {
	id     string
	userID string
	queue  chan *model.Notification
	close  func()
}

// openStream subscribes a connection for userID and registers it in the
// presence roster. The caller must defer close.
func (s *Server) openStream(r *http.Request, userID, transport string) (*stream, error) {
	id, err := idgen.Subscription()
	if err != nil {
		return nil, err
	}
	st := &stream{
		id:     id,
		userID: userID,
		queue:  make(chan *model.Notification, streamQueueSize),
	}

	s.Presence.Connect(presence.Conn{
		ID:         id,
		UserID:     userID,
		Transport:  transport,
		RemoteAddr: r.RemoteAddr,
	})
	s.streams.Subscribe(notify.Subscription{
		ID:     id,
		UserID: userID,
		Deliver: func(n *model.Notification) error {
			select {
			case st.queue <- n:
				s.Presence.RecordDelivery(id, false)
				return nil
			default:
				s.Presence.RecordDelivery(id, true)
				return errQueueFull
			}
		},
	})
	st.close = func() {
		s.streams.Unsubscribe(id)
		s.Presence.Disconnect(id)
	}

	s.logger.Info("stream opened", "stream_id", id, "user_id", userID, "transport", transport)
	return st, nil
}
