package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/laurel/internal/presence"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 2 * keepaliveInterval
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens travel in the URL or header, never in cookies, so cross-origin
	// pages cannot ride an ambient session.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleNotificationSocket handles GET /v1/me/notifications/ws. Each
// notification is sent as one JSON text message. Client messages are
// ignored; the read pump only watches for close.
func (s *Server) handleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}
	defer conn.Close()

	st, err := s.openStream(r, userID, presence.TransportWS)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to open stream"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer st.close()

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			s.logger.Info("stream closed", "stream_id", st.id, "user_id", userID)
			return
		case n := <-st.queue:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				s.logger.Warn("websocket write failed", "stream_id", st.id, "err", err)
				return
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// closes done when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "err", err)
			}
			return
		}
	}
}
