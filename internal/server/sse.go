package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/presence"
)

// handleNotificationStream handles GET /v1/me/notifications/stream (SSE).
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	// Ensure response supports flushing (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	st, err := s.openStream(r, userID, presence.TransportSSE)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open stream")
		return
	}
	defer st.close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stream closed", "stream_id", st.id, "user_id", userID)
			return
		case n := <-st.queue:
			if err := writeSSENotification(w, n); err != nil {
				s.logger.Warn("sse write failed", "stream_id", st.id, "err", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSENotification writes one notification as an unnamed SSE frame so
// EventSource clients receive it through onmessage.
func writeSSENotification(w io.Writer, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %d: %w", n.ID, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", n.ID, data)
	return err
}
