package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/laurel/internal/model"
)

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/me/notifications/ws" + query
}

func TestNotificationSocket_Delivers(t *testing.T) {
	srv, poller := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.NewHTTPHandler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?access_token="+userToken(t, "u1")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	waitFor(t, "socket subscription", func() bool { return poller.Subscribers() == 1 })

	poller.Fanout(sampleNotification())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.Notification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != 42 || got.UserID != "u1" || got.Type != model.NotificationBadge {
		t.Errorf("unexpected notification %+v", got)
	}
	if roster := srv.Presence.Roster(""); len(roster) != 1 || roster[0].Transport != "ws" {
		t.Errorf("unexpected roster %+v", roster)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitFor(t, "unsubscribe on close", func() bool {
		return poller.Subscribers() == 0 && srv.Presence.Count() == 0
	})
}

func TestNotificationSocket_Unauthorized(t *testing.T) {
	srv, poller := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.NewHTTPHandler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?access_token=bogus"), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
	resp.Body.Close()
	if n := poller.Subscribers(); n != 0 {
		t.Errorf("rejected socket left %d subscriptions", n)
	}
}
