package server

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/store/storetest"
)

const (
	testSecret     = "test-secret"
	testAdminToken = "admin-token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer returns a Server whose streams are fed by a real poller over
// an in-memory store. Tests push rows with poller.Fanout.
func newTestServer(t *testing.T, opts Options) (*Server, *notify.Poller) {
	t.Helper()
	poller := notify.NewPoller(storetest.New(), notify.PollerConfig{}, discardLogger())
	opts.Streams = poller
	if opts.JWTSecret == "" {
		opts.JWTSecret = testSecret
	}
	opts.Logger = discardLogger()
	return New(opts), poller
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	return signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
