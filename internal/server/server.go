// Package server exposes laurel over HTTP and gRPC: authenticated
// notification streams (SSE and WebSocket), operator admin routes, and the
// gRPC health service.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/presence"
	"github.com/alfredjeanlab/laurel/internal/scheduler"
)

// Dispatcher routes an activity event into the badge engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.ActivityEvent) error
}

// Streams is the notification source stream connections subscribe to.
type Streams interface {
	Subscribe(sub notify.Subscription)
	Unsubscribe(id string)
}

// Jobs is the scheduler surface the admin routes drive.
type Jobs interface {
	Trigger(ctx context.Context, name string) error
	Stats() []scheduler.Stats
}

// Options wires a Server. Dispatcher and Jobs may be nil, in which case
// their admin routes answer 503.
type Options struct {
	Streams    Streams
	Dispatcher Dispatcher
	Jobs       Jobs
	Presence   *presence.Tracker
	JWTSecret  string
	AdminToken string // empty disables the admin routes
	Logger     *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	streams    Streams
	dispatcher Dispatcher
	jobs       Jobs
	Presence   *presence.Tracker
	auth       *Authenticator
	adminToken string
	logger     *slog.Logger
}

func New(opts Options) *Server {
	tracker := opts.Presence
	if tracker == nil {
		tracker = presence.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		streams:    opts.Streams,
		dispatcher: opts.Dispatcher,
		jobs:       opts.Jobs,
		Presence:   tracker,
		auth:       NewAuthenticator(opts.JWTSecret),
		adminToken: opts.AdminToken,
		logger:     logger.With("component", "http"),
	}
}
