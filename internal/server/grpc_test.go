package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGRPCHealth(t *testing.T) {
	hs := NewHealthServer()
	srv := NewGRPCServer(hs, discardLogger())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(lis) //nolint:errcheck
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := CheckHealth(ctx, lis.Addr().String())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if got != "not_serving" {
		t.Errorf("before SetServing: %q, want not_serving", got)
	}

	SetServing(hs, true)
	got, err = CheckHealth(ctx, lis.Addr().String())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if got != "serving" {
		t.Errorf("after SetServing: %q, want serving", got)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(discardLogger())
	panicky := func(context.Context, any) (any, error) { panic("kaboom") }

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, panicky)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	interceptor := LoggingInterceptor(discardLogger())
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: healthCheckMethod},
		func(context.Context, any) (any, error) { return "ok", nil })
	if err != nil || resp != "ok" {
		t.Fatalf("got (%v, %v), want (ok, nil)", resp, err)
	}
}
