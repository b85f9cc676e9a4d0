package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/archive"
	"github.com/alfredjeanlab/laurel/internal/contest"
	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/jobs"
	"github.com/alfredjeanlab/laurel/internal/notify"
	"github.com/alfredjeanlab/laurel/internal/presence"
	"github.com/alfredjeanlab/laurel/internal/reminder"
	"github.com/alfredjeanlab/laurel/internal/scheduler"
	"github.com/alfredjeanlab/laurel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the scheduler, notification poller and stream servers",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()
		cfg, logger, store := rt.cfg, rt.logger, rt.store

		if cfg.JWTSecret == "" {
			return errors.New("LAUREL_JWT_SECRET is required to serve notification streams")
		}

		publisher, err := rt.publisher()
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		eng := engine.New(store, publisher, logger)

		// Scheduled jobs.
		sched := scheduler.New(cfg.Workers, logger)
		deps := jobs.Deps{Store: store, Engine: eng, Logger: logger}
		for _, sj := range jobs.Standard(deps, cfg.CheckInterval, cfg.GoalInterval, cfg.PopularInterval, cfg.LikeThreshold) {
			if err := sched.Register(sj.Job, sj.Interval); err != nil {
				return err
			}
		}

		var archiver contest.Archiver
		if cfg.ArchiveEnabled() {
			dest, err := archive.NewS3Destination(ctx, cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewArchiver(dest, cfg.ArchiveS3Prefix)
				logger.Info("contest archive enabled", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
			}
		}
		if err := sched.Register(contest.NewAggregator(store, eng, publisher, archiver, logger), cfg.RankInterval); err != nil {
			return err
		}
		if err := sched.Register(reminder.New(store, logger), cfg.ReminderInterval); err != nil {
			return err
		}

		// Notification poller.
		poller := notify.NewPoller(store, notify.PollerConfig{
			Interval:     cfg.PollInterval,
			BatchSize:    cfg.PollBatch,
			QueryTimeout: cfg.PollTimeout,
		}, logger)

		// Event bus bridge and activity listener.
		var listenerDone chan struct{}
		if cfg.NATSURL != "" {
			poller.Subscribe(notify.BusSubscription(publisher))

			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create activity subscriber", "err", err)
			} else {
				listener := events.NewActivityListener(eng, logger)
				listenerDone = make(chan struct{})
				go func() {
					defer close(listenerDone)
					if err := listener.Run(ctx, sub); err != nil {
						logger.Error("activity listener error", "err", err)
					}
					sub.Close()
				}()
			}
		}

		// Transports.
		srv := server.New(server.Options{
			Streams:    poller,
			Dispatcher: eng,
			Jobs:       sched,
			Presence:   presence.New(),
			JWTSecret:  cfg.JWTSecret,
			AdminToken: cfg.AdminToken,
			Logger:     logger,
		})
		health := server.NewHealthServer()
		grpcServer := server.NewGRPCServer(health, logger)

		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
			}
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
			// Stream handlers end when the signal context is cancelled.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		sched.Start()
		poller.Start()
		server.SetServing(health, true)

		logger.Info("laurel started",
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
			"jobs", sched.Names(),
		)

		<-ctx.Done()
		logger.Info("received signal, shutting down")

		// Graceful shutdown.
		server.SetServing(health, false)
		if listenerDone != nil {
			<-listenerDone
			logger.Info("activity listener stopped")
		}

		sched.Stop()
		logger.Info("scheduler stopped")

		poller.Stop()
		logger.Info("notification poller stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		logger.Info("shutdown complete")
		return nil
	},
}
