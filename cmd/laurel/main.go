package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/config"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/logging"
	"github.com/alfredjeanlab/laurel/internal/store/postgres"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "laurel <command>",
	Short:         "Badge progress engine and notification fanout",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)

	cobra.EnableCommandSorting = false

	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)

	// Operations
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what every store-backed command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *postgres.PostgresStore
}

// openRuntime loads config, builds the logger and connects to Postgres.
func openRuntime(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (rt *app) close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("error closing store", "err", err)
	}
}

// publisher returns a NATS publisher when LAUREL_NATS_URL is set and a
// no-op publisher otherwise.
func (rt *app) publisher() (events.Publisher, error) {
	if rt.cfg.NATSURL == "" {
		rt.logger.Info("events disabled (LAUREL_NATS_URL not set)")
		return &events.NoopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(rt.cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("events enabled", "nats_url", rt.cfg.NATSURL)
	return pub, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
