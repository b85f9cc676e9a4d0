package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/server"
)

func defaultHealthAddr() string {
	if s := os.Getenv("LAUREL_GRPC_ADDR"); s != "" {
		if strings.HasPrefix(s, ":") {
			return "localhost" + s
		}
		return s
	}
	return "localhost:9090"
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running laurel server",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		status, err := server.CheckHealth(ctx, addr)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != "serving" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("addr", defaultHealthAddr(), "gRPC server address")
	healthCmd.Flags().Duration("timeout", 5*time.Second, "probe timeout")
}
