package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/config"
	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/events"
	"github.com/alfredjeanlab/laurel/internal/model"
)

var dispatchCmd = &cobra.Command{
	Use:     "dispatch --user <id> --type <event-type>",
	Short:   "Route one activity event through the badge engine",
	GroupID: "ops",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		eventType, _ := cmd.Flags().GetString("type")
		increment, _ := cmd.Flags().GetInt64("increment")
		contestID, _ := cmd.Flags().GetInt64("contest")
		viaBus, _ := cmd.Flags().GetBool("publish")

		ev := model.ActivityEvent{
			UserID:    userID,
			Type:      model.EventType(eventType),
			Increment: increment,
		}
		if cmd.Flags().Changed("contest") {
			ev.ContestID = &contestID
		}
		if err := model.ValidateActivityEvent(&ev); err != nil {
			return err
		}

		ctx := context.Background()
		if viaBus {
			return publishActivity(ctx, ev)
		}

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		publisher, err := rt.publisher()
		if err != nil {
			return err
		}
		defer publisher.Close()

		if err := engine.New(rt.store, publisher, rt.logger).Dispatch(ctx, ev); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{"status": "dispatched", "event": ev})
		}
		fmt.Printf("Dispatched %s for %s (category %s)\n", ev.Type, ev.UserID, ev.Type.Category())
		return nil
	},
}

// publishActivity hands ev to the running server over NATS instead of
// dispatching it here.
func publishActivity(ctx context.Context, ev model.ActivityEvent) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.NATSURL == "" {
		return fmt.Errorf("--publish requires LAUREL_NATS_URL")
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.PublishActivity(ctx, ev); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]any{"status": "published", "subject": events.ActivityTopic(ev.Type), "event": ev})
	}
	fmt.Printf("Published %s for %s on %s\n", ev.Type, ev.UserID, events.ActivityTopic(ev.Type))
	return nil
}

func init() {
	dispatchCmd.Flags().String("user", "", "user id (required)")
	dispatchCmd.Flags().String("type", "", "event type, e.g. cooked, fridge, goal (required)")
	dispatchCmd.Flags().Int64("increment", 1, "progress increment")
	dispatchCmd.Flags().Int64("contest", 0, "contest id attached to any award")
	dispatchCmd.Flags().Bool("publish", false, "publish the event to NATS for the server to dispatch")
	_ = dispatchCmd.MarkFlagRequired("user")
	_ = dispatchCmd.MarkFlagRequired("type")
}
