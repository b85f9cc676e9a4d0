package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/contest"
	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/model"
)

var aggregateCmd = &cobra.Command{
	Use:     "aggregate [contest-id...]",
	Short:   "Rank ended contests and grant rank badges",
	Long:    "With no arguments every ended, unranked contest is aggregated. Contests that already have results are left untouched.",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid contest id %q", a)
			}
			ids = append(ids, id)
		}

		ctx := context.Background()
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

		agg := contest.NewAggregator(rt.store, engine.New(rt.store, publisher, rt.logger), publisher, nil, rt.logger)
		if len(ids) == 0 {
			return agg.Run(ctx)
		}

		all := make(map[int64][]model.ContestResult, len(ids))
		open := make(map[int64]bool)
		for _, id := range ids {
			results, err := agg.Aggregate(ctx, id)
			if errors.Is(err, contest.ErrContestOpen) {
				open[id] = true
				continue
			}
			if err != nil {
				return err
			}
			all[id] = results
		}

		if jsonOutput {
			return printJSON(all)
		}
		for _, id := range ids {
			results := all[id]
			if open[id] {
				fmt.Printf("Contest %d: still open, not ranked\n", id)
				continue
			}
			if len(results) == 0 {
				fmt.Printf("Contest %d: no new results\n", id)
				continue
			}
			fmt.Printf("Contest %d:\n", id)
			for _, r := range results {
				fmt.Printf("  #%d  post %d  by %s  (%d likes)\n", r.Rank, r.ContentID, r.UserID, r.LikeCount)
			}
		}
		return nil
	},
}
