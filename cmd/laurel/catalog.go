package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/laurel/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Short:   "Manage badge definitions",
	GroupID: "ops",
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Insert or update badge definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		badges, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		n, err := catalog.Seed(ctx, rt.store, badges)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]int{"seeded": n})
		}
		fmt.Printf("Seeded %d badge(s) from %s\n", n, args[0])
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List badge definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		badges, err := catalog.List(ctx, rt.store, category)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(badges)
		}
		if len(badges) == 0 {
			fmt.Println("No badges.")
			return nil
		}
		return catalog.WriteTable(os.Stdout, badges)
	},
}

func init() {
	catalogListCmd.Flags().String("category", "", "only list badges in this category")
	catalogCmd.AddCommand(catalogSeedCmd)
	catalogCmd.AddCommand(catalogListCmd)
}
