/*
seed.go - demo dataset command

PURPOSE:
  Loads the deterministic demo dataset (region hierarchy, sample
  counties, the 20-scenario matrix, transition facts) into a fresh
  database, then builds indexes and all derived tables so the database
  is immediately queryable.
*/
package main

import (
	"github.com/spf13/cobra"

	"github.com/landshift/transition-engine/seed"
	"github.com/landshift/transition-engine/views"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo dataset into a fresh database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		ctx := cmd.Context()

		if err := seed.Load(ctx, store, logger); err != nil {
			return err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		manager := views.NewManager(store, views.WithLogger(logger), views.WithMetrics(metrics))
		return manager.BuildAll(ctx)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
