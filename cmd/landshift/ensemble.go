/*
ensemble.go - ensemble build commands

PURPOSE:
  Builds the three families of ensemble scenarios:
    overall   one scenario averaging every non-ensemble scenario
    warming   one per (model, growth), averaging across warming pathways
    growth    one per (model, warming), averaging across growth pathways

  After a successful build, any derived tables that exist are refreshed
  for the new scenario so reads stay consistent without a full rebuild.

RECREATE:
  Rebuilding an existing ensemble scenario deletes it first and requires
  --force. Without --force a name collision is an error, which protects
  scheduled pipelines from silently rewriting data.
*/
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landshift/transition-engine/ensemble"
	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/views"
)

var flagForce bool

var ensembleCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Build ensemble scenarios by averaging across the matrix",
}

var ensembleOverallCmd = &cobra.Command{
	Use:   "overall",
	Short: "Average every non-ensemble scenario into one",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnsemble(cmd, func(scs []landuse.Scenario) []ensemble.Group {
			return []ensemble.Group{ensemble.Overall(scs)}
		})
	},
}

var ensembleWarmingCmd = &cobra.Command{
	Use:   "warming",
	Short: "Average across warming pathways, one scenario per model and growth pathway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnsemble(cmd, ensemble.AcrossWarming)
	},
}

var ensembleGrowthCmd = &cobra.Command{
	Use:   "growth",
	Short: "Average across growth pathways, one scenario per model and warming pathway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnsemble(cmd, ensemble.AcrossGrowth)
	},
}

func runEnsemble(cmd *cobra.Command, groupsOf func([]landuse.Scenario) []ensemble.Group) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	scenarios, err := store.ListScenarios(ctx)
	if err != nil {
		return err
	}

	computer := ensemble.New(store,
		ensemble.WithLogger(logger),
		ensemble.WithMetrics(metrics))
	manager := views.NewManager(store,
		views.WithLogger(logger),
		views.WithMetrics(metrics))

	for _, g := range groupsOf(scenarios) {
		id, err := computer.Build(ctx, g, flagForce)
		if err != nil {
			var exists *landuse.ScenarioExistsError
			if errors.As(err, &exists) {
				return fmt.Errorf("%w; rerun with --force to recreate", err)
			}
			return err
		}
		if id == 0 {
			continue
		}
		if err := manager.RefreshScenarioAll(ctx, id); err != nil {
			return fmt.Errorf("refresh derived tables for scenario %d: %w", id, err)
		}
	}
	return nil
}

func init() {
	ensembleCmd.PersistentFlags().BoolVar(&flagForce, "force", false,
		"Delete and rebuild an ensemble scenario that already exists")
	ensembleCmd.AddCommand(ensembleOverallCmd, ensembleWarmingCmd, ensembleGrowthCmd)
	rootCmd.AddCommand(ensembleCmd)
}
