/*
views.go - derived table commands

PURPOSE:
  Operator surface for the derived rollup tables:
    views build     drop and recreate tables from the facts
    views refresh   rewrite one scenario's rows in existing tables
    views export    write tables to parquet files
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landshift/transition-engine/landuse"
	"github.com/landshift/transition-engine/views"
)

var (
	flagLevel      string
	flagScenarioID int64
	flagExportDir  string
	flagNoSplit    bool
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Manage the derived per-level rollup tables",
}

var viewsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Drop and rebuild derived tables from the facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		manager := views.NewManager(store, views.WithLogger(logger), views.WithMetrics(metrics))

		if flagLevel != "" {
			level, err := landuse.ParseLevel(flagLevel)
			if err != nil {
				return err
			}
			return manager.Build(cmd.Context(), level)
		}
		return manager.BuildAll(cmd.Context())
	},
}

var viewsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rewrite one scenario's rows in the derived tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagScenarioID == 0 {
			return fmt.Errorf("--scenario-id is required")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		manager := views.NewManager(store, views.WithLogger(logger), views.WithMetrics(metrics))

		if flagLevel != "" {
			level, err := landuse.ParseLevel(flagLevel)
			if err != nil {
				return err
			}
			return manager.RefreshScenario(cmd.Context(), level, flagScenarioID)
		}
		return manager.RefreshScenarioAll(cmd.Context(), flagScenarioID)
	},
}

var viewsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export derived tables to parquet",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		manager := views.NewManager(store, views.WithLogger(logger), views.WithMetrics(metrics))

		opts := views.ExportOptions{
			Dir:         flagExportDir,
			PerScenario: !flagNoSplit,
		}
		if flagLevel != "" {
			level, err := landuse.ParseLevel(flagLevel)
			if err != nil {
				return err
			}
			opts.Levels = []landuse.Level{level}
		}
		files, err := manager.Export(cmd.Context(), opts)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	viewsCmd.PersistentFlags().StringVar(&flagLevel, "level", "",
		"Restrict to one aggregation level (national, region, subregion, state, county)")
	viewsRefreshCmd.Flags().Int64Var(&flagScenarioID, "scenario-id", 0, "Scenario to refresh")
	viewsExportCmd.Flags().StringVar(&flagExportDir, "dir", "export", "Output directory")
	viewsExportCmd.Flags().BoolVar(&flagNoSplit, "no-partition", false,
		"One file per level instead of one per scenario")
	viewsCmd.AddCommand(viewsBuildCmd, viewsRefreshCmd, viewsExportCmd)
	rootCmd.AddCommand(viewsCmd)
}
