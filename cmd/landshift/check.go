/*
check.go - data integrity and maintenance commands

PURPOSE:
  check      runs the read-only integrity scans for one scenario (or all)
             and prints a report; a dirty report sets a non-zero exit code
  optimize   runs ANALYZE, VACUUM, and the query planner refresh
*/
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landshift/transition-engine/landuse"
)

var checkScenarioID int64

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run data integrity scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		ctx := cmd.Context()

		var ids []int64
		if checkScenarioID != 0 {
			ids = []int64{checkScenarioID}
		} else {
			scenarios, err := store.ListScenarios(ctx)
			if err != nil {
				return err
			}
			for _, sc := range scenarios {
				ids = append(ids, sc.ID)
			}
		}

		dirty := 0
		for _, id := range ids {
			report, err := store.CheckIntegrity(ctx, id)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if !report.Clean() {
				dirty++
			}
		}
		if dirty > 0 {
			return fmt.Errorf("%d scenario(s) with integrity violations", dirty)
		}
		logger.Info("all scenarios clean", zap.Int("checked", len(ids)))
		return nil
	},
}

func printReport(cmd *cobra.Command, r *landuse.IntegrityReport) {
	out := cmd.OutOrStdout()
	if r.Clean() {
		fmt.Fprintf(out, "scenario %d: clean\n", r.ScenarioID)
		return
	}
	fmt.Fprintf(out, "scenario %d: %d violation(s)\n", r.ScenarioID, r.Total())
	for _, v := range r.NegativeAcres {
		fmt.Fprintf(out, "  negative acres: transition %d county %s %s %s->%s %.2f\n",
			v.TransitionID, v.FIPS, v.TimeStep, v.From, v.To, v.Acres)
	}
	for _, v := range r.DuplicateKeys {
		fmt.Fprintf(out, "  duplicate key: %s %q x%d\n", v.Table, v.Key, v.Count)
	}
	for _, v := range r.ContinuityBreaks {
		fmt.Fprintf(out, "  continuity break: county %s %d->%d delta %.2f acres\n",
			v.FIPS, v.StartYear, v.NextYear, v.Delta)
	}
	for _, fips := range r.UnmappedCounties {
		fmt.Fprintf(out, "  unmapped county: %s\n", fips)
	}
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "ANALYZE and VACUUM the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureIndexes(cmd.Context()); err != nil {
			return err
		}
		return store.Optimize(cmd.Context())
	},
}

func init() {
	checkCmd.Flags().Int64Var(&checkScenarioID, "scenario", 0, "Check a single scenario")
	rootCmd.AddCommand(checkCmd, optimizeCmd)
}
