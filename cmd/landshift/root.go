/*
root.go - CLI root command and shared wiring

PURPOSE:
  Declares the root command, global flags, and the shared construction of
  the logger, metrics registry, and store that every subcommand uses.

COMMANDS:
  serve       Run the read API server
  seed        Load the demo dataset into a fresh database
  ensemble    Build ensemble scenarios (overall, warming, growth)
  views       Build, refresh, and export the derived rollup tables
  check       Run the data integrity scans
  optimize    ANALYZE and VACUUM the database

CONFIGURATION:
  Flags first, environment second. A .env file in the working directory
  is read at startup; flag values win over environment values. Variables:
    LANDSHIFT_DB         database path
    LANDSHIFT_THREADS    SQLite worker thread budget
    LANDSHIFT_CACHE_MB   SQLite page cache budget in MiB

SEE ALSO:
  - serve.go, ensemble.go, views.go, check.go
*/
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landshift/transition-engine/observability"
	"github.com/landshift/transition-engine/store/sqlite"
)

var (
	flagDB      string
	flagThreads int
	flagCacheMB int
	flagVerbose bool

	logger  *zap.Logger
	metrics *observability.Metrics
	promReg *prometheus.Registry
)

var rootCmd = &cobra.Command{
	Use:   "landshift",
	Short: "County land use transition rollups and scenario ensembles",
	Long: `landshift stores county-level land use transition projections and
serves their rollups: net change by geography, ensemble scenarios
averaged across climate models, and derived tables exported to parquet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine; a present but unreadable one is not.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		applyEnvDefaults(cmd)

		var err error
		if flagVerbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		promReg = prometheus.NewRegistry()
		metrics = observability.New(promReg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "landshift.db", "SQLite database path (:memory: for in-memory)")
	pf.IntVar(&flagThreads, "threads", 4, "SQLite worker thread budget")
	pf.IntVar(&flagCacheMB, "cache-mb", 256, "SQLite page cache budget in MiB")
	pf.BoolVar(&flagVerbose, "verbose", false, "Development logging (human-readable, debug level)")
}

// applyEnvDefaults backfills unset flags from the environment.
func applyEnvDefaults(cmd *cobra.Command) {
	pf := cmd.Root().PersistentFlags()
	if !pf.Changed("db") {
		if v := os.Getenv("LANDSHIFT_DB"); v != "" {
			flagDB = v
		}
	}
	if !pf.Changed("threads") {
		if v := os.Getenv("LANDSHIFT_THREADS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				flagThreads = n
			}
		}
	}
	if !pf.Changed("cache-mb") {
		if v := os.Getenv("LANDSHIFT_CACHE_MB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				flagCacheMB = n
			}
		}
	}
}

// openStore constructs the store with the global resource budget flags.
func openStore() (*sqlite.Store, error) {
	return sqlite.New(flagDB,
		sqlite.WithThreads(flagThreads),
		sqlite.WithCacheMB(flagCacheMB),
		sqlite.WithLogger(logger),
	)
}
