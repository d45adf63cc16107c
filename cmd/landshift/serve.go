/*
serve.go - read API server command

PURPOSE:
  Runs the HTTP server over an existing database. The server only reads:
  all writes (seeding, ensemble builds, view refreshes) go through the
  other subcommands so the single-writer assumption holds.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/landshift/transition-engine/api"
)

var flagPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		handler := api.NewHandler(store, logger, metrics)
		router := api.NewRouter(handler, promReg)

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", flagPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting",
				zap.Int("port", flagPort),
				zap.String("db", flagDB))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-quit:
		}

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 8080, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}
