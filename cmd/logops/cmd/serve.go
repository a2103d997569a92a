package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/logops/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat and operations server",
	Long: `Serve starts the HTTP server exposing the chat pipeline, the
confirmation endpoint, region management and job-log queries.

Example:
  logops serve --config logops.yaml
  logops serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override listen host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override listen port")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveHost != "" {
		a.cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		a.cfg.Server.Port = servePort
	}

	// Connect the configured regions up front so the first chat message
	// does not pay the connection cost. Failures are non-fatal: a region
	// can be connected later through the API.
	for _, name := range a.regions.AvailableRegions(ctx) {
		if err := a.regions.Connect(ctx, name); err != nil {
			a.log.WithRegion(name).Warnf("could not connect at startup: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.log.Warn("Received shutdown signal")
		cancel()
		a.Close()
		os.Exit(0)
	}()

	srv := server.New(a.cfg.Server, a.orch, a.regions, a.jobs, a.log)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
