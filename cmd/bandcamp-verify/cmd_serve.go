package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/bandcamp-verificator/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serveFlags struct {
	host string
	port int
}

// serveCmd runs the HTTP service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP service",
	Long: `Serves the JSON API and the websocket batch stream until SIGINT or SIGTERM.

Example:
  bandcamp-verify serve --host 0.0.0.0 --port 5000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "Listen host (default from config, 127.0.0.1)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "Listen port (default from config, 5000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveFlags.host != "" {
		settings.Server.Host = serveFlags.host
	}
	if serveFlags.port != 0 {
		settings.Server.Port = serveFlags.port
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(settings, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
