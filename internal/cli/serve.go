package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/server"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the vwo-pulse HTTP server.

The server provides:
  - Dashboard for running, paused and draft experiments
  - JSON API at /api/experiments with per-status caching
  - Looker CSV/ZIP upload at /api/looker/upload
  - Health check and Prometheus metrics

Example:
  vwop serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open override store: %w", err)
	}
	defer s.Close()

	svc := newService(client, s)
	c := cache.New(bucketLoader(svc), cache.TTLs{
		vwo.StatusRunning: cfg.Cache.RunningTTL,
		vwo.StatusDraft:   cfg.Cache.DraftTTL,
		vwo.StatusPaused:  cfg.Cache.PausedTTL,
	}, cache.WithServeStale(cfg.Cache.ServeStale))

	listenPort := cfg.Server.Port
	if port != 0 {
		listenPort = port
	}

	srv := server.New(c, s, server.Options{
		Port:         listenPort,
		TokenFile:    tokenFilePath(),
		APIRateLimit: cfg.Server.APIRateLimit,
		Types:        cfg.VWO.Types,
	})

	ctx, stop := signalContext()
	defer stop()
	return srv.Start(ctx)
}

// bucketLoader adapts a fetch cycle to the cache.
func bucketLoader(svc *experiments.Service) cache.Loader {
	return func(ctx context.Context, b cache.Bucket) ([]experiments.Experiment, error) {
		return svc.Load(ctx, b.Filter())
	}
}
