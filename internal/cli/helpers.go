package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/headline-goat/vwo-pulse/internal/config"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// withStore opens the override store, executes the function, and handles cleanup.
func withStore(fn func(store.Store) error) error {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open override store: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// newClient builds an API client from the loaded config. It fails early
// when credentials are missing.
func newClient(opts ...vwo.Option) (*vwo.Client, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	return vwo.NewFromConfig(cfg.VWO, opts...), nil
}

// newService wires the batched fetch cycle the dashboard uses.
func newService(client *vwo.Client, overrides store.Store) *experiments.Service {
	fetcher := experiments.NewFetcher(client,
		experiments.WithBatchSize(cfg.VWO.BatchSize),
		experiments.WithBatchDelay(cfg.VWO.BatchDelay),
		experiments.WithCooldown(cfg.VWO.RateLimitCooldown),
	)
	return experiments.NewService(client, fetcher, overrides)
}

// newSequentialFetcher fetches one campaign at a time at one request per
// second, cooling down after a 429.
func newSequentialFetcher() (*experiments.Fetcher, error) {
	client, err := newClient(vwo.WithRateLimit(rate.Every(time.Second), 1))
	if err != nil {
		return nil, err
	}
	return experiments.NewFetcher(client,
		experiments.WithBatchSize(1),
		experiments.WithBatchDelay(0),
		experiments.WithCooldown(cfg.VWO.RateLimitCooldown),
	), nil
}

// filterFromFlags validates --status and --types.
func filterFromFlags(status, types string) (vwo.Filter, error) {
	parsed, ok := vwo.ParseStatus(status)
	if !ok {
		return vwo.Filter{}, fmt.Errorf("invalid status %q: must be RUNNING, DRAFT or PAUSED", status)
	}
	f := vwo.Filter{Status: parsed, Types: config.SplitList(types)}
	if len(f.Types) == 0 {
		f.Types = cfg.VWO.Types
	}
	return f, nil
}

// parseIDs converts campaign id arguments.
func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one campaign id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid campaign id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadOverlay reads the override snapshot; a missing store yields none.
func loadOverlay(ctx context.Context) (store.Overlay, error) {
	var overlay store.Overlay
	err := withStore(func(s store.Store) error {
		var err error
		overlay, err = s.Snapshot(ctx)
		return err
	})
	return overlay, err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// tokenFilePath returns the configured token file, or one next to the store.
func tokenFilePath() string {
	if cfg.Server.TokenFile != "" {
		return cfg.Server.TokenFile
	}
	return filepath.Join(filepath.Dir(cfg.Store.Path), ".vwop-token")
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
