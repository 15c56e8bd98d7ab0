package experiments

import (
	"context"
	"fmt"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// Lister returns every campaign accepted by a filter. *vwo.Client
// implements it.
type Lister interface {
	ListCampaigns(ctx context.Context, filter vwo.Filter) ([]vwo.Campaign, error)
}

// Service runs full fetch cycles: list, fetch details, normalize with the
// override overlay.
type Service struct {
	lister    Lister
	fetcher   *Fetcher
	overrides store.Store
}

// NewService wires a cycle. overrides may be nil.
func NewService(lister Lister, fetcher *Fetcher, overrides store.Store) *Service {
	return &Service{lister: lister, fetcher: fetcher, overrides: overrides}
}

// Run executes one cycle and returns the per-item report. A listing
// failure fails the cycle; detail failures are recorded in the report.
func (s *Service) Run(ctx context.Context, filter vwo.Filter) (*Report, error) {
	start := time.Now()
	log := logging.WithComponent("cycle")

	// one snapshot per cycle so a concurrent import cannot change results midway
	var overlay store.Overlay
	if s.overrides != nil {
		var err error
		overlay, err = s.overrides.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read overrides: %w", err)
		}
	}

	campaigns, err := s.lister.ListCampaigns(ctx, filter)
	if err != nil {
		metrics.FetchCycleDuration.WithLabelValues(filter.Status).Observe(time.Since(start).Seconds())
		return nil, err
	}

	ids := make([]int64, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}

	report, err := s.fetcher.Fetch(ctx, ids, overlay)
	metrics.FetchCycleDuration.WithLabelValues(filter.Status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("status", filter.Status).
		Int("campaigns", len(ids)).
		Int("usable", len(report.Experiments())).
		Int("failed", len(report.Failures())).
		Dur("duration", time.Since(start)).
		Msg("fetch cycle complete")
	return report, nil
}

// Load runs a cycle and returns only the usable experiments.
func (s *Service) Load(ctx context.Context, filter vwo.Filter) ([]Experiment, error) {
	report, err := s.Run(ctx, filter)
	if err != nil {
		return nil, err
	}
	return report.Experiments(), nil
}
