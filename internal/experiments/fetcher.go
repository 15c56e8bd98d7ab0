package experiments

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 2 * time.Second
	DefaultCooldown   = 5 * time.Second
)

// Failure reasons in addition to the normalizer's.
const (
	ReasonRateLimited = "rate_limited"
	ReasonCircuitOpen = "circuit_open"
	ReasonHTTPError   = "http_error"
	ReasonRequest     = "request_failed"
)

// CampaignGetter fetches one campaign detail. *vwo.Client implements it.
type CampaignGetter interface {
	GetCampaign(ctx context.Context, id int64) (*vwo.Campaign, error)
}

// ItemResult is the outcome for one campaign id. Exactly one of Experiment
// and Reason is set.
type ItemResult struct {
	ID         int64
	Experiment *Experiment
	Err        error
	Reason     string
}

func (r ItemResult) OK() bool { return r.Experiment != nil }

// Report holds one result per requested id, in request order.
type Report struct {
	Items []ItemResult
	// RateLimited counts items that got HTTP 429.
	RateLimited int
}

// Experiments returns the usable experiments in request order.
func (r *Report) Experiments() []Experiment {
	out := make([]Experiment, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Experiment != nil {
			out = append(out, *item.Experiment)
		}
	}
	return out
}

func (r *Report) Failures() []ItemResult {
	var out []ItemResult
	for _, item := range r.Items {
		if !item.OK() {
			out = append(out, item)
		}
	}
	return out
}

// Fetcher retrieves campaign details in fixed-size batches. Items in a
// batch run concurrently; batches run one after another with a pause in
// between.
type Fetcher struct {
	getter    CampaignGetter
	batchSize int
	delay     time.Duration
	cooldown  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

type FetcherOption func(*Fetcher)

func WithBatchSize(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func WithBatchDelay(d time.Duration) FetcherOption { return func(f *Fetcher) { f.delay = d } }

// WithCooldown sets the pause used after a batch that hit HTTP 429.
func WithCooldown(d time.Duration) FetcherOption { return func(f *Fetcher) { f.cooldown = d } }

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.sleep = sleep }
}

func WithNow(now func() time.Time) FetcherOption { return func(f *Fetcher) { f.now = now } }

func NewFetcher(getter CampaignGetter, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		getter:    getter,
		batchSize: DefaultBatchSize,
		delay:     DefaultBatchDelay,
		cooldown:  DefaultCooldown,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and normalizes every id. A failing item never fails the
// call; only ctx cancellation does.
func (f *Fetcher) Fetch(ctx context.Context, ids []int64, overlay store.Overlay) (*Report, error) {
	log := logging.WithComponent("fetcher")
	report := &Report{Items: make([]ItemResult, len(ids))}
	now := f.now()

	limitedLast := false
	for start := 0; start < len(ids); start += f.batchSize {
		if start > 0 {
			pause := f.delay
			if limitedLast {
				pause = f.cooldown
			}
			if err := f.sleep(ctx, pause); err != nil {
				return nil, err
			}
		}

		end := min(start+f.batchSize, len(ids))

		// workers never return errors; the group only joins them
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				report.Items[i] = f.fetchOne(ctx, ids[i], overlay, now)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		limited := 0
		for _, item := range report.Items[start:end] {
			if item.Reason == ReasonRateLimited {
				limited++
			}
		}
		report.RateLimited += limited
		limitedLast = limited > 0
		if limitedLast {
			log.Warn().Int("rate_limited", limited).Dur("cooldown", f.cooldown).Msg("rate limited, cooling down")
		}

		log.Info().Int("processed", end).Int("total", len(ids)).Msg("detail batch complete")
	}

	return report, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, id int64, overlay store.Overlay, now time.Time) ItemResult {
	c, err := f.getter.GetCampaign(ctx, id)
	if err != nil {
		reason := failureReason(err)
		metrics.DetailFetches.WithLabelValues("failed").Inc()
		metrics.DetailFetchFailures.WithLabelValues(reason).Inc()
		logging.Warn().Err(err).Int64("campaign_id", id).Str("reason", reason).Msg("campaign detail failed")
		return ItemResult{ID: id, Err: err, Reason: reason}
	}

	exp, reason := normalize(c, overlay.For(id), now)
	if reason != "" {
		metrics.DetailFetches.WithLabelValues("failed").Inc()
		metrics.DetailFetchFailures.WithLabelValues(reason).Inc()
		logging.Debug().Int64("campaign_id", id).Str("reason", reason).Msg("campaign not usable")
		return ItemResult{ID: id, Reason: reason}
	}

	metrics.DetailFetches.WithLabelValues("ok").Inc()
	return ItemResult{ID: id, Experiment: exp}
}

func failureReason(err error) string {
	var apiErr *vwo.APIError
	switch {
	case vwo.IsRateLimited(err):
		return ReasonRateLimited
	case vwo.IsCircuitOpen(err):
		return ReasonCircuitOpen
	case errors.As(err, &apiErr):
		return ReasonHTTPError
	default:
		return ReasonRequest
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
