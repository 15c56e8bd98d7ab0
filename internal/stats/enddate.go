package stats

import (
	"math"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
)

// Estimate statuses.
const (
	EstimateOK       = "ok"
	EstimateNeedData = "need_data" // control has no conversions yet
	EstimateNoMDE    = "no_mde"
)

// noTrafficDays stands in for "never" when the experiment gets no visitors.
const noTrafficDays = 9999

// SampleSize is the per-variation sample needed to detect a relative
// change of mde (a fraction, 0.05 for 5%) on a baseline rate p:
// 16·p(1−p)/(p·mde)².
func SampleSize(p, mde float64) float64 {
	if p == 0 || mde == 0 {
		return 0
	}
	delta := p * mde
	return 16 * p * (1 - p) / (delta * delta)
}

// EndDateEstimate projects when an experiment reaches its sample size.
type EndDateEstimate struct {
	ExperimentID  int64
	Name          string
	DailyVisitors int64
	ControlRate   float64 // 0-1
	MDEPercent    float64
	// RequiredSample is the total across all variations.
	RequiredSample    int64
	RemainingVisitors int64
	DaysRemaining     float64
	EndDate           time.Time
	Status            string
}

// Label renders the end date column: a date, "Need Data" or "N/A".
func (e EndDateEstimate) Label() string {
	switch e.Status {
	case EstimateOK:
		return e.EndDate.Format(time.DateOnly)
	case EstimateNeedData:
		return "Need Data"
	default:
		return "N/A"
	}
}

// EstimateEndDate uses the control's conversion rate and the goal's MDE.
func EstimateEndDate(exp *experiments.Experiment, now time.Time) EndDateEstimate {
	est := EndDateEstimate{
		ExperimentID:  exp.ID,
		Name:          exp.Name,
		DailyVisitors: exp.DailyVisitors,
		MDEPercent:    exp.MinimumDetectableEffect,
	}

	if control := exp.Control(); control != nil && control.Visitors > 0 {
		est.ControlRate = float64(control.Conversions) / float64(control.Visitors)
	}

	switch {
	case est.ControlRate == 0:
		est.Status = EstimateNeedData
		return est
	case est.MDEPercent <= 0:
		est.Status = EstimateNoMDE
		return est
	}

	perVariation := SampleSize(est.ControlRate, est.MDEPercent/100)
	total := perVariation * float64(len(exp.Variations))
	est.RequiredSample = int64(math.Round(total))

	remaining := math.Max(0, total-float64(exp.TotalVisitors))
	est.RemainingVisitors = int64(math.Ceil(remaining))

	est.DaysRemaining = noTrafficDays
	if exp.DailyVisitors > 0 {
		est.DaysRemaining = remaining / float64(exp.DailyVisitors)
	}
	est.EndDate = now.Add(time.Duration(est.DaysRemaining * float64(24*time.Hour))).UTC()
	est.Status = EstimateOK
	return est
}
