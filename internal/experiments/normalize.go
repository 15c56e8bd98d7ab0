package experiments

import (
	"math"
	"strconv"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// Reasons a campaign detail is dropped from results.
const (
	ReasonNoPrimaryGoal    = "no_primary_goal"
	ReasonNoAggregatedData = "no_aggregated_data"
)

const day = 24 * time.Hour

// Normalize maps one campaign detail, plus an optional imported override,
// to an Experiment. It reports false when the campaign has no goal or the
// selected goal carries no aggregated data.
func Normalize(c *vwo.Campaign, override *store.ExperimentOverride, now time.Time) (*Experiment, bool) {
	exp, reason := normalize(c, override, now)
	return exp, reason == ""
}

func normalize(c *vwo.Campaign, override *store.ExperimentOverride, now time.Time) (*Experiment, string) {
	goal := c.PrimaryGoal()
	if goal == nil {
		return nil, ReasonNoPrimaryGoal
	}
	if goal.AggregatedData == nil {
		return nil, ReasonNoAggregatedData
	}

	started := time.Unix(c.CreatedOn, 0).UTC()
	days := DaysRunning(started, now)

	exp := &Experiment{
		ID:          c.ID,
		Name:        c.Name,
		Type:        c.Type,
		Status:      c.Status,
		StartedAt:   started,
		DaysRunning: days,
		Variations:  make([]VariationMetrics, 0, len(c.Variations)),
		PrimaryGoal: goal.Name,
		GoalType:    goal.Type,
	}
	if exp.PrimaryGoal == "" {
		exp.PrimaryGoal = DefaultGoalName
	}
	if exp.GoalType == "" {
		exp.GoalType = DefaultGoalType
	}
	if goal.DecisionStats != nil {
		exp.MinimumDetectableEffect = goal.DecisionStats.MinimumDetectableEffect
	}

	for _, v := range c.Variations {
		stats, ok := goal.AggregatedData[strconv.FormatInt(v.ID, 10)]
		if !ok {
			continue
		}

		visitors := stats.VisitorCount
		conversions := stats.ConversionCount
		revenue := stats.TotalRevenue

		if o, ok := override.Lookup(v.ID, v.Name); ok && !o.IsZero() {
			exp.Overridden = true
			if o.Visitors != nil {
				visitors = *o.Visitors
			}
			if o.Conversions != nil {
				conversions = *o.Conversions
			}
			if o.Revenue != nil {
				revenue = *o.Revenue
			}
		}

		exp.TotalVisitors += visitors
		exp.Variations = append(exp.Variations, Metrics(v.ID, v.Name, v.IsControl, visitors, conversions, revenue))
	}

	exp.DailyVisitors = int64(math.Round(float64(exp.TotalVisitors) / float64(days)))
	return exp, ""
}

// Metrics derives the rounded rate fields for one variation.
func Metrics(id int64, name string, isControl bool, visitors, conversions int64, revenue float64) VariationMetrics {
	var cr, rpv float64
	if visitors > 0 {
		cr = float64(conversions) / float64(visitors) * 100
		rpv = revenue / float64(visitors)
	}
	return VariationMetrics{
		ID:               id,
		Name:             name,
		IsControl:        isControl,
		Visitors:         visitors,
		Conversions:      conversions,
		Revenue:          round(revenue, 2),
		ConversionRate:   round(cr, 2),
		RPV:              round(rpv, 2),
		OrdersPerVisitor: round(float64(conversions)/float64(max(visitors, 1)), 4),
	}
}

// DaysRunning is the whole number of days since started, never below 1.
func DaysRunning(started, now time.Time) int {
	days := int(math.Round(float64(now.Sub(started)) / float64(day)))
	return max(1, days)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
