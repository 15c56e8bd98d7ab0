// Package experiments turns raw VWO campaign details into dashboard-ready
// experiments: the normalizer, the batched detail fetcher and the full
// list+fetch+normalize cycle.
package experiments

import "time"

const (
	DefaultGoalName = "Total Orders Revenue"
	DefaultGoalType = "revenue"
)

// Experiment is one normalized campaign. Values are never mutated after
// they leave Normalize.
type Experiment struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	Type          string             `json:"type"`
	Status        string             `json:"status"`
	StartedAt     time.Time          `json:"startedAt"`
	DaysRunning   int                `json:"daysRunning"`
	DailyVisitors int64              `json:"dailyVisitors"`
	TotalVisitors int64              `json:"totalVisitors"`
	Variations    []VariationMetrics `json:"variations"`
	PrimaryGoal   string             `json:"primaryGoal"`
	GoalType      string             `json:"goalType"`
	// MinimumDetectableEffect is the goal's configured MDE in percent, 0
	// when the API sent none.
	MinimumDetectableEffect float64 `json:"minimumDetectableEffect,omitempty"`
	// Overridden is set when imported CSV data replaced any counter.
	Overridden bool `json:"hasImportedData,omitempty"`
}

type VariationMetrics struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	IsControl        bool    `json:"isControl"`
	Visitors         int64   `json:"visitors"`
	Conversions      int64   `json:"orders"`
	Revenue          float64 `json:"revenue"`
	ConversionRate   float64 `json:"conversionRate"`
	RPV              float64 `json:"rpv"`
	OrdersPerVisitor float64 `json:"ordersPerVisitor"`
}

// Control returns the control variation, falling back to the first one.
func (e *Experiment) Control() *VariationMetrics {
	for i := range e.Variations {
		if e.Variations[i].IsControl {
			return &e.Variations[i]
		}
	}
	if len(e.Variations) > 0 {
		return &e.Variations[0]
	}
	return nil
}
