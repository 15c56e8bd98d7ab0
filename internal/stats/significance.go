// Package stats compares experiment variations against their control and
// projects how long an experiment needs to run.
package stats

import (
	"math"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
)

// Result is the statistical read-out for one experiment.
type Result struct {
	ExperimentID int64
	Variations   []VariationResult
	Control      int // index into Variations, -1 without variations
	// Leading is the variation with the highest conversion rate.
	Leading         int
	ConfidenceLevel float64 // leader vs control (or control vs best challenger), 0-1
	Confident       bool    // >= 95%
}

// VariationResult holds one variation's rates and its comparison with the
// control.
type VariationResult struct {
	Name        string
	IsControl   bool
	Visitors    int64
	Conversions int64
	Rate        float64 // 0-1
	CILower     float64
	CIUpper     float64
	RPV         float64
	// Lift is the relative change in conversion rate vs control, in
	// percent. Zero for the control and when the control has no conversions.
	Lift float64
	// RPVLift is the same for revenue per visitor.
	RPVLift float64
	// Confidence that this variation beats the control (0-1). 0.5 for the
	// control itself.
	Confidence float64
}

// SignificanceTest performs a two-proportion z-test.
// Returns confidence level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aViews, bConv, bViews int64) float64 {
	if aViews == 0 || bViews == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aViews)
	pB := float64(bConv) / float64(bViews)

	// pooled proportion under H0: pA == pB
	pooled := float64(aConv+bConv) / float64(aViews+bViews)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aViews) + 1/float64(bViews)))

	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// Analyze compares every variation of exp with its control.
func Analyze(exp *experiments.Experiment) *Result {
	res := &Result{
		ExperimentID: exp.ID,
		Variations:   make([]VariationResult, len(exp.Variations)),
		Control:      -1,
	}
	if len(exp.Variations) == 0 {
		return res
	}

	res.Control = 0
	for i, v := range exp.Variations {
		if v.IsControl {
			res.Control = i
			break
		}
	}
	control := exp.Variations[res.Control]
	controlRate := rate(control.Conversions, control.Visitors)
	controlRPV := rpv(control.Revenue, control.Visitors)

	bestRate := -1.0
	for i, v := range exp.Variations {
		r := rate(v.Conversions, v.Visitors)
		lower, upper := WilsonInterval(v.Conversions, v.Visitors, 0.95)

		vr := VariationResult{
			Name:        v.Name,
			IsControl:   i == res.Control,
			Visitors:    v.Visitors,
			Conversions: v.Conversions,
			Rate:        r,
			CILower:     lower,
			CIUpper:     upper,
			RPV:         rpv(v.Revenue, v.Visitors),
			Confidence:  0.5,
		}
		if i != res.Control {
			vr.Lift = relativeChange(r, controlRate)
			vr.RPVLift = relativeChange(vr.RPV, controlRPV)
			vr.Confidence = SignificanceTest(v.Conversions, v.Visitors, control.Conversions, control.Visitors)
		}
		res.Variations[i] = vr

		if r > bestRate {
			bestRate = r
			res.Leading = i
		}
	}

	if len(res.Variations) >= 2 {
		if res.Leading != res.Control {
			res.ConfidenceLevel = res.Variations[res.Leading].Confidence
		} else {
			// control leads: how sure are we it beats the best challenger
			best := -1
			for i, v := range res.Variations {
				if i != res.Control && (best < 0 || v.Rate > res.Variations[best].Rate) {
					best = i
				}
			}
			b := res.Variations[best]
			res.ConfidenceLevel = SignificanceTest(control.Conversions, control.Visitors, b.Conversions, b.Visitors)
		}
	}
	res.Confident = res.ConfidenceLevel >= 0.95

	return res
}

func rate(conversions, visitors int64) float64 {
	if visitors == 0 {
		return 0
	}
	return float64(conversions) / float64(visitors)
}

func rpv(revenue float64, visitors int64) float64 {
	if visitors == 0 {
		return 0
	}
	return revenue / float64(visitors)
}

func relativeChange(v, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (v - base) / base * 100
}
