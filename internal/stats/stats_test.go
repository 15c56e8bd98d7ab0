package stats_test

import (
	"math"
	"testing"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/stats"
)

func TestSignificanceTest_ClearWinner(t *testing.T) {
	// 10% vs 5% on 1000 visitors each
	confidence := stats.SignificanceTest(100, 1000, 50, 1000)

	if confidence < 0.95 {
		t.Errorf("expected high confidence (>0.95), got %f", confidence)
	}
}

func TestSignificanceTest_NoSignificance(t *testing.T) {
	confidence := stats.SignificanceTest(50, 1000, 50, 1000)

	if math.Abs(confidence-0.5) > 1e-9 {
		t.Errorf("expected 0.5 for equal rates, got %f", confidence)
	}
}

func TestSignificanceTest_SmallSample(t *testing.T) {
	confidence := stats.SignificanceTest(5, 20, 2, 20)

	if confidence > 0.95 {
		t.Errorf("expected lower confidence for small sample, got %f", confidence)
	}
}

func TestSignificanceTest_ZeroVisitors(t *testing.T) {
	if c := stats.SignificanceTest(0, 0, 0, 0); c != 0.5 {
		t.Errorf("expected 0.5 for zero visitors, got %f", c)
	}
	if c := stats.SignificanceTest(10, 100, 0, 0); c != 0.5 {
		t.Errorf("expected 0.5 when only one side has data, got %f", c)
	}
}

func TestSignificanceTest_NoVariance(t *testing.T) {
	if c := stats.SignificanceTest(0, 100, 0, 100); c != 0.5 {
		t.Errorf("expected 0.5, got %f", c)
	}
	if c := stats.SignificanceTest(100, 100, 100, 100); c != 0.5 {
		t.Errorf("expected 0.5, got %f", c)
	}
}

func TestWilsonInterval(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 100, 0.95)
	if lower > 0.5 || upper < 0.5 {
		t.Errorf("interval [%f, %f] should contain 0.5", lower, upper)
	}
	if math.Abs(lower-0.4038) > 0.001 || math.Abs(upper-0.5962) > 0.001 {
		t.Errorf("got [%f, %f], want about [0.4038, 0.5962]", lower, upper)
	}

	lower, upper = stats.WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected [0, 0] for no trials, got [%f, %f]", lower, upper)
	}

	lower, _ = stats.WilsonInterval(0, 10, 0.95)
	if lower != 0 {
		t.Errorf("lower bound should clamp to 0, got %f", lower)
	}
	_, upper = stats.WilsonInterval(10, 10, 0.95)
	if upper != 1 {
		t.Errorf("upper bound should clamp to 1, got %f", upper)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		want       float64
	}{
		{0.99, 2.576},
		{0.95, 1.96},
		{0.90, 1.645},
	}
	for _, tt := range tests {
		if got := stats.ZScore(tt.confidence); got != tt.want {
			t.Errorf("ZScore(%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}

	// 0.5 two-sided is about 0.674
	if got := stats.ZScore(0.5); math.Abs(got-0.674) > 0.01 {
		t.Errorf("ZScore(0.5) = %v, want about 0.674", got)
	}
}

func experiment() *experiments.Experiment {
	return &experiments.Experiment{
		ID:            7,
		Name:          "Hero",
		DailyVisitors: 100,
		TotalVisitors: 2050,
		Variations: []experiments.VariationMetrics{
			{Name: "Variation 1", Visitors: 1000, Conversions: 120, Revenue: 2400},
			{Name: "Control", IsControl: true, Visitors: 1000, Conversions: 100, Revenue: 2000},
		},
		MinimumDetectableEffect: 10,
	}
}

func TestAnalyze(t *testing.T) {
	res := stats.Analyze(experiment())

	if res.Control != 1 {
		t.Fatalf("got control %d, want 1", res.Control)
	}
	if res.Leading != 0 {
		t.Errorf("got leading %d, want 0", res.Leading)
	}

	v := res.Variations[0]
	if math.Abs(v.Lift-20) > 1e-9 {
		t.Errorf("got lift %f, want 20", v.Lift)
	}
	if math.Abs(v.RPVLift-20) > 1e-9 {
		t.Errorf("got rpv lift %f, want 20", v.RPVLift)
	}
	if v.Confidence <= 0.5 || v.Confidence != res.ConfidenceLevel {
		t.Errorf("unexpected confidence %f (level %f)", v.Confidence, res.ConfidenceLevel)
	}
	if res.Confident {
		t.Errorf("12%% vs 10%% on 1000 visitors should not reach 95%%, got %f", res.ConfidenceLevel)
	}

	c := res.Variations[1]
	if !c.IsControl || c.Lift != 0 || c.Confidence != 0.5 {
		t.Errorf("unexpected control result: %+v", c)
	}
}

func TestAnalyze_ControlLeads(t *testing.T) {
	exp := experiment()
	exp.Variations[0].Conversions = 50

	res := stats.Analyze(exp)
	if res.Leading != res.Control {
		t.Fatalf("expected control to lead, got %d", res.Leading)
	}
	if !res.Confident {
		t.Errorf("10%% vs 5%% should be confident, got %f", res.ConfidenceLevel)
	}
}

func TestAnalyze_NoVariations(t *testing.T) {
	res := stats.Analyze(&experiments.Experiment{})
	if res.Control != -1 || len(res.Variations) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSampleSize(t *testing.T) {
	// p=0.1, mde=10%: 16*0.09/(0.01^2) = 14400
	if got := stats.SampleSize(0.1, 0.1); math.Abs(got-14400) > 1e-6 {
		t.Errorf("got %f, want 14400", got)
	}
	if got := stats.SampleSize(0, 0.1); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestEstimateEndDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	est := stats.EstimateEndDate(experiment(), now)
	if est.Status != stats.EstimateOK {
		t.Fatalf("got status %s, want ok", est.Status)
	}
	// 14400 per variation * 2 - 2050 seen = 26750 remaining at 100/day
	if est.RequiredSample != 28800 {
		t.Errorf("got required %d, want 28800", est.RequiredSample)
	}
	if est.RemainingVisitors != 26750 {
		t.Errorf("got remaining %d, want 26750", est.RemainingVisitors)
	}
	if got := est.Label(); got != "2026-02-23" {
		t.Errorf("got end date %s, want 2026-02-23", got)
	}
}

func TestEstimateEndDate_NeedData(t *testing.T) {
	exp := experiment()
	exp.Variations[1].Conversions = 0

	est := stats.EstimateEndDate(exp, time.Now())
	if est.Status != stats.EstimateNeedData || est.Label() != "Need Data" {
		t.Errorf("got %s / %s, want need_data", est.Status, est.Label())
	}
}

func TestEstimateEndDate_NoTraffic(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	exp := experiment()
	exp.DailyVisitors = 0

	est := stats.EstimateEndDate(exp, now)
	if est.DaysRemaining != 9999 {
		t.Errorf("got %f days, want 9999", est.DaysRemaining)
	}

	exp = experiment()
	exp.MinimumDetectableEffect = 0
	if est := stats.EstimateEndDate(exp, now); est.Label() != "N/A" {
		t.Errorf("got %s, want N/A without MDE", est.Label())
	}
}
