package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/dashboard"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/format"
	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/stats"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// Dashboard template data structures
type layoutData struct {
	Title   string
	Content template.HTML
}

type tabItem struct {
	Status string
	Label  string
	Active bool
}

type listData struct {
	Tabs        []tabItem
	Status      string
	Experiments []experimentListItem
	Cached      bool
	Stale       bool
	LastUpdate  string
	Error       string
}

type experimentListItem struct {
	ID            int64
	Name          string
	Type          string
	DaysRunning   int
	TotalVisitors int64
	DailyVisitors int64
	ControlRate   string
	BestLift      string
	Confidence    string
	Confident     bool
	EndDate       string
	Imported      bool
}

type detailData struct {
	Experiment        experiments.Experiment
	StartedAt         string
	Variations        []detailVariation
	Confident         bool
	ConfidencePercent string
	LeadingName       string
	EndDate           stats.EndDateEstimate
	EndDateLabel      string
}

type detailVariation struct {
	ID         int64
	Name       string
	IsControl  bool
	Leading    bool
	Visitors   int64
	Orders     int64
	Revenue    string
	Rate       string
	CI         string
	RPV        string
	Lift       string
	RPVLift    string
	Confidence string
}

var dashboardTabs = []tabItem{
	{Status: vwo.StatusRunning, Label: "Running"},
	{Status: vwo.StatusPaused, Label: "Paused"},
	{Status: vwo.StatusDraft, Label: "Drafts"},
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	bucket, err := s.bucketFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := listData{Status: bucket.Status}
	for _, tab := range dashboardTabs {
		tab.Active = tab.Status == bucket.Status
		data.Tabs = append(data.Tabs, tab)
	}

	res, err := s.cache.Get(r.Context(), bucket)
	if err != nil {
		logging.Error().Err(err).Str("status", bucket.Status).Msg("dashboard: failed to load experiments")
		data.Error = err.Error()
		s.renderDashboard(w, "Experiments", "list.html", data)
		return
	}

	now := time.Now()
	data.Cached = res.Cached
	data.Stale = res.Stale
	data.LastUpdate = res.LastUpdate.Local().Format("Jan 2, 15:04")
	data.Experiments = make([]experimentListItem, len(res.Experiments))
	for i := range res.Experiments {
		data.Experiments[i] = listItem(&res.Experiments[i], now)
	}

	s.renderDashboard(w, "Experiments", "list.html", data)
}

func listItem(exp *experiments.Experiment, now time.Time) experimentListItem {
	result := stats.Analyze(exp)
	item := experimentListItem{
		ID:            exp.ID,
		Name:          exp.Name,
		Type:          exp.Type,
		DaysRunning:   exp.DaysRunning,
		TotalVisitors: exp.TotalVisitors,
		DailyVisitors: exp.DailyVisitors,
		ControlRate:   "-",
		BestLift:      "-",
		Confidence:    "-",
		Confident:     result.Confident,
		EndDate:       stats.EstimateEndDate(exp, now).Label(),
		Imported:      exp.Overridden,
	}

	if result.Control < 0 {
		return item
	}
	item.ControlRate = formatPercentage(result.Variations[result.Control].Rate * 100)

	best := -1
	for i, v := range result.Variations {
		if i != result.Control && (best < 0 || v.Lift > result.Variations[best].Lift) {
			best = i
		}
	}
	if best >= 0 {
		item.BestLift = formatLift(result.Variations[best].Lift)
		item.Confidence = formatPercentage(result.ConfidenceLevel * 100)
	}
	return item
}

func (s *Server) handleDashboardExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	exp, err := s.findExperiment(r, id)
	if err != nil {
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		http.NotFound(w, r)
		return
	}

	now := time.Now()
	result := stats.Analyze(exp)
	estimate := stats.EstimateEndDate(exp, now)

	variations := make([]detailVariation, len(result.Variations))
	for i, v := range result.Variations {
		src := exp.Variations[i]
		dv := detailVariation{
			ID:         src.ID,
			Name:       v.Name,
			IsControl:  v.IsControl,
			Leading:    i == result.Leading,
			Visitors:   v.Visitors,
			Orders:     v.Conversions,
			Revenue:    fmt.Sprintf("%.2f", src.Revenue),
			Rate:       formatPercentage(v.Rate * 100),
			CI:         fmt.Sprintf("%.2f%% - %.2f%%", v.CILower*100, v.CIUpper*100),
			RPV:        fmt.Sprintf("%.2f", v.RPV),
			Lift:       "-",
			RPVLift:    "-",
			Confidence: "-",
		}
		if !v.IsControl {
			dv.Lift = formatLift(v.Lift)
			dv.RPVLift = formatLift(v.RPVLift)
			dv.Confidence = formatPercentage(v.Confidence * 100)
		}
		variations[i] = dv
	}

	data := detailData{
		Experiment:        *exp,
		StartedAt:         exp.StartedAt.Format("Jan 2, 2006"),
		Variations:        variations,
		Confident:         result.Confident,
		ConfidencePercent: formatPercentage(result.ConfidenceLevel * 100),
		EndDate:           estimate,
		EndDateLabel:      estimate.Label(),
	}
	if result.Leading >= 0 && result.Leading < len(result.Variations) {
		data.LeadingName = result.Variations[result.Leading].Name
	}

	s.renderDashboard(w, exp.Name, "detail.html", data)
}

// findExperiment looks the id up in every status bucket, cached data first.
func (s *Server) findExperiment(r *http.Request, id int64) (*experiments.Experiment, error) {
	var lastErr error
	for _, tab := range dashboardTabs {
		res, err := s.cache.Get(r.Context(), cache.NewBucket(tab.Status, s.opts.Types))
		if err != nil {
			lastErr = err
			continue
		}
		for i := range res.Experiments {
			if res.Experiments[i].ID == id {
				return &res.Experiments[i], nil
			}
		}
	}
	return nil, lastErr
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	css, err := dashboard.Assets.ReadFile("assets/style.css")
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(css)
}

var templateFuncs = template.FuncMap{
	"number": format.Number,
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, contentTemplate string, data any) {
	contentTmpl, err := template.New(contentTemplate).Funcs(templateFuncs).
		ParseFS(dashboard.Templates, "templates/"+contentTemplate)
	if err != nil {
		http.Error(w, "Failed to parse template", http.StatusInternalServerError)
		return
	}

	var contentBuf bytes.Buffer
	if err := contentTmpl.Execute(&contentBuf, data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render template: %v", err), http.StatusInternalServerError)
		return
	}

	layoutTmpl, err := template.ParseFS(dashboard.Templates, "templates/layout.html")
	if err != nil {
		http.Error(w, "Failed to parse layout", http.StatusInternalServerError)
		return
	}

	var page bytes.Buffer
	if err := layoutTmpl.Execute(&page, layoutData{
		Title:   title,
		Content: template.HTML(contentBuf.String()),
	}); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = page.WriteTo(w)
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}

func formatLift(p float64) string {
	return fmt.Sprintf("%+.1f%%", p)
}
