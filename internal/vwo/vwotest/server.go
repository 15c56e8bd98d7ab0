// Package vwotest provides an in-memory fake of the VWO campaign API for tests.
package vwotest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

const (
	AccountID = "894940"
	Token     = "test-token"
)

// Server serves /accounts/{account}/campaigns and
// /accounts/{account}/campaigns/{id} from Campaigns, plus /settings.js.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	campaigns []vwo.Campaign
	// TotalOverride, when non-zero, replaces the reported totalCount.
	TotalOverride int
	failDetail    map[int64]int
	failList      int
	settingsBody  string

	listOffsets []int
	detailIDs   []int64
}

// NewServer starts a fake API seeded with campaigns. It is closed when the
// test ends.
func NewServer(t testing.TB, campaigns ...vwo.Campaign) *Server {
	t.Helper()

	s := &Server{
		campaigns:  campaigns,
		failDetail: map[int64]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/{account}/campaigns", s.handleList)
	mux.HandleFunc("GET /accounts/{account}/campaigns/{id}", s.handleDetail)
	mux.HandleFunc("GET /settings.js", s.handleSettings)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Client returns a vwo.Client pointed at the fake, with the breaker off.
func (s *Server) Client(opts ...vwo.Option) *vwo.Client {
	base := []vwo.Option{
		vwo.WithBaseURL(s.URL),
		vwo.WithSettingsURL(s.URL + "/settings.js"),
		vwo.WithBreaker(0, 0),
	}
	return vwo.New(AccountID, Token, append(base, opts...)...)
}

// FailDetail makes the detail endpoint for id answer with status.
func (s *Server) FailDetail(id int64, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDetail[id] = status
}

// FailList makes the list endpoint answer with status.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = status
}

func (s *Server) SetCampaigns(campaigns ...vwo.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = campaigns
}

func (s *Server) SetSettingsBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settingsBody = body
}

// ListOffsets returns the offsets requested from the list endpoint.
func (s *Server) ListOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.listOffsets...)
}

// DetailIDs returns the campaign ids requested from the detail endpoint.
func (s *Server) DetailIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.detailIDs...)
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("account") != AccountID || r.Header.Get("token") != Token {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.mu.Lock()
	s.listOffsets = append(s.listOffsets, offset)
	failList := s.failList
	all := s.campaigns
	total := len(all)
	if s.TotalOverride != 0 {
		total = s.TotalOverride
	}
	s.mu.Unlock()

	if failList != 0 {
		http.Error(w, http.StatusText(failList), failList)
		return
	}

	page := []vwo.Campaign{}
	if offset < len(all) {
		end := offset + limit
		if limit <= 0 || end > len(all) {
			end = len(all)
		}
		for _, c := range all[offset:end] {
			summary := c
			summary.Goals = nil
			page = append(page, summary)
		}
	}

	writeJSON(w, map[string]any{
		"_data": map[string]any{
			"partialCollection": page,
			"totalCount":        total,
		},
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.detailIDs = append(s.detailIDs, id)
	status := s.failDetail[id]
	var found *vwo.Campaign
	for i := range s.campaigns {
		if s.campaigns[i].ID == id {
			c := s.campaigns[i]
			found = &c
			break
		}
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if found == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"_data": found})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := s.settingsBody
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Campaign builds a running A/B campaign with a control and one variation,
// a primary revenue goal, and the given per-variation stats (control first).
func Campaign(id int64, name string, createdOn time.Time, control, variant vwo.VariationStats) vwo.Campaign {
	return vwo.Campaign{
		ID:        id,
		Name:      name,
		Status:    vwo.StatusRunning,
		Type:      vwo.TypeAB,
		CreatedOn: createdOn.Unix(),
		Variations: []vwo.Variation{
			{ID: 1, Name: "Control", IsControl: true},
			{ID: 2, Name: "Variation 1"},
		},
		Goals: []vwo.Goal{{
			ID:        1,
			Name:      "Total Orders Revenue",
			Type:      "revenue",
			IsPrimary: true,
			AggregatedData: map[string]vwo.VariationStats{
				"1": control,
				"2": variant,
			},
			DecisionStats: &vwo.DecisionStats{MinimumDetectableEffect: 5},
		}},
	}
}
