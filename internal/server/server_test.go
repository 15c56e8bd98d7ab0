package server_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/server"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

var lastUpdate = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

type fakeCache struct {
	mu          sync.Mutex
	data        map[string][]experiments.Experiment
	err         error
	buckets     []cache.Bucket
	invalidated []string
}

func (f *fakeCache) Get(_ context.Context, b cache.Bucket) (cache.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, b)
	if f.err != nil {
		return cache.Result{}, f.err
	}
	return cache.Result{Experiments: f.data[b.Status], Cached: true, LastUpdate: lastUpdate}, nil
}

func (f *fakeCache) Invalidate(status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, status)
	return 1
}

func checkout() experiments.Experiment {
	return experiments.Experiment{
		ID:            42,
		Name:          "Checkout Button",
		Type:          vwo.TypeAB,
		Status:        vwo.StatusRunning,
		StartedAt:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DaysRunning:   10,
		DailyVisitors: 200,
		TotalVisitors: 2000,
		PrimaryGoal:   experiments.DefaultGoalName,
		GoalType:      experiments.DefaultGoalType,
		Variations: []experiments.VariationMetrics{
			experiments.Metrics(1, "Control", true, 1000, 50, 2500),
			experiments.Metrics(2, "Green Button", false, 1000, 70, 3600),
		},
		MinimumDetectableEffect: 5,
	}
}

func setupTestServer(t *testing.T) (*server.Server, *fakeCache, store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir() + "/overrides.json")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fc := &fakeCache{data: map[string][]experiments.Experiment{
		vwo.StatusRunning: {checkout()},
	}}
	srv := server.New(fc, st, server.Options{Token: "secret"})
	return srv, fc, st
}

func authed(req *http.Request, srv *server.Server) *http.Request {
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	return req
}

func TestHealth(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp server.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestExperimentsAPI_Unauthorized(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("expected JSON error, got %s", w.Header().Get("Content-Type"))
	}
}

func TestExperimentsAPI_DefaultsToRunning(t *testing.T) {
	srv, fc, _ := setupTestServer(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/experiments", nil), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp server.ExperimentsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != vwo.StatusRunning {
		t.Errorf("expected status RUNNING, got %s", resp.Status)
	}
	if !resp.Cached {
		t.Error("expected cached=true")
	}
	if resp.LastUpdate != "2026-03-01T12:30:00.000Z" {
		t.Errorf("unexpected lastUpdate %s", resp.LastUpdate)
	}
	if len(resp.Experiments) != 1 || resp.Experiments[0].Name != "Checkout Button" {
		t.Fatalf("unexpected experiments %+v", resp.Experiments)
	}
	if got := resp.Experiments[0].Variations[1].Conversions; got != 70 {
		t.Errorf("expected 70 orders, got %d", got)
	}

	if len(fc.buckets) != 1 {
		t.Fatalf("expected 1 cache read, got %d", len(fc.buckets))
	}
	if got := strings.Join(fc.buckets[0].Types, ","); got != "ab,multivariate,split_url" {
		t.Errorf("expected default types, got %s", got)
	}
}

func TestExperimentsAPI_StatusAndTypes(t *testing.T) {
	srv, fc, _ := setupTestServer(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/experiments?status=paused&types=split_url,ab", nil), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	b := fc.buckets[0]
	if b.Status != vwo.StatusPaused {
		t.Errorf("expected PAUSED bucket, got %s", b.Status)
	}
	if got := strings.Join(b.Types, ","); got != "ab,split_url" {
		t.Errorf("expected sorted types, got %s", got)
	}

	var resp server.ExperimentsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Experiments) != 0 {
		t.Errorf("expected no paused experiments, got %d", len(resp.Experiments))
	}
}

func TestExperimentsAPI_InvalidStatus(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/experiments?status=ARCHIVED", nil), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestExperimentsAPI_LoaderError(t *testing.T) {
	srv, fc, _ := setupTestServer(t)
	fc.err = errors.New("list campaigns: upstream returned 500")

	req := authed(httptest.NewRequest(http.MethodGet, "/api/experiments", nil), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp["error"], "upstream returned 500") {
		t.Errorf("expected upstream error in body, got %q", resp["error"])
	}
}

func TestRefresh(t *testing.T) {
	srv, fc, _ := setupTestServer(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/experiments/refresh?status=DRAFT", nil), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(fc.invalidated) != 1 || fc.invalidated[0] != vwo.StatusDraft {
		t.Errorf("expected DRAFT invalidated, got %v", fc.invalidated)
	}

	req = authed(httptest.NewRequest(http.MethodPost, "/api/experiments/refresh", nil), srv)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if fc.invalidated[1] != "" {
		t.Errorf("expected full invalidation, got %q", fc.invalidated[1])
	}
}

func uploadRequest(t *testing.T, experimentID, fileName, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if experimentID != "" {
		if err := mw.WriteField("experimentId", experimentID); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/looker/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_StoresOverrides(t *testing.T) {
	srv, fc, st := setupTestServer(t)

	csv := "Variation ID,Sessions,Orders,Revenue\n1,\"1,200\",60,$3000.50\n2,1180,75,4100\n"
	req := authed(uploadRequest(t, "42", "looker.csv", csv), srv)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	override, err := st.Get(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected stored override: %v", err)
	}
	v, ok := override.Lookup(1, "Control")
	if !ok || v.Visitors == nil || *v.Visitors != 1200 {
		t.Errorf("expected 1200 visitors for variation 1, got %+v", v)
	}
	if override.FileName != "looker.csv" {
		t.Errorf("expected file name recorded, got %s", override.FileName)
	}

	if len(fc.invalidated) != 1 || fc.invalidated[0] != "" {
		t.Errorf("expected cache cleared after upload, got %v", fc.invalidated)
	}
}

func TestUpload_MissingFields(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no file", uploadRequest(t, "42", "", "")},
		{"no experiment id", uploadRequest(t, "", "looker.csv", "Variation ID,Sessions\n1,10\n")},
		{"no variation column", uploadRequest(t, "42", "looker.csv", "Foo,Sessions\n1,10\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, authed(tt.req, srv))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestDashboard_Unauthorized(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestDashboard_ValidTokenSetsCookie(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard?token="+srv.Token()+"&status=PAUSED", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302 (redirect), got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard?status=PAUSED" {
		t.Errorf("expected token stripped from redirect, got %s", loc)
	}

	var tokenCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "vwop_token" {
			tokenCookie = c
		}
	}
	if tokenCookie == nil {
		t.Fatal("expected vwop_token cookie to be set")
	}
	if !tokenCookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
}

func TestDashboard_InvalidToken(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard?token=wrongtoken", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestDashboard_ListWithCookie(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "vwop_token", Value: srv.Token()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected HTML content type, got %s", ct)
	}

	body := w.Body.String()
	for _, want := range []string{"Checkout Button", "/dashboard/experiment/42", "2,000", "&#43;40.0%"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestDashboard_ListShowsLoadError(t *testing.T) {
	srv, fc, _ := setupTestServer(t)
	fc.err = errors.New("circuit breaker is open")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "vwop_token", Value: srv.Token()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "circuit breaker is open") {
		t.Error("expected error message on page")
	}
}

func TestDashboard_Logout(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard?logout=1", nil)
	req.AddCookie(&http.Cookie{Name: "vwop_token", Value: srv.Token()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected cookie to be cleared, got %+v", cookies)
	}
}

func TestDashboardExperiment_Detail(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/experiment/42", nil)
	req.AddCookie(&http.Cookie{Name: "vwop_token", Value: srv.Token()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", w.Code, body)
	}
	for _, want := range []string{"Checkout Button", "Green Button", "Control", "experimentId"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestDashboardExperiment_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	for _, path := range []string{"/dashboard/experiment/999", "/dashboard/experiment/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: "vwop_token", Value: srv.Token()})
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestStyles(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/assets/style.css", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/css") {
		t.Errorf("expected CSS content type, got %s", ct)
	}
}

func TestAPIRateLimit(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/overrides.json")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	srv := server.New(&fakeCache{}, st, server.Options{Token: "secret", APIRateLimit: 2})
	h := srv.Handler()

	codes := make([]int, 3)
	for i := range codes {
		req := authed(httptest.NewRequest(http.MethodGet, "/api/experiments", nil), srv)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 on third request, got %d", codes[2])
	}
}
