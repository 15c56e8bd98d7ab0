package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/config"
	"github.com/headline-goat/vwo-pulse/internal/experiments"
	"github.com/headline-goat/vwo-pulse/internal/importer"
	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type HealthResponse struct {
	Status        string `json:"status"`
	Overrides     int    `json:"overrides"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type ExperimentsResponse struct {
	Experiments []experiments.Experiment `json:"experiments"`
	Cached      bool                     `json:"cached"`
	Stale       bool                     `json:"stale,omitempty"`
	Status      string                   `json:"status"`
	LastUpdate  string                   `json:"lastUpdate"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	if s.overrides != nil {
		overlay, err := s.overrides.Snapshot(r.Context())
		if err != nil {
			logging.Error().Err(err).Msg("health: override store unavailable")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", UptimeSeconds: resp.UptimeSeconds})
			return
		}
		resp.Overrides = len(overlay)
	}

	writeJSON(w, http.StatusOK, resp)
}

// bucketFromRequest reads ?status= and ?types=.
func (s *Server) bucketFromRequest(r *http.Request) (cache.Bucket, error) {
	status, ok := vwo.ParseStatus(r.URL.Query().Get("status"))
	if !ok {
		return cache.Bucket{}, fmt.Errorf("invalid status %q (want RUNNING, DRAFT or PAUSED)", r.URL.Query().Get("status"))
	}
	types := config.SplitList(r.URL.Query().Get("types"))
	if len(types) == 0 {
		types = s.opts.Types
	}
	return cache.NewBucket(status, types), nil
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	bucket, err := s.bucketFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cache.Get(r.Context(), bucket)
	if err != nil {
		logging.Error().Err(err).Str("request_id", RequestID(r.Context())).Str("status", bucket.Status).
			Msg("failed to load experiments")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch experiments: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ExperimentsResponse{
		Experiments: res.Experiments,
		Cached:      res.Cached,
		Stale:       res.Stale,
		Status:      bucket.Status,
		LastUpdate:  res.LastUpdate.UTC().Format(isoMillis),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	status := ""
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := vwo.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", raw))
			return
		}
		status = parsed
	}

	n := s.cache.Invalidate(status)
	logging.Info().Str("status", status).Int("buckets", n).Msg("experiment cache cleared")
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Cache cleared"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		writeError(w, http.StatusServiceUnavailable, "Override store not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	experimentID := r.FormValue("experimentId")
	if experimentID == "" {
		writeError(w, http.StatusBadRequest, "experimentId is required")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	override, err := importer.Import(r.Context(), s.overrides, experimentID, header.Filename, data)
	switch {
	case errors.Is(err, importer.ErrNoVariationColumn), errors.Is(err, importer.ErrNoRows):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.Error().Err(err).Str("experiment_id", experimentID).Msg("upload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// imported counters must show up on the next read
	s.cache.Invalidate("")

	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: fmt.Sprintf("Looker data processed successfully (%d variations)", len(override.Variations)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
