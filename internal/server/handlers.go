package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dygy/strudel-samples/internal/catalog"
	"github.com/dygy/strudel-samples/internal/loader"
	"github.com/dygy/strudel-samples/internal/pitch"
)

const maxBodySize = 1 << 20 // 1MB of pattern code is plenty

// BankInfo describes a cached bank
type BankInfo struct {
	Name    string              `json:"name"`
	Samples int                 `json:"samples"`
	Pitch   *pitch.BankMetadata `json:"pitch,omitempty"`
}

// PitchResponse is the answer to a pitch lookup
type PitchResponse struct {
	Bank   string  `json:"bank"`
	Target float64 `json:"target"`
	Note   string  `json:"note"`
	Index  int     `json:"n"`
	Speed  float64 `json:"speed"`
}

type preloadRequest struct {
	Code string `json:"code"`
}

type samplesRequest struct {
	Source  string   `json:"source"`
	BaseURL string   `json:"baseUrl,omitempty"`
	Banks   []string `json:"banks,omitempty"`
}

type jobAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Job    string `json:"job"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"root":    s.preloader.Cache().Root(),
		"catalog": s.preloader.Catalog().Loaded(),
		"engine":  s.preloader.Notifier().Enabled(),
	})
}

// handleBanks lists cached banks with their pitch metadata
func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request) {
	c := s.preloader.Cache()
	names, err := c.Banks()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list banks: %v", err)
		return
	}

	banks := make([]BankInfo, 0, len(names))
	for _, name := range names {
		files, _ := c.Files(name)
		info := BankInfo{Name: name, Samples: len(files)}
		if meta, ok := s.preloader.Registry().Get(name); ok {
			info.Pitch = &meta
		}
		banks = append(banks, info)
	}
	s.writeJSON(w, http.StatusOK, banks)
}

// handleClassify reports what a sound name resolves to
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	name := catalog.StripIndex(chi.URLParam(r, "name"))
	if err := s.preloader.Catalog().EnsureLoaded(r.Context()); err != nil {
		s.logger.Warn("catalog unavailable", "error", err)
	}
	s.writeJSON(w, http.StatusOK, s.preloader.Catalog().Classify(name))
}

// handlePitch maps a note (name, MIDI number or "<freq>hz") to a sample
// index and playback speed
func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	bank := chi.URLParam(r, "bank")
	raw := chi.URLParam(r, "note")

	target, ok := parseTarget(raw)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "cannot parse note %q", raw)
		return
	}

	index, speed, ok := s.preloader.Registry().NearestSampleAndSpeed(bank, target)
	if !ok {
		s.writeError(w, http.StatusNotFound, "bank %s is not pitched", bank)
		return
	}
	s.writeJSON(w, http.StatusOK, PitchResponse{
		Bank:   bank,
		Target: target,
		Note:   pitch.NoteName(int(math.Round(target))),
		Index:  index,
		Speed:  speed,
	})
}

func parseTarget(raw string) (float64, bool) {
	lower := strings.ToLower(raw)
	if hz, ok := strings.CutSuffix(lower, "hz"); ok {
		f, err := strconv.ParseFloat(hz, 64)
		if err != nil || f <= 0 {
			return 0, false
		}
		return pitch.ResolveTargetMidi(pitch.Event{pitch.FieldFreq: f}), true
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, true
	}
	if n, ok := pitch.NoteToMidi(raw); ok {
		return float64(n), true
	}
	return 0, false
}

// handlePreload starts a background preload for pattern code. The body is
// either {"code": "..."} or the code itself as text.
func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	code := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req preloadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
			return
		}
		code = req.Code
	}
	if strings.TrimSpace(code) == "" {
		s.writeError(w, http.StatusBadRequest, "no pattern code given")
		return
	}

	job := s.jobs.Create(KindPreload)
	go s.jobs.Preload(s.baseCtx, job, code)
	s.accepted(w, job)
}

// handleSamples starts a background load of a sample source
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	job := s.jobs.Create(KindSamples)
	go s.jobs.Fetch(s.baseCtx, job, req.Source, loader.Options{
		BaseURL: req.BaseURL,
		Banks:   req.Banks,
	})
	s.accepted(w, job)
}

func (s *Server) accepted(w http.ResponseWriter, job *Job) {
	s.writeJSON(w, http.StatusAccepted, jobAccepted{
		ID:     job.ID,
		Status: "/status/" + job.ID,
		Job:    "/jobs/" + job.ID,
	})
}

// handleStatus streams job progress via SSE
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Send updates until the job closes its stream
	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-job.Updates:
			if !open {
				fmt.Fprintf(w, "event: done\n")
				fmt.Fprintf(w, "data: %s\n\n", job.View().Status)
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "event: progress\n")
			fmt.Fprintf(w, "data: %s\n\n", update)
			flusher.Flush()
		}
	}
}

// handleJob returns the job state and, once finished, its result
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job.View())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
