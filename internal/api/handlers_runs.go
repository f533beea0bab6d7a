package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"autopunch/internal/core"
	"autopunch/internal/store"

	"github.com/go-chi/chi/v5"
)

type runResponse struct {
	ID          string  `json:"id"`
	Target      string  `json:"target"`
	Trigger     string  `json:"trigger"`
	Status      string  `json:"status"`
	ScheduledAt string  `json:"scheduled_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	EndedAt     *string `json:"ended_at,omitempty"`
	ExitCode    *int    `json:"exit_code,omitempty"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := strings.ToLower(strings.TrimSpace(q.Get("target")))
	if target != "" {
		if _, ok := core.FindTarget(s.scheduler.Targets(), target); !ok {
			writeError(w, http.StatusNotFound, "not_found", "target not found")
			return
		}
	}
	limit := parseIntDefault(q.Get("limit"), 20)
	if limit > 200 {
		limit = 200
	}
	offset := parseIntDefault(q.Get("offset"), 0)

	runs, err := s.store.ListRuns(r.Context(), target, limit, offset)
	if err != nil {
		s.logger.Error("list runs", "target", target, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runToResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*core.Run, bool) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	tail := parseIntDefault(r.URL.Query().Get("tail"), 0)
	follow := r.URL.Query().Get("follow")
	if follow != "1" && !strings.EqualFold(follow, "true") {
		data, err := s.store.ReadRunLog(run.ID)
		if err != nil {
			s.logger.Error("read log", "run_id", run.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read log")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, line := range store.TailLines(data, tail) {
			_, _ = io.WriteString(w, line+"\n")
		}
		return
	}
	s.followRunLog(w, r, run, tail)
}

// followRunLog streams appended log output until the run finishes or the
// client goes away.
func (s *Server) followRunLog(w http.ResponseWriter, r *http.Request, run *core.Run, tail int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported", "streaming not supported")
		return
	}
	file, err := os.Open(s.store.RunLogPath(run.ID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "log not found")
		} else {
			s.logger.Error("open log", "run_id", run.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read log")
		}
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	data, err := io.ReadAll(file)
	if err != nil {
		return
	}
	for _, line := range store.TailLines(data, tail) {
		_, _ = io.WriteString(w, line+"\n")
	}
	flusher.Flush()

	offset := int64(len(data))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			pos, err := file.Seek(0, io.SeekEnd)
			if err != nil {
				return
			}
			if pos > offset {
				buf := make([]byte, pos-offset)
				if _, err := file.ReadAt(buf, offset); err == nil {
					_, _ = w.Write(buf)
					flusher.Flush()
				}
				offset = pos
			}
			if !run.Finished() {
				if refreshed, err := s.store.GetRun(r.Context(), run.ID); err == nil {
					run = refreshed
				}
			}
			if run.Finished() && pos == offset {
				return
			}
		}
	}
}

func runToResponse(run *core.Run) runResponse {
	var started, ended *string
	if run.StartedAt != nil {
		formatted := run.StartedAt.UTC().Format(time.RFC3339)
		started = &formatted
	}
	if run.EndedAt != nil {
		formatted := run.EndedAt.UTC().Format(time.RFC3339)
		ended = &formatted
	}
	return runResponse{
		ID:          run.ID,
		Target:      run.Target,
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		ScheduledAt: run.ScheduledAt.UTC().Format(time.RFC3339),
		StartedAt:   started,
		EndedAt:     ended,
		ExitCode:    run.ExitCode,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt.UTC().Format(time.RFC3339),
	}
}
