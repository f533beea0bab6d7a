package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"autopunch/internal/core"

	"github.com/go-chi/chi/v5"
)

type targetResponse struct {
	Name     string       `json:"name"`
	Time     string       `json:"time"`
	Weekdays []string     `json:"weekdays"`
	Cron     string       `json:"cron"`
	NextRuns []string     `json:"next_runs"`
	Running  bool         `json:"running"`
	LastRun  *runResponse `json:"last_run,omitempty"`
}

func (s *Server) targetToResponse(r *http.Request, t core.Target) targetResponse {
	loc := s.scheduler.Location()
	next := t.NextOccurrences(time.Now().In(loc), 3)
	resp := targetResponse{
		Name:     t.Name,
		Time:     t.Clock(),
		Weekdays: weekdayNames(t.WeekdayList()),
		Cron:     t.CronSpec(),
		NextRuns: formatTimes(next),
		Running:  s.scheduler.IsRunning(t.Name),
	}
	last, err := s.store.LastRun(r.Context(), t.Name)
	if err != nil {
		s.logger.Warn("load last run", "target", t.Name, "err", err)
	} else if last != nil {
		lr := runToResponse(last)
		resp.LastRun = &lr
	}
	return resp
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets := s.scheduler.Targets()
	out := make([]targetResponse, 0, len(targets))
	for _, t := range targets {
		out = append(out, s.targetToResponse(r, t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := core.FindTarget(s.scheduler.Targets(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "target not found")
		return
	}
	writeJSON(w, http.StatusOK, s.targetToResponse(r, t))
}

func (s *Server) handleRunTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	run, err := s.scheduler.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, core.ErrUnknownTarget):
		writeError(w, http.StatusNotFound, "not_found", "target not found")
		return
	case errors.Is(err, core.ErrTargetRunning):
		writeError(w, http.StatusConflict, "already_running", "target is already running")
		return
	case err != nil:
		s.logger.Error("run target", "target", name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, runToResponse(run))
}

type schedulePreviewRequest struct {
	Schedule string `json:"schedule"`
	Now      string `json:"now,omitempty"`
	Count    int    `json:"count,omitempty"`
}

type schedulePreview struct {
	Name     string   `json:"name"`
	Cron     string   `json:"cron"`
	NextRuns []string `json:"next_runs"`
}

type schedulePreviewResponse struct {
	Valid   bool              `json:"valid"`
	Targets []schedulePreview `json:"targets,omitempty"`
	Message string            `json:"message,omitempty"`
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Message: "invalid JSON payload"})
		return
	}
	spec := strings.TrimSpace(req.Schedule)
	if spec == "" {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Message: "schedule is required"})
		return
	}
	targets, err := core.ParseTargets(spec)
	if err != nil {
		writeJSON(w, http.StatusOK, schedulePreviewResponse{Message: err.Error()})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}
	loc := s.scheduler.Location()
	base := time.Now().In(loc)
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed.In(loc)
		}
	}

	resp := schedulePreviewResponse{Valid: true}
	for _, t := range targets {
		resp.Targets = append(resp.Targets, schedulePreview{
			Name:     t.Name,
			Cron:     t.CronSpec(),
			NextRuns: formatTimes(t.NextOccurrences(base, count)),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func formatTimes(times []time.Time) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.Format(time.RFC3339))
	}
	return out
}

func weekdayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(d.String()[:3]))
	}
	return out
}
