package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autopunch/internal/core"
	"autopunch/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const toolCount = 5

// MCPServer exposes the daemon's targets and run history as MCP tools.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	logger    *slog.Logger
	version   string
	now       func() time.Time
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(store *store.Store, scheduler *core.Scheduler, logger *slog.Logger, version string) *MCPServer {
	return &MCPServer{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		version:   version,
		now:       time.Now,
	}
}

// Run serves the tools over stdio until stdin closes.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"autopunch",
		s.version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("punch_list_targets",
		mcp.WithDescription("List the configured check-in/check-out targets with their next fire times"),
	), s.handleListTargets)

	mcpServer.AddTool(mcp.NewTool("punch_run_now",
		mcp.WithDescription("Start a punch run for a target immediately"),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Target name, e.g. checkin"),
		),
	), s.handleRunNow)

	mcpServer.AddTool(mcp.NewTool("punch_list_runs",
		mcp.WithDescription("Show recent punch runs, newest first"),
		mcp.WithString("target",
			mcp.Description("Only show runs for this target"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of runs to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListRuns)

	mcpServer.AddTool(mcp.NewTool("punch_get_run_log",
		mcp.WithDescription("Read the captured output of a run"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID"),
		),
		mcp.WithNumber("tail",
			mcp.Description("Return only the last N lines, default all"),
			mcp.Min(0),
		),
	), s.handleGetRunLog)

	mcpServer.AddTool(mcp.NewTool("punch_preview_target",
		mcp.WithDescription("Preview upcoming fire times for a configured target or a schedule string such as checkin=09:00@1-5"),
		mcp.WithString("target",
			mcp.Description("Configured target name"),
		),
		mcp.WithString("schedule",
			mcp.Description("Schedule string to validate instead of a configured target"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handlePreviewTarget)

	s.logger.Info("MCP tools registered", "count", toolCount)
}

func (s *MCPServer) handleListTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets := s.scheduler.Targets()
	if len(targets) == 0 {
		return mcp.NewToolResultText("No targets configured"), nil
	}
	now := s.now().In(s.scheduler.Location())

	var b strings.Builder
	fmt.Fprintf(&b, "%d targets (%s):\n\n", len(targets), s.scheduler.Location())
	for _, t := range targets {
		state := "idle"
		if s.scheduler.IsRunning(t.Name) {
			state = "running"
		}
		fmt.Fprintf(&b, "%s  %s  weekdays=%s  [%s]\n", t.Name, t.Clock(), weekdaysLabel(t), state)
		if next := t.NextOccurrences(now, 1); len(next) == 1 {
			fmt.Fprintf(&b, "  next: %s\n", formatTime(&next[0]))
		}
		if last, err := s.store.LastRun(ctx, t.Name); err == nil && last != nil {
			fmt.Fprintf(&b, "  last: %s %s\n", statusToIcon(last.Status), formatTime(&last.CreatedAt))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRunNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "target", "")
	run, err := s.scheduler.RunNow(ctx, name)
	switch {
	case errors.Is(err, core.ErrUnknownTarget):
		return mcp.NewToolResultError(fmt.Sprintf("unknown target: %s", name)), nil
	case errors.Is(err, core.ErrTargetRunning):
		return mcp.NewToolResultError(fmt.Sprintf("target %s is already running", name)), nil
	case err != nil:
		s.logger.Error("run target", "target", name, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to start run: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Run started\nTarget: %s\nRun ID: %s", run.Target, run.ID)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := strings.ToLower(strings.TrimSpace(mcp.ParseString(request, "target", "")))
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	runs, err := s.store.ListRuns(ctx, target, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs recorded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d runs:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "[%s] %s %s (%s)\n", statusToIcon(r.Status), r.Target, r.ID, r.Trigger)
		fmt.Fprintf(&b, "    status: %s\n", r.Status)
		if r.StartedAt != nil {
			fmt.Fprintf(&b, "    started: %s\n", formatTime(r.StartedAt))
		}
		if r.EndedAt != nil {
			fmt.Fprintf(&b, "    ended: %s\n", formatTime(r.EndedAt))
		}
		if r.ExitCode != nil {
			fmt.Fprintf(&b, "    exit code: %d\n", *r.ExitCode)
		}
		if r.Error != nil {
			fmt.Fprintf(&b, "    error: %s\n", truncateString(*r.Error, 120))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetRunLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", runID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load run: %v", err)), nil
	}
	content, err := s.store.ReadRunLog(runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read log: %v", err)), nil
	}
	tail := int(mcp.ParseFloat64(request, "tail", 0))
	lines := store.TailLines(content, tail)
	if len(lines) == 0 {
		return mcp.NewToolResultText("(empty log)"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *MCPServer) handlePreviewTarget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "target", "")
	spec := mcp.ParseString(request, "schedule", "")
	count := int(mcp.ParseFloat64(request, "count", 5))
	if count <= 0 || count > 10 {
		count = 5
	}

	var targets []core.Target
	switch {
	case spec != "":
		parsed, err := core.ParseTargets(spec)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid schedule: %v", err)), nil
		}
		targets = parsed
	case name != "":
		t, ok := core.FindTarget(s.scheduler.Targets(), name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown target: %s", name)), nil
		}
		targets = []core.Target{t}
	default:
		return mcp.NewToolResultError("either target or schedule is required"), nil
	}

	loc := s.scheduler.Location()
	now := s.now().In(loc)
	var b strings.Builder
	fmt.Fprintf(&b, "Time zone: %s\n", loc)
	for _, t := range targets {
		fmt.Fprintf(&b, "\n%s (cron %s):\n", t.Name, t.CronSpec())
		for i, next := range t.NextOccurrences(now, count) {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, next.Format("2006-01-02 15:04 Mon"))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func weekdaysLabel(t core.Target) string {
	days := t.WeekdayList()
	if len(days) == 7 {
		return "daily"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func statusToIcon(status core.RunStatus) string {
	switch status {
	case core.RunStatusSucceeded:
		return "ok"
	case core.RunStatusFailed:
		return "FAIL"
	case core.RunStatusTimedOut:
		return "TIMEOUT"
	case core.RunStatusCanceled:
		return "canceled"
	case core.RunStatusSkipped:
		return "skipped"
	case core.RunStatusRunning:
		return "running"
	case core.RunStatusQueued:
		return "queued"
	default:
		return "?"
	}
}
