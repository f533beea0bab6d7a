package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"autopunch/internal/core"
	"autopunch/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
)

type instantExecutor struct{}

func (instantExecutor) Execute(context.Context, core.Target, *core.Run) error { return nil }

func newTestServer(t *testing.T) (*MCPServer, *store.Store, *core.Scheduler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), t.TempDir(), 10)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	targets, err := core.ParseTargets("checkin=09:00@1-5;checkout=18:00@1-5")
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	sched := core.NewScheduler(st, instantExecutor{}, targets, logger, time.UTC)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Wait(ctx)
	})
	s := NewMCPServer(st, sched, logger, "test")
	// Friday 2026-10-23 10:00 UTC.
	s.now = func() time.Time { return time.Date(2026, time.October, 23, 10, 0, 0, 0, time.UTC) }
	return s, st, sched
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return text.Text
}

func TestListTargetsTool(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	res, err := s.handleListTargets(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("tool error: %v", err)
	}
	text := resultText(t, res)
	for _, want := range []string{"2 targets", "checkin  09:00  weekdays=Mon,Tue,Wed,Thu,Fri  [idle]", "next: 2026-10-23 18:00:00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestRunNowAndHistoryTools(t *testing.T) {
	t.Parallel()
	s, st, sched := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleRunNow(ctx, call(map[string]any{"target": "checkout"}))
	if err != nil || res.IsError {
		t.Fatalf("run now failed: %v %s", err, resultText(t, res))
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sched.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	res, _ = s.handleRunNow(ctx, call(map[string]any{"target": "lunch"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "unknown target") {
		t.Fatalf("unknown target should be a tool error")
	}

	res, _ = s.handleListRuns(ctx, call(map[string]any{"target": "checkout", "limit": float64(5)}))
	text := resultText(t, res)
	if !strings.Contains(text, "1 runs") || !strings.Contains(text, "(manual)") {
		t.Fatalf("unexpected runs listing:\n%s", text)
	}

	runs, err := st.ListRuns(ctx, "checkout", 1, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v %v", runs, err)
	}
	if err := st.EnsureRunLogDir(runs[0].ID); err != nil {
		t.Fatalf("log dir: %v", err)
	}
	if err := os.WriteFile(st.RunLogPath(runs[0].ID), []byte("opening portal\nclicked\ndone\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	res, _ = s.handleGetRunLog(ctx, call(map[string]any{"run_id": runs[0].ID, "tail": float64(2)}))
	if got := resultText(t, res); got != "clicked\ndone" {
		t.Fatalf("log tail = %q", got)
	}
	res, _ = s.handleGetRunLog(ctx, call(map[string]any{"run_id": "missing"}))
	if !res.IsError {
		t.Fatalf("missing run should be a tool error")
	}
}

func TestPreviewTargetTool(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	res, _ := s.handlePreviewTarget(ctx, call(map[string]any{"target": "checkin", "count": float64(2)}))
	text := resultText(t, res)
	if !strings.Contains(text, "1. 2026-10-26 09:00 Mon") || !strings.Contains(text, "2. 2026-10-27 09:00 Tue") {
		t.Fatalf("unexpected preview:\n%s", text)
	}

	res, _ = s.handlePreviewTarget(ctx, call(map[string]any{"schedule": "lunch=12:30@sat"}))
	if text := resultText(t, res); !strings.Contains(text, "lunch (cron 30 12 * * sat)") || !strings.Contains(text, "2026-10-24 12:30 Sat") {
		t.Fatalf("unexpected schedule preview:\n%s", text)
	}

	res, _ = s.handlePreviewTarget(ctx, call(map[string]any{"schedule": "bad"}))
	if !res.IsError {
		t.Fatalf("invalid schedule should be a tool error")
	}
	res, _ = s.handlePreviewTarget(ctx, call(nil))
	if !res.IsError {
		t.Fatalf("missing arguments should be a tool error")
	}
}
