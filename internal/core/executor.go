package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Notifier delivers a short message when a run finishes.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// CommandFunc builds the subprocess for a target run.
type CommandFunc func(ctx context.Context, target Target) *exec.Cmd

// ProcessExecutor spawns each run as an independent `autopunch run`
// subprocess and records its outcome.
type ProcessExecutor struct {
	store    Store
	logger   *slog.Logger
	command  CommandFunc
	timeout  time.Duration
	notifier Notifier
}

// NewProcessExecutor creates an executor that re-invokes exe with the run
// subcommand. extraArgs are appended after the target flag.
func NewProcessExecutor(store Store, logger *slog.Logger, exe string, extraArgs []string, timeout time.Duration, notifier Notifier) *ProcessExecutor {
	return &ProcessExecutor{
		store:    store,
		logger:   logger,
		command:  RunCommand(exe, extraArgs...),
		timeout:  timeout,
		notifier: notifier,
	}
}

// WithCommand replaces the subprocess builder.
func (e *ProcessExecutor) WithCommand(fn CommandFunc) *ProcessExecutor {
	e.command = fn
	return e
}

// RunCommand returns a CommandFunc running `<exe> run --target <name> [extra...]`.
func RunCommand(exe string, extraArgs ...string) CommandFunc {
	return func(ctx context.Context, target Target) *exec.Cmd {
		args := append([]string{"run", "--target", target.Name}, extraArgs...)
		return exec.CommandContext(ctx, exe, args...) // #nosec G204
	}
}

// Execute runs the flow subprocess under the watchdog and records the run status.
func (e *ProcessExecutor) Execute(ctx context.Context, target Target, run *Run) error {
	if err := e.store.EnsureRunLogDir(run.ID); err != nil {
		return fmt.Errorf("ensure run log dir: %w", err)
	}
	logPath := e.store.RunLogPath(run.ID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	runLogWriter := &syncWriter{w: logFile}

	startedAt := time.Now().UTC()
	if err := e.store.MarkRunStarted(ctx, run.ID, startedAt); err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	run.Status = RunStatusRunning
	run.StartedAt = &startedAt

	cmd := e.command(ctx, target)
	cmd.Stdout = runLogWriter
	cmd.Stderr = runLogWriter

	var timeoutTriggered atomic.Bool
	var watchdog *time.Timer
	if e.timeout > 0 {
		watchdog = time.AfterFunc(e.timeout, func() {
			timeoutTriggered.Store(true)
			e.logger.Warn("run exceeded timeout, sending termination", "target", target.Name, "run_id", run.ID, "timeout", e.timeout)
			sendTermination(cmd.Process)
			time.AfterFunc(5*time.Second, func() {
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
			})
		})
	}

	e.logger.Info("run started", "target", target.Name, "run_id", run.ID, "trigger", string(run.Trigger))
	if err := cmd.Start(); err != nil {
		if watchdog != nil {
			watchdog.Stop()
		}
		e.complete(ctx, target, run, RunStatusFailed, nil, ptrString(fmt.Sprintf("failed to start command: %v", err)))
		return fmt.Errorf("start command: %w", err)
	}
	waitErr := cmd.Wait()
	if watchdog != nil {
		watchdog.Stop()
	}

	var exitCode *int
	var status RunStatus
	var errMsg *string

	switch {
	case timeoutTriggered.Load():
		status = RunStatusTimedOut
		errMsg = ptrString("run timed out")
	case ctx.Err() != nil:
		status = RunStatusCanceled
		errMsg = ptrString(ctx.Err().Error())
	case waitErr == nil:
		status = RunStatusSucceeded
		code := 0
		exitCode = &code
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			exitCode = &code
		}
		status = RunStatusFailed
		errMsg = ptrString(waitErr.Error())
	}
	return e.complete(ctx, target, run, status, exitCode, errMsg)
}

func (e *ProcessExecutor) complete(ctx context.Context, target Target, run *Run, status RunStatus, exitCode *int, errMsg *string) error {
	endedAt := time.Now().UTC()
	run.Status = status
	run.EndedAt = &endedAt
	run.ExitCode = exitCode
	run.Error = errMsg

	attrs := []any{"target", target.Name, "run_id", run.ID, "status", string(status)}
	if exitCode != nil {
		attrs = append(attrs, "exit_code", *exitCode)
	}
	if status == RunStatusSucceeded {
		e.logger.Info("run finished", attrs...)
	} else {
		e.logger.Error("run finished", attrs...)
	}

	// The run outcome is recorded even when the daemon is shutting down.
	storeCtx := context.WithoutCancel(ctx)
	if err := e.store.MarkRunCompleted(storeCtx, run.ID, status, endedAt, exitCode, errMsg); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	e.notify(storeCtx, target, run)
	return nil
}

func (e *ProcessExecutor) notify(ctx context.Context, target Target, run *Run) {
	if e.notifier == nil {
		return
	}
	title := fmt.Sprintf("autopunch %s %s", target.Name, run.Status)
	body := fmt.Sprintf("run %s at %s", run.ID, run.EndedAt.Local().Format("2006-01-02 15:04"))
	if run.Error != nil {
		body += ": " + *run.Error
	}
	if err := e.notifier.Send(ctx, title, body); err != nil {
		e.logger.Warn("send notification", "target", target.Name, "err", err)
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func sendTermination(process *os.Process) {
	if process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = process.Kill()
		return
	}
	_ = process.Signal(syscall.SIGTERM)
}

func ptrString(v string) *string {
	return &v
}
