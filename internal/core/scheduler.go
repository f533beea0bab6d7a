package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrTargetRunning = errors.New("target is already running")
)

// Store abstracts the run history used by the scheduler and executor.
type Store interface {
	InsertRun(ctx context.Context, run *Run) error
	MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error
	MarkRunCompleted(ctx context.Context, id string, status RunStatus, endedAt time.Time, exitCode *int, errMsg *string) error

	// Log helpers
	EnsureRunLogDir(runID string) error
	RunLogPath(runID string) string
	PruneOldRunLogs(ctx context.Context, target string) error
}

// Executor runs one punch flow for a target.
type Executor interface {
	Execute(ctx context.Context, target Target, run *Run) error
}

// Scheduler is the in-process polling loop. A cron entry ticks once a
// minute and every due target is handed to the executor in its own
// goroutine so a hung run never stalls the clock.
type Scheduler struct {
	store    Store
	executor Executor
	logger   *slog.Logger
	location *time.Location
	targets  []Target

	cron *cron.Cron

	mu    sync.Mutex
	state *State

	running sync.Map // target name -> struct{}{}
	wg      sync.WaitGroup

	ctx context.Context
}

// NewScheduler constructs a scheduler with the given dependencies.
func NewScheduler(store Store, executor Executor, targets []Target, logger *slog.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.Local
	}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(location),
	)
	return &Scheduler{
		store:    store,
		executor: executor,
		logger:   logger,
		location: location,
		targets:  append([]Target(nil), targets...),
		cron:     c,
		state:    NewState(),
	}
}

// Start begins the polling loop. ctx is used for background operations (DB updates, executor runs).
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.AddFunc("* * * * *", func() { s.Tick(time.Now()) }); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.cron.Start()
	for _, t := range s.targets {
		next := t.NextOccurrences(time.Now().In(s.location), 1)
		if len(next) == 1 {
			s.logger.Info("target scheduled", "target", t.Name, "at", t.Clock(), "weekdays", t.weekdays(), "next", next[0].Format(time.RFC3339))
		}
	}
	return nil
}

// Stop stops the ticker. The returned context is done once the current tick has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Wait blocks until every launched run has finished or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Targets returns the configured targets.
func (s *Scheduler) Targets() []Target {
	return append([]Target(nil), s.targets...)
}

// Location returns the time zone targets are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// IsRunning reports whether a run for the target is in flight.
func (s *Scheduler) IsRunning(name string) bool {
	_, ok := s.running.Load(name)
	return ok
}

// Tick evaluates the targets against now and launches every due one.
func (s *Scheduler) Tick(now time.Time) []*Run {
	now = now.In(s.location)
	s.mu.Lock()
	due := s.state.Due(now, s.targets)
	s.mu.Unlock()

	var runs []*Run
	for _, target := range due {
		s.logger.Info("target due", "target", target.Name, "at", target.Clock())
		run, err := s.dispatch(s.ctxOrBackground(), target, now.UTC(), TriggerSchedule)
		if err != nil {
			s.logger.Error("dispatch scheduled run", "target", target.Name, "err", err)
			if !errors.Is(err, ErrTargetRunning) {
				// Nothing was spawned; let the next tick in this minute retry.
				s.mu.Lock()
				s.state.Forget(target.Name)
				s.mu.Unlock()
			}
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

// RunNow launches an immediate run for the named target. It leaves the
// daily markers untouched.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*Run, error) {
	target, ok := FindTarget(s.targets, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return s.dispatch(ctx, target, time.Now().UTC(), TriggerManual)
}

func (s *Scheduler) dispatch(ctx context.Context, target Target, scheduledAt time.Time, trigger Trigger) (*Run, error) {
	run := &Run{
		ID:          NewID(),
		Target:      target.Name,
		Trigger:     trigger,
		Status:      RunStatusQueued,
		ScheduledAt: scheduledAt,
	}
	if _, busy := s.running.LoadOrStore(target.Name, struct{}{}); busy {
		s.logger.Info("skipping run because target is already running", "target", target.Name)
		run.Status = RunStatusSkipped
		if err := s.store.InsertRun(ctx, run); err != nil {
			s.logger.Error("record skipped run", "target", target.Name, "err", err)
		}
		return run, ErrTargetRunning
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.running.Delete(target.Name)
		return nil, fmt.Errorf("insert run: %w", err)
	}
	s.launchExecution(target, run)
	return run, nil
}

func (s *Scheduler) launchExecution(target Target, run *Run) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Delete(target.Name)
		ctx := s.ctxOrBackground()
		if err := s.executor.Execute(ctx, target, run); err != nil {
			s.logger.Error("execute run", "target", target.Name, "run_id", run.ID, "err", err)
		}
		if err := s.store.PruneOldRunLogs(ctx, target.Name); err != nil {
			s.logger.Warn("prune run logs", "target", target.Name, "err", err)
		}
	}()
}

func (s *Scheduler) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
