package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autopunch/internal/core"
)

var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, target, source, status, scheduled_at, started_at, ended_at, exit_code, error, created_at`

func (s *Store) InsertRun(ctx context.Context, run *core.Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	trigger := run.Trigger
	if trigger == "" {
		trigger = core.TriggerSchedule
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Target, trigger, run.Status, run.ScheduledAt.UTC().Format(timeLayout),
		nullableTime(run.StartedAt), nullableTime(run.EndedAt), nullableInt(run.ExitCode), nullableString(run.Error),
		run.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) MarkRunStarted(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, started_at = ?
		WHERE id = ?
	`, core.RunStatusRunning, startedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) MarkRunCompleted(ctx context.Context, id string, status core.RunStatus, endedAt time.Time, exitCode *int, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, exit_code = ?, error = ?
		WHERE id = ?
	`, status, endedAt.UTC().Format(timeLayout), nullableInt(exitCode), nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return expectOneRow(res)
}

// AbandonRunning marks runs left queued or running by a previous daemon
// process as canceled. It returns the number of rows updated.
func (s *Store) AbandonRunning(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, error = ?
		WHERE status IN (?, ?)
	`, core.RunStatusCanceled, time.Now().UTC().Format(timeLayout), "daemon restarted",
		core.RunStatusQueued, core.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("abandon running runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GetRun(ctx context.Context, id string) (*core.Run, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty target lists every target.
func (s *Store) ListRuns(ctx context.Context, target string, limit, offset int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// LastRun returns the most recent run for target, or nil when there is none.
func (s *Store) LastRun(ctx context.Context, target string) (*core.Run, error) {
	runs, err := s.ListRuns(ctx, target, 1, 0)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// RunLogPath returns the absolute path for the run's combined log file.
func (s *Store) RunLogPath(runID string) string {
	return filepath.Join(s.StateDir, "runs", runID, "combined.log")
}

// EnsureRunLogDir makes sure the directory for a run's log exists.
func (s *Store) EnsureRunLogDir(runID string) error {
	return os.MkdirAll(filepath.Dir(s.RunLogPath(runID)), 0o755)
}

// ReadRunLog returns the log of a run. A run that never produced output
// yields an empty log.
func (s *Store) ReadRunLog(runID string) ([]byte, error) {
	data, err := os.ReadFile(s.RunLogPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return data, nil
}

// TailLines returns the last n lines of content. n <= 0 returns everything.
// Lines of any length are kept whole.
func TailLines(content []byte, n int) []string {
	text := strings.TrimSuffix(string(content), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// PruneOldRunLogs removes log files beyond the retention limit for a target.
func (s *Store) PruneOldRunLogs(ctx context.Context, target string) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id FROM runs
		WHERE target = ?
		ORDER BY created_at DESC
		LIMIT -1 OFFSET ?
	`, target, s.LogRetention)
	if err != nil {
		return fmt.Errorf("query runs for pruning: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		dir := filepath.Dir(s.RunLogPath(id))
		if !strings.HasPrefix(dir, filepath.Join(s.StateDir, "runs")) {
			continue
		}
		_ = os.RemoveAll(dir)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*core.Run, error) {
	var (
		id          string
		target      string
		trigger     string
		status      string
		scheduledAt string
		startedAt   sql.NullString
		endedAt     sql.NullString
		exitCode    sql.NullInt64
		errMsg      sql.NullString
		createdAt   string
	)
	if err := scanner.Scan(&id, &target, &trigger, &status, &scheduledAt, &startedAt, &endedAt, &exitCode, &errMsg, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run := &core.Run{
		ID:          id,
		Target:      target,
		Trigger:     core.Trigger(trigger),
		Status:      core.RunStatus(status),
		ScheduledAt: parseStoredTime(scheduledAt),
		CreatedAt:   parseStoredTime(createdAt),
	}
	if startedAt.Valid {
		t := parseStoredTime(startedAt.String)
		run.StartedAt = &t
	}
	if endedAt.Valid {
		t := parseStoredTime(endedAt.String)
		run.EndedAt = &t
	}
	if exitCode.Valid {
		val := int(exitCode.Int64)
		run.ExitCode = &val
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return run, nil
}

func parseStoredTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeLayout)
}
