// Package session keeps the authenticated portal session between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"autopunch/internal/browser"
)

// SessionIOError reports a failure reading or writing the session artifact.
// It is logged as a warning; the run continues without a persisted session.
type SessionIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *SessionIOError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SessionIOError) Unwrap() error { return e.Err }

// CookieSource is the part of a page the store reads from when saving.
type CookieSource interface {
	Cookies(ctx context.Context) ([]browser.Cookie, error)
}

type snapshot struct {
	SavedAt time.Time        `json:"saved_at"`
	Cookies []browser.Cookie `json:"cookies"`
}

// Store persists the session either as a snapshot file or implicitly
// through a persistent browser profile directory.
type Store struct {
	persistent   bool
	profileDir   string
	snapshotPath string
	logger       *slog.Logger
	now          func() time.Time
}

// NewStore builds a store. When persistent is true the profile directory
// carries the session and Save/Load are no-ops.
func NewStore(persistent bool, profileDir, snapshotPath string, logger *slog.Logger) *Store {
	return &Store{
		persistent:   persistent,
		profileDir:   profileDir,
		snapshotPath: snapshotPath,
		logger:       logger,
		now:          time.Now,
	}
}

// Persistent reports whether persistent-profile mode is active.
func (s *Store) Persistent() bool { return s.persistent }

// ProfileDir returns the profile directory the engine should launch with,
// creating it on first use. It is empty in snapshot mode.
func (s *Store) ProfileDir() (string, error) {
	if !s.persistent {
		return "", nil
	}
	if err := os.MkdirAll(s.profileDir, 0o700); err != nil {
		return "", &SessionIOError{Op: "create", Path: s.profileDir, Err: err}
	}
	return s.profileDir, nil
}

// HasSavedState reports whether a snapshot file exists.
func (s *Store) HasSavedState() bool {
	if s.persistent {
		return false
	}
	info, err := os.Stat(s.snapshotPath)
	return err == nil && info.Mode().IsRegular()
}

// Load returns the saved cookies, or false when there is nothing usable.
func (s *Store) Load() ([]browser.Cookie, bool) {
	if s.persistent || !s.HasSavedState() {
		return nil, false
	}
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		s.logger.Warn("load session", "err", &SessionIOError{Op: "read", Path: s.snapshotPath, Err: err})
		return nil, false
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("load session", "err", &SessionIOError{Op: "decode", Path: s.snapshotPath, Err: err})
		return nil, false
	}
	if len(snap.Cookies) == 0 {
		return nil, false
	}
	s.logger.Info("loaded saved session", "path", s.snapshotPath, "cookies", len(snap.Cookies), "saved_at", snap.SavedAt.Format(time.RFC3339))
	return snap.Cookies, true
}

// Save writes the page's cookies to the snapshot file. Failures are logged
// and swallowed.
func (s *Store) Save(ctx context.Context, src CookieSource) {
	if s.persistent {
		return
	}
	if err := s.save(ctx, src); err != nil {
		s.logger.Warn("save session", "err", err)
		return
	}
	s.logger.Info("saved session", "path", s.snapshotPath)
}

func (s *Store) save(ctx context.Context, src CookieSource) error {
	cookies, err := src.Cookies(ctx)
	if err != nil {
		return &SessionIOError{Op: "collect", Path: s.snapshotPath, Err: err}
	}
	data, err := json.MarshalIndent(snapshot{SavedAt: s.now().UTC(), Cookies: cookies}, "", "  ")
	if err != nil {
		return &SessionIOError{Op: "encode", Path: s.snapshotPath, Err: err}
	}
	dir := filepath.Dir(s.snapshotPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &SessionIOError{Op: "write", Path: s.snapshotPath, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return &SessionIOError{Op: "write", Path: s.snapshotPath, Err: err}
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return &SessionIOError{Op: "write", Path: s.snapshotPath, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return &SessionIOError{Op: "write", Path: s.snapshotPath, Err: err}
	}
	if err := os.Rename(tmpName, s.snapshotPath); err != nil {
		_ = os.Remove(tmpName)
		return &SessionIOError{Op: "write", Path: s.snapshotPath, Err: err}
	}
	return nil
}
