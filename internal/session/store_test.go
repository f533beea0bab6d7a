package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"autopunch/internal/browser"
)

type fakeSource struct {
	cookies []browser.Cookie
	err     error
}

func (f fakeSource) Cookies(context.Context) ([]browser.Cookie, error) {
	return f.cookies, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewStore(false, "", path, discardLogger())
	if store.HasSavedState() {
		t.Fatalf("fresh store should have no state")
	}
	if _, ok := store.Load(); ok {
		t.Fatalf("load without file should report none")
	}

	want := []browser.Cookie{{Name: "sid", Value: "abc", Domain: "hr.example.com", Path: "/", Expires: 1893456000, Secure: true}}
	store.Save(context.Background(), fakeSource{cookies: want})
	if !store.HasSavedState() {
		t.Fatalf("state should exist after save")
	}
	got, ok := store.Load()
	if !ok || len(got) != 1 || got[0] != want[0] {
		t.Fatalf("load = %+v, %v", got, ok)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("snapshot should be private, got %v", info.Mode().Perm())
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(false, "", path, discardLogger())
	store.Save(context.Background(), fakeSource{err: errors.New("tab closed")})
	if store.HasSavedState() {
		t.Fatalf("failed collection must not write a file")
	}
}

func TestCorruptSnapshotLoadsAsNone(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore(false, "", path, discardLogger())
	if _, ok := store.Load(); ok {
		t.Fatalf("corrupt snapshot should load as none")
	}
}

func TestPersistentProfileMode(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "profile")
	store := NewStore(true, dir, filepath.Join(dir, "unused.json"), discardLogger())
	got, err := store.ProfileDir()
	if err != nil {
		t.Fatalf("profile dir: %v", err)
	}
	if got != dir {
		t.Fatalf("profile dir = %q", got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("profile dir should be created: %v", err)
	}
	store.Save(context.Background(), fakeSource{cookies: []browser.Cookie{{Name: "x"}}})
	if store.HasSavedState() {
		t.Fatalf("persistent mode never writes snapshots")
	}
}

func TestSessionIOErrorUnwraps(t *testing.T) {
	t.Parallel()
	err := &SessionIOError{Op: "read", Path: "/x", Err: os.ErrPermission}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("expected wrapped permission error")
	}
}
