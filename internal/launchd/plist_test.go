package launchd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autopunch/internal/core"

	"howett.net/plist"
)

func mustTargets(t *testing.T, spec string) []core.Target {
	t.Helper()
	targets, err := core.ParseTargets(spec)
	if err != nil {
		t.Fatalf("parse targets: %v", err)
	}
	return targets
}

func TestIntervalsExpandWeekdays(t *testing.T) {
	t.Parallel()
	intervals := Intervals(mustTargets(t, "checkin=09:00@1-5;checkout=18:30@1-5;weekend=10:15@sun"))
	if len(intervals) != 11 {
		t.Fatalf("intervals = %d, want 11", len(intervals))
	}
	if got := intervals[0]; got != (CalendarInterval{Hour: 9, Minute: 0, Weekday: 1}) {
		t.Fatalf("first interval = %+v", got)
	}
	if got := intervals[9]; got != (CalendarInterval{Hour: 18, Minute: 30, Weekday: 5}) {
		t.Fatalf("last checkout interval = %+v", got)
	}
	if got := intervals[10]; got != (CalendarInterval{Hour: 10, Minute: 15, Weekday: 0}) {
		t.Fatalf("sunday interval = %+v", got)
	}
}

func TestRenderAgent(t *testing.T) {
	t.Parallel()
	agent := Agent{
		Executable: "/usr/local/bin/autopunch",
		ExtraArgs:  []string{"--env-file", "/etc/autopunch.env"},
		WorkingDir: "/Users/me",
		Home:       "/Users/me",
		PathEnv:    "/usr/local/bin:/usr/bin:/bin",
		LogPath:    "/Users/me/.config/autopunch/launchd.log",
		Targets:    mustTargets(t, "checkin=09:00@1-5;checkout=18:00@1-5"),
	}
	data, err := agent.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(data), "<key>StartCalendarInterval</key>") {
		t.Fatalf("missing calendar key:\n%s", data)
	}

	var doc document
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Label != DefaultLabel {
		t.Fatalf("label = %q", doc.Label)
	}
	if got := strings.Join(doc.ProgramArguments, " "); got != "/usr/local/bin/autopunch run --env-file /etc/autopunch.env" {
		t.Fatalf("program arguments = %q", got)
	}
	if len(doc.StartCalendarInterval) != 10 {
		t.Fatalf("intervals = %d, want 10", len(doc.StartCalendarInterval))
	}
	if doc.EnvironmentVariables["HOME"] != "/Users/me" || doc.EnvironmentVariables["PATH"] == "" {
		t.Fatalf("environment = %v", doc.EnvironmentVariables)
	}
	if doc.StandardOutPath != agent.LogPath || doc.StandardErrorPath != agent.LogPath {
		t.Fatalf("log paths = %q %q", doc.StandardOutPath, doc.StandardErrorPath)
	}
}

func TestRenderCarriesConfigEnv(t *testing.T) {
	t.Parallel()
	agent := Agent{
		Executable: "/usr/local/bin/autopunch",
		Home:       "/Users/me",
		Env: map[string]string{
			"AUTOPUNCH_STATE_DIR": "/Users/me/punch",
			"HOME":                "/elsewhere",
		},
		Targets: mustTargets(t, "checkin=09:00@1-5"),
	}
	data, err := agent.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var doc document
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := doc.EnvironmentVariables["AUTOPUNCH_STATE_DIR"]; got != "/Users/me/punch" {
		t.Fatalf("AUTOPUNCH_STATE_DIR = %q", got)
	}
	if got := doc.EnvironmentVariables["HOME"]; got != "/Users/me" {
		t.Fatalf("HOME = %q, want the agent home", got)
	}
}

func TestRenderRequiresExecutableAndTargets(t *testing.T) {
	t.Parallel()
	if _, err := (Agent{Targets: mustTargets(t, "checkin=09:00")}).Render(); err == nil {
		t.Fatalf("expected error without executable")
	}
	if _, err := (Agent{Executable: "/bin/autopunch"}).Render(); err == nil {
		t.Fatalf("expected error without targets")
	}
}

func TestWriteInstallsPlist(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	path := InstallPath(home, "")
	if want := filepath.Join(home, "Library", "LaunchAgents", DefaultLabel+".plist"); path != want {
		t.Fatalf("install path = %q, want %q", path, want)
	}
	agent := Agent{Executable: "/bin/autopunch", Targets: mustTargets(t, "checkin=09:00@1-5")}
	if err := agent.Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "<string>com.autopunch.agent</string>") {
		t.Fatalf("unexpected plist:\n%s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("plist mode = %v, want 0600", perm)
	}
}
