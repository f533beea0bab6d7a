package launchd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"autopunch/internal/core"

	"howett.net/plist"
)

// DefaultLabel is the launchd job label used when none is configured.
const DefaultLabel = "com.autopunch.agent"

// Agent describes the LaunchAgent that fires `autopunch run` at every target
// instant.
type Agent struct {
	Label      string
	Executable string
	ExtraArgs  []string
	WorkingDir string
	Home       string
	PathEnv    string
	Env        map[string]string
	LogPath    string
	Targets    []core.Target
}

// CalendarInterval is one StartCalendarInterval entry.
type CalendarInterval struct {
	Hour    int `plist:"Hour"`
	Minute  int `plist:"Minute"`
	Weekday int `plist:"Weekday"`
}

type document struct {
	Label                 string             `plist:"Label"`
	ProgramArguments      []string           `plist:"ProgramArguments"`
	WorkingDirectory      string             `plist:"WorkingDirectory,omitempty"`
	EnvironmentVariables  map[string]string  `plist:"EnvironmentVariables,omitempty"`
	StartCalendarInterval []CalendarInterval `plist:"StartCalendarInterval"`
	StandardOutPath       string             `plist:"StandardOutPath,omitempty"`
	StandardErrorPath     string             `plist:"StandardErrorPath,omitempty"`
	RunAtLoad             bool               `plist:"RunAtLoad"`
}

// Intervals expands every target into one calendar entry per weekday.
// launchd numbers Sunday as 0, matching time.Weekday.
func Intervals(targets []core.Target) []CalendarInterval {
	var out []CalendarInterval
	for _, t := range targets {
		for _, day := range t.WeekdayList() {
			out = append(out, CalendarInterval{Hour: t.Hour, Minute: t.Minute, Weekday: int(day)})
		}
	}
	return out
}

// Render returns the agent as an XML property list.
func (a Agent) Render() ([]byte, error) {
	if a.Executable == "" {
		return nil, errors.New("launchd: executable path is required")
	}
	intervals := Intervals(a.Targets)
	if len(intervals) == 0 {
		return nil, errors.New("launchd: no calendar intervals to schedule")
	}
	label := a.Label
	if label == "" {
		label = DefaultLabel
	}

	doc := document{
		Label:                 label,
		ProgramArguments:      append([]string{a.Executable, "run"}, a.ExtraArgs...),
		WorkingDirectory:      a.WorkingDir,
		StartCalendarInterval: intervals,
		StandardOutPath:       a.LogPath,
		StandardErrorPath:     a.LogPath,
	}
	env := map[string]string{}
	for k, v := range a.Env {
		env[k] = v
	}
	if a.PathEnv != "" {
		env["PATH"] = a.PathEnv
	}
	if a.Home != "" {
		env["HOME"] = a.Home
	}
	if len(env) > 0 {
		doc.EnvironmentVariables = env
	}

	data, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode plist: %w", err)
	}
	return data, nil
}

// InstallPath returns ~/Library/LaunchAgents/<label>.plist under home.
func InstallPath(home, label string) string {
	if label == "" {
		label = DefaultLabel
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
}

// Write renders the agent and stores it at path, creating parent dirs.
// The file is private to the user since Env may carry credentials.
func (a Agent) Write(path string) error {
	data, err := a.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create launch agents dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	return nil
}
