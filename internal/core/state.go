package core

import "time"

const dayLayout = "2006-01-02"

// State is the polling loop's per-target run record. Markers live in
// memory only and are dropped whenever the local date changes.
type State struct {
	day     string
	lastRun map[string]string
}

// NewState returns an empty run record.
func NewState() *State {
	return &State{lastRun: make(map[string]string)}
}

// Due returns the targets matching now that have not fired yet today and
// marks them as fired.
func (s *State) Due(now time.Time, targets []Target) []Target {
	today := now.Format(dayLayout)
	if s.day != today {
		clear(s.lastRun)
		s.day = today
	}
	var due []Target
	for _, t := range targets {
		if !t.Matches(now) {
			continue
		}
		if s.lastRun[t.Name] == today {
			continue
		}
		s.lastRun[t.Name] = today
		due = append(due, t)
	}
	return due
}

// Forget drops today's marker for name so a later tick can fire it again.
func (s *State) Forget(name string) {
	delete(s.lastRun, name)
}

// LastRun returns the date the target last fired, if it fired today.
func (s *State) LastRun(name string) (string, bool) {
	day, ok := s.lastRun[name]
	return day, ok
}
