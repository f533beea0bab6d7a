package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var targetNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Target is one configured wall-clock instant on a set of weekdays.
type Target struct {
	Name     string
	Hour     int
	Minute   int
	Weekdays string // cron day-of-week field, e.g. "1-5" or "mon,wed"
}

// Clock renders the target time as HH:MM.
func (t Target) Clock() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t Target) String() string {
	return fmt.Sprintf("%s=%s@%s", t.Name, t.Clock(), t.weekdays())
}

func (t Target) weekdays() string {
	if strings.TrimSpace(t.Weekdays) == "" {
		return "*"
	}
	return t.Weekdays
}

// CronSpec returns the 5-field expression equivalent to the target.
func (t Target) CronSpec() string {
	return fmt.Sprintf("%d %d * * %s", t.Minute, t.Hour, t.weekdays())
}

// Schedule parses the target into a cron schedule.
func (t Target) Schedule() (cron.Schedule, error) {
	return ParseCron(t.CronSpec())
}

// Matches reports whether now falls within the target's minute on one of its weekdays.
func (t Target) Matches(now time.Time) bool {
	if now.Hour() != t.Hour || now.Minute() != t.Minute {
		return false
	}
	schedule, err := t.Schedule()
	if err != nil {
		return false
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	return schedule.Next(start.Add(-time.Second)).Equal(start)
}

// WeekdayList expands the weekday field in ascending order.
func (t Target) WeekdayList() []time.Weekday {
	schedule, err := t.Schedule()
	if err != nil {
		return nil
	}
	spec, ok := schedule.(*cron.SpecSchedule)
	if !ok {
		return nil
	}
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if spec.Dow&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// ParseTargets parses "name=HH:MM@DOW;name=HH:MM@DOW". The weekday part is
// optional and defaults to every day.
func ParseTargets(spec string) ([]Target, error) {
	var targets []Target
	seen := make(map[string]bool)
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target, err := parseTarget(entry)
		if err != nil {
			return nil, err
		}
		if seen[target.Name] {
			return nil, fmt.Errorf("target %q defined twice", target.Name)
		}
		seen[target.Name] = true
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}
	return targets, nil
}

func parseTarget(entry string) (Target, error) {
	name, rest, ok := strings.Cut(entry, "=")
	if !ok {
		return Target{}, fmt.Errorf("target %q: expected name=HH:MM@DOW", entry)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if !targetNameRe.MatchString(name) {
		return Target{}, fmt.Errorf("target %q: invalid name", entry)
	}
	clock, dow, _ := strings.Cut(rest, "@")
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return Target{}, fmt.Errorf("target %q: expected HH:MM", entry)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Target{}, fmt.Errorf("target %q: invalid hour %q", entry, hh)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Target{}, fmt.Errorf("target %q: invalid minute %q", entry, mm)
	}
	target := Target{Name: name, Hour: hour, Minute: minute, Weekdays: strings.TrimSpace(dow)}
	if _, err := target.Schedule(); err != nil {
		return Target{}, fmt.Errorf("target %q: %w", entry, err)
	}
	return target, nil
}

// FindTarget returns the target with the given name.
func FindTarget(targets []Target, name string) (Target, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// ParseCron ensures the expression is a valid 5-field cron definition and returns the underlying schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NextOccurrences returns the next n fire times of the target after base.
func (t Target) NextOccurrences(base time.Time, n int) []time.Time {
	schedule, err := t.Schedule()
	if err != nil || n <= 0 {
		return nil
	}
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times
}
