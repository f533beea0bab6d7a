// Package wifi checks that the host is on an expected wireless network.
package wifi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

var errNoNetwork = errors.New("no network name in output")

// Runner executes an OS command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() // #nosec G204
}

// Probe is one way of asking the OS for the current network name.
type Probe struct {
	Name  string
	Cmd   string
	Args  []string
	Parse func(output string) (string, error)
}

// Detector resolves the current network name through ordered probes.
type Detector struct {
	runner Runner
	probes []Probe
	logger *slog.Logger
}

// NewDetector builds a detector with the probes for the running OS.
func NewDetector(iface string, logger *slog.Logger) *Detector {
	return &Detector{runner: execRunner{}, probes: DefaultProbes(runtime.GOOS, iface), logger: logger}
}

// NewDetectorWith builds a detector with explicit probes and runner.
func NewDetectorWith(runner Runner, probes []Probe, logger *slog.Logger) *Detector {
	return &Detector{runner: runner, probes: probes, logger: logger}
}

// DefaultProbes lists probes in priority order for goos.
func DefaultProbes(goos, iface string) []Probe {
	if iface == "" {
		iface = "en0"
	}
	switch goos {
	case "darwin":
		return []Probe{
			{Name: "networksetup", Cmd: "networksetup", Args: []string{"-getairportnetwork", iface}, Parse: parseNetworksetup},
			{Name: "ipconfig", Cmd: "ipconfig", Args: []string{"getsummary", iface}, Parse: parseKeyValue("SSID", ":")},
			{Name: "airport", Cmd: "/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport", Args: []string{"-I"}, Parse: parseKeyValue("SSID", ":")},
		}
	case "linux":
		return []Probe{
			{Name: "iwgetid", Cmd: "iwgetid", Args: []string{"-r"}, Parse: parseTrimmed},
			{Name: "nmcli", Cmd: "nmcli", Args: []string{"-t", "-f", "active,ssid", "dev", "wifi"}, Parse: parseNmcli},
		}
	case "windows":
		return []Probe{
			{Name: "netsh", Cmd: "netsh", Args: []string{"wlan", "show", "interfaces"}, Parse: parseKeyValue("SSID", ":")},
		}
	default:
		return nil
	}
}

// CurrentNetworkName returns the network name, or false if every probe failed.
func (d *Detector) CurrentNetworkName(ctx context.Context) (string, bool) {
	for _, p := range d.probes {
		name, err := d.runProbe(ctx, p)
		if err != nil {
			d.logger.Debug("wifi probe failed", "probe", p.Name, "err", err)
			continue
		}
		d.logger.Debug("wifi probe matched", "probe", p.Name, "ssid", name)
		return name, true
	}
	return "", false
}

func (d *Detector) runProbe(ctx context.Context, p Probe) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := d.runner.Run(probeCtx, p.Cmd, p.Args...)
	if err != nil {
		return "", err
	}
	name, err = p.Parse(string(out))
	if err != nil {
		return "", err
	}
	if name = strings.TrimSpace(name); name == "" {
		return "", errNoNetwork
	}
	return name, nil
}

// Check resolves the current network and tests it against expected.
func (d *Detector) Check(ctx context.Context, expected []string) (string, bool) {
	name, ok := d.CurrentNetworkName(ctx)
	if !ok {
		return "", false
	}
	return name, IsOnExpectedNetwork(name, expected)
}

// ParseNetworks accepts a single name or a comma-separated list.
func ParseNetworks(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// IsOnExpectedNetwork reports exact membership of name in expected. Each
// entry may itself be comma-separated. An empty name is never a match.
func IsOnExpectedNetwork(name string, expected []string) bool {
	if name == "" {
		return false
	}
	for _, entry := range expected {
		for _, candidate := range ParseNetworks(entry) {
			if candidate == name {
				return true
			}
		}
	}
	return false
}

func parseTrimmed(output string) (string, error) {
	name := strings.TrimSpace(output)
	if name == "" {
		return "", errNoNetwork
	}
	return name, nil
}

// parseNetworksetup reads "Current Wi-Fi Network: <name>".
func parseNetworksetup(output string) (string, error) {
	const marker = "Current Wi-Fi Network:"
	idx := strings.Index(output, marker)
	if idx < 0 {
		return "", fmt.Errorf("unexpected networksetup output: %q", strings.TrimSpace(output))
	}
	return parseTrimmed(strings.SplitN(output[idx+len(marker):], "\n", 2)[0])
}

// parseKeyValue finds the first "key<sep> value" line, ignoring BSSID lines.
func parseKeyValue(key, sep string) func(string) (string, error) {
	return func(output string) (string, error) {
		scanner := bufio.NewScanner(strings.NewReader(output))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			k, v, ok := strings.Cut(line, sep)
			if !ok || strings.TrimSpace(k) != key {
				continue
			}
			return parseTrimmed(v)
		}
		return "", errNoNetwork
	}
}

// parseNmcli reads the "yes:<ssid>" row of nmcli terse output.
func parseNmcli(output string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		active, ssid, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && active == "yes" {
			return parseTrimmed(strings.ReplaceAll(ssid, `\:`, ":"))
		}
	}
	return "", errNoNetwork
}
