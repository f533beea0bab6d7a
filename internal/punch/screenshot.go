package punch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ScreenshotSource is the part of a page a screenshot is taken from.
type ScreenshotSource interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Screenshotter writes timestamped PNG files for postmortem inspection.
type Screenshotter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewScreenshotter writes into dir.
func NewScreenshotter(dir string, logger *slog.Logger) *Screenshotter {
	return &Screenshotter{dir: dir, logger: logger, now: time.Now}
}

// Capture saves a screenshot named "<name>_<timestamp>.png" and returns its
// path. Failures are logged and reported with an empty path.
func (s *Screenshotter) Capture(ctx context.Context, src ScreenshotSource, name string) string {
	path, err := s.capture(ctx, src, name)
	if err != nil {
		s.logger.Warn("screenshot failed", "name", name, "err", err)
		return ""
	}
	s.logger.Info("saved screenshot", "path", path)
	return path
}

func (s *Screenshotter) capture(ctx context.Context, src ScreenshotSource, name string) (string, error) {
	buf, err := src.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.png", name, s.now().Format("20060102_150405")))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
