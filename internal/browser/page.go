// Package browser drives the HR portal through a page automation engine.
// The rest of the module only sees the Page and Element interfaces, so
// resolvers can be exercised against an in-memory page in tests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned by Page.Find when no element matches in time.
	ErrNotFound = errors.New("element not found")
	// ErrNavigationTimeout wraps bounded waits that ran out of time.
	ErrNavigationTimeout = errors.New("navigation timeout")
)

// Cookie is an engine-neutral browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds, 0 for session cookies
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// Element is a located node on the current page.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	OuterHTML(ctx context.Context) (string, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
}

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Find waits up to wait for selector to exist and returns the first match.
	Find(ctx context.Context, selector string, wait time.Duration) (Element, error)
	PressEnter(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// Options configures a new page.
type Options struct {
	Engine       string
	Headless     bool
	ProfileDir   string // empty for an ephemeral profile
	ChromePath   string
	WebDriverURL string
	UserAgent    string
	NavTimeout   time.Duration
}

// Opener creates pages; the CLI swaps it out in tests.
type Opener func(ctx context.Context, opts Options, logger *slog.Logger) (Page, error)

// Open starts the configured engine and returns its first tab.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Page, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	switch opts.Engine {
	case "chromedp", "":
		return openChromedp(ctx, opts, logger)
	case "selenium":
		return openSelenium(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}
