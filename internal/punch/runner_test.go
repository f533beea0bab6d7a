package punch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"autopunch/internal/browser"
	"autopunch/internal/config"
)

type staticGate struct {
	name string
	ok   bool
}

func (g staticGate) Check(context.Context, []string) (string, bool) { return g.name, g.ok }

func runnerConfig(dir string) *config.Config {
	return &config.Config{
		Account: config.AccountConfig{Email: "me@example.com", Password: "secret", LoginMode: config.LoginModePassword},
		Portal: config.PortalConfig{
			LoginURL:     "https://hr.example.com/login",
			ActionURL:    "https://hr.example.com/attendance",
			LoginMarkers: testMarkers,
		},
		Browser: config.BrowserConfig{
			Engine:        config.EngineChromedp,
			Headless:      true,
			SessionFile:   filepath.Join(dir, "session.json"),
			ProfileDir:    filepath.Join(dir, "profile"),
			ScreenshotDir: filepath.Join(dir, "shots"),
			NavTimeout:    time.Second,
		},
	}
}

func openerFor(page *fakePage, opened *int) browser.Opener {
	return func(context.Context, browser.Options, *slog.Logger) (browser.Page, error) {
		*opened++
		return page, nil
	}
}

func newTestRunner(cfg *config.Config, page *fakePage, opened *int) *Runner {
	r := NewRunner(cfg, openerFor(page, opened), nil, testLogger())
	r.Sleep = noSleep
	return r
}

func TestRunMissingEmailStopsBeforeBrowser(t *testing.T) {
	t.Parallel()
	cfg := runnerConfig(t.TempDir())
	cfg.Account.Email = ""
	var opened int
	r := newTestRunner(cfg, newFakePage("about:blank"), &opened)

	_, err := r.Run(context.Background(), "checkin")
	if !config.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if opened != 0 {
		t.Fatalf("browser must not be opened without an account identifier")
	}
}

func TestRunAlreadyAuthenticatedSkipsLogin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := runnerConfig(dir)
	cfg.Portal.ActionSelectors = []string{"#punch"}
	page := newFakePage("about:blank")
	// A valid session lands straight on the dashboard.
	page.redirects[cfg.Portal.LoginURL] = "https://hr.example.com/dashboard"
	page.add("input[type='email']", &fakeElement{visible: true})
	punch := page.add("#punch", &fakeElement{visible: true, html: `<button id="punch">Check In</button>`})
	var opened int
	r := newTestRunner(cfg, page, &opened)

	report, err := r.Run(context.Background(), "checkin")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Login != StateAlreadyAuthenticated {
		t.Fatalf("login state = %s", report.Login)
	}
	for _, sel := range page.finds {
		if sel == "input[type='email']" {
			t.Fatalf("login resolver should be skipped entirely, probed %v", page.finds)
		}
	}
	if punch.clicks != 1 || report.Action.Action != ActionCheckIn {
		t.Fatalf("action = %+v clicks=%d", report.Action, punch.clicks)
	}
	if got := page.navigated; len(got) != 2 || got[1] != cfg.Portal.ActionURL {
		t.Fatalf("navigations = %v", got)
	}
	if report.Screenshot == "" || len(screenshotsIn(t, cfg.Browser.ScreenshotDir, "check-in_success")) != 1 {
		t.Fatalf("expected success screenshot, report=%+v", report)
	}
	if !page.closed {
		t.Fatalf("browser should be closed at the end of the run")
	}
	if !r.Sessions.HasSavedState() {
		t.Fatalf("session should be refreshed in snapshot mode")
	}
}

func TestRunOAuthHeadlessWithoutControlFails(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := runnerConfig(dir)
	cfg.Account = config.AccountConfig{Email: "me@example.com", LoginMode: config.LoginModeOAuth}
	page := newFakePage("about:blank")
	var opened int
	r := newTestRunner(cfg, page, &opened)

	report, err := r.Run(context.Background(), "checkin")
	if !IsLoginFailure(err) {
		t.Fatalf("expected login failure, got %v", err)
	}
	if report.Login != StateLoginFailed {
		t.Fatalf("login state = %s", report.Login)
	}
	if len(screenshotsIn(t, cfg.Browser.ScreenshotDir, "oauth_not_found")) != 1 {
		t.Fatalf("expected oauth_not_found screenshot")
	}
	if r.Sessions.HasSavedState() {
		t.Fatalf("failed login must not save a session")
	}
}

func TestRunWithoutLoginURLFailsLoginWithScreenshot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := runnerConfig(dir)
	cfg.Account = config.AccountConfig{Email: "me@example.com", LoginMode: config.LoginModeOAuth}
	cfg.Portal.LoginURL = ""
	cfg.Portal.ActionURL = ""
	page := newFakePage("about:blank")
	var opened int
	r := newTestRunner(cfg, page, &opened)

	report, err := r.Run(context.Background(), "checkin")
	if !IsLoginFailure(err) {
		t.Fatalf("expected login failure, got %v", err)
	}
	if config.IsConfigurationError(err) {
		t.Fatalf("missing login url must not be a configuration error")
	}
	if opened != 1 {
		t.Fatalf("opened = %d, want 1", opened)
	}
	if report.Login != StateLoginFailed {
		t.Fatalf("login state = %s", report.Login)
	}
	if len(screenshotsIn(t, cfg.Browser.ScreenshotDir, "login_url_missing")) != 1 {
		t.Fatalf("expected login_url_missing screenshot")
	}
}

func TestRunRestoresSavedSession(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := runnerConfig(dir)
	page := newFakePage("about:blank")
	page.redirects[cfg.Portal.LoginURL] = "https://hr.example.com/dashboard"
	var opened int
	r := newTestRunner(cfg, page, &opened)
	r.Sessions.Save(context.Background(), page)

	report, err := r.Run(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(page.cookiesSet) != 1 || page.cookiesSet[0].Name != "sid" {
		t.Fatalf("saved cookies should be restored, got %+v", page.cookiesSet)
	}
	if report.Action.Clicked {
		t.Fatalf("no action control exists on the fake page")
	}
	if len(screenshotsIn(t, cfg.Browser.ScreenshotDir, "final")) != 1 {
		t.Fatalf("a final screenshot is always taken")
	}
}

func TestRunDeniedByNetworkGate(t *testing.T) {
	t.Parallel()
	cfg := runnerConfig(t.TempDir())
	cfg.Network.ExpectedSSIDs = []string{"Office"}
	var opened int
	r := newTestRunner(cfg, newFakePage("about:blank"), &opened)
	r.Gate = staticGate{name: "", ok: false}

	_, err := r.Run(context.Background(), "checkin")
	if !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("expected wrong network error, got %v", err)
	}
	if opened != 0 {
		t.Fatalf("browser must not be opened when the gate denies the run")
	}
}
