package punch

import (
	"context"
	"fmt"
	"log/slog"

	"autopunch/internal/browser"
	"autopunch/internal/config"
	"autopunch/internal/session"
)

// NetworkGate decides whether the host is on an expected network.
type NetworkGate interface {
	Check(ctx context.Context, expected []string) (string, bool)
}

// Report summarises one run.
type Report struct {
	Target     string
	Login      LoginState
	Action     ActionResult
	Screenshot string
}

// Runner executes one full check-in flow.
type Runner struct {
	Config   *config.Config
	Open     browser.Opener
	Sessions *session.Store
	Shots    *Screenshotter
	Gate     NetworkGate
	Logger   *slog.Logger
	Sleep    SleepFunc
}

// NewRunner wires a runner from configuration.
func NewRunner(cfg *config.Config, open browser.Opener, gate NetworkGate, logger *slog.Logger) *Runner {
	return &Runner{
		Config:   cfg,
		Open:     open,
		Sessions: session.NewStore(cfg.Browser.PersistentProfile, cfg.Browser.ProfileDir, cfg.Browser.SessionFile, logger),
		Shots:    NewScreenshotter(cfg.Browser.ScreenshotDir, logger),
		Gate:     gate,
		Logger:   logger,
	}
}

// Run performs the flow for target. Configuration errors, a denied network
// gate and login failures are returned; a missing action control is only
// reported in the Report.
func (r *Runner) Run(ctx context.Context, target string) (Report, error) {
	report := Report{Target: target}
	cfg := r.Config
	if err := cfg.ValidateRun(); err != nil {
		return report, err
	}
	logger := r.Logger.With("target", target)

	if len(cfg.Network.ExpectedSSIDs) > 0 && r.Gate != nil {
		name, ok := r.Gate.Check(ctx, cfg.Network.ExpectedSSIDs)
		if !ok {
			if name == "" {
				name = "unknown"
			}
			logger.Error("network check failed", "ssid", name, "expected", cfg.Network.ExpectedSSIDs)
			return report, fmt.Errorf("%w: %s", ErrWrongNetwork, name)
		}
		logger.Info("network check passed", "ssid", name)
	}

	profileDir, err := r.Sessions.ProfileDir()
	if err != nil {
		logger.Warn("persistent profile unavailable, using a fresh profile", "err", err)
		profileDir = ""
	}
	page, err := r.Open(ctx, browser.Options{
		Engine:       string(cfg.Browser.Engine),
		Headless:     cfg.Browser.Headless,
		ProfileDir:   profileDir,
		ChromePath:   cfg.Browser.ChromePath,
		WebDriverURL: cfg.Browser.WebDriverURL,
		UserAgent:    cfg.Browser.UserAgent,
		NavTimeout:   cfg.Browser.NavTimeout,
	}, logger)
	if err != nil {
		return report, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("close browser", "err", err)
		}
	}()

	if cookies, ok := r.Sessions.Load(); ok {
		if err := page.SetCookies(ctx, cookies); err != nil {
			logger.Warn("restore session", "err", err)
		}
	}

	if cfg.Portal.LoginURL == "" {
		report.Login = StateLoginFailed
		r.Shots.Capture(ctx, page, "login_url_missing")
		logger.Error("login failed", "reason", "no login URL configured")
		return report, &LoginFailureError{Reason: "no login URL configured (set AUTOPUNCH_LOGIN_URL)"}
	}

	logger.Info("opening portal", "url", cfg.Portal.LoginURL)
	if err := page.Navigate(ctx, cfg.Portal.LoginURL); err != nil {
		r.Shots.Capture(ctx, page, "navigation_failed")
		return report, asLoginFailure(err)
	}

	timing := TimingFromConfig(cfg.Browser)
	login := &LoginResolver{
		Mode:              cfg.Account.LoginMode,
		Email:             cfg.Account.Email,
		Password:          cfg.Account.Password,
		Headless:          cfg.Browser.Headless,
		Markers:           cfg.Portal.LoginMarkers,
		OAuthSelectors:    SelectorsOr(cfg.Portal.OAuthSelectors, DefaultOAuthSelectors),
		EmailSelectors:    DefaultEmailSelectors,
		NextSelectors:     DefaultNextSelectors,
		PasswordSelectors: DefaultPasswordSelectors,
		SubmitSelectors:   DefaultSubmitSelectors,
		Timing:            timing,
		Sessions:          r.Sessions,
		Shots:             r.Shots,
		Logger:            logger,
		Sleep:             r.Sleep,
	}
	report.Login, err = login.Resolve(ctx, page)
	if err != nil {
		logger.Error("login failed", "state", report.Login.String(), "err", err)
		return report, asLoginFailure(err)
	}

	if cfg.Portal.ActionURL != "" && cfg.Portal.ActionURL != cfg.Portal.LoginURL {
		logger.Info("opening action page", "url", cfg.Portal.ActionURL)
		if err := page.Navigate(ctx, cfg.Portal.ActionURL); err != nil {
			logger.Warn("action page navigation failed, scanning current page", "err", err)
		}
	}

	action := &ActionResolver{
		Selectors: SelectorsOr(cfg.Portal.ActionSelectors, DefaultActionSelectors),
		Timing:    timing,
		Shots:     r.Shots,
		Logger:    logger,
		Sleep:     r.Sleep,
	}
	report.Action, err = action.Perform(ctx, page)
	if err != nil {
		return report, err
	}

	r.Sessions.Save(ctx, page)

	shot := "final"
	if report.Action.Clicked {
		shot = string(report.Action.Action) + "_success"
		logger.Info("run completed", "action", string(report.Action.Action))
	} else {
		logger.Error("run completed without clicking an action control")
	}
	report.Screenshot = r.Shots.Capture(ctx, page, shot)
	return report, nil
}
