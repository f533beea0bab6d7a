package punch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autopunch/internal/browser"
	"autopunch/internal/config"
	"autopunch/internal/session"
)

// LoginState is the login resolver's progress.
type LoginState int

const (
	StateUnknown LoginState = iota
	StateAlreadyAuthenticated
	StateNeedsLogin
	StateLoginInProgress
	StateAuthenticated
	StateLoginFailed
)

func (s LoginState) String() string {
	switch s {
	case StateAlreadyAuthenticated:
		return "already_authenticated"
	case StateNeedsLogin:
		return "needs_login"
	case StateLoginInProgress:
		return "login_in_progress"
	case StateAuthenticated:
		return "authenticated"
	case StateLoginFailed:
		return "login_failed"
	default:
		return "unknown"
	}
}

// Timing holds the fixed waits of a run.
type Timing struct {
	SelectorWait  time.Duration
	Settle        time.Duration
	LoginSettle   time.Duration
	ManualGrace   time.Duration
	ExtendedGrace time.Duration
}

// TimingFromConfig derives run timings from browser settings.
func TimingFromConfig(b config.BrowserConfig) Timing {
	return Timing{
		SelectorWait:  b.SelectorWait,
		Settle:        b.SettleDelay,
		LoginSettle:   2 * b.SettleDelay,
		ManualGrace:   b.ManualGrace,
		ExtendedGrace: 2 * b.ManualGrace,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SessionSaver persists the session after a fresh login.
type SessionSaver interface {
	Save(ctx context.Context, src session.CookieSource)
}

// LoginResolver brings the page from an unknown state to an authenticated one.
type LoginResolver struct {
	Mode     config.LoginMode
	Email    string
	Password string
	Headless bool
	Markers  []string

	OAuthSelectors    []string
	EmailSelectors    []string
	NextSelectors     []string
	PasswordSelectors []string
	SubmitSelectors   []string

	Timing   Timing
	Sessions SessionSaver
	Shots    *Screenshotter
	Logger   *slog.Logger
	Sleep    SleepFunc

	state LoginState
}

// State returns the last state reached.
func (r *LoginResolver) State() LoginState { return r.state }

func (r *LoginResolver) transition(to LoginState) {
	r.Logger.Debug("login state", "from", r.state.String(), "to", to.String())
	r.state = to
}

func (r *LoginResolver) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// Resolve authenticates page if needed. A returned error is always a
// *LoginFailureError or a context error.
func (r *LoginResolver) Resolve(ctx context.Context, page browser.Page) (LoginState, error) {
	r.state = StateUnknown
	current, err := page.URL(ctx)
	if err != nil {
		r.transition(StateLoginFailed)
		return r.state, &LoginFailureError{Reason: "cannot read page address", Err: err}
	}
	if !IsLoginURL(current, r.Markers) {
		r.transition(StateAlreadyAuthenticated)
		r.Logger.Info("already logged in, skipping login", "url", current)
		return r.state, nil
	}

	r.transition(StateNeedsLogin)
	r.Logger.Info("login required", "url", current, "mode", string(r.Mode))
	if r.Mode == config.LoginModeOAuth {
		if err := r.loginOAuth(ctx, page); err != nil {
			return r.state, err
		}
	} else {
		if err := r.loginCredentials(ctx, page); err != nil {
			return r.state, err
		}
	}

	if err := r.sleep(ctx, r.Timing.LoginSettle); err != nil {
		return r.state, err
	}
	return r.verify(ctx, page)
}

func (r *LoginResolver) loginOAuth(ctx context.Context, page browser.Page) error {
	match, err := FirstVisibleMatch(ctx, page, "oauth control", r.OAuthSelectors, r.Timing.SelectorWait)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Logger.Error("oauth control not found", "err", err)
		r.Shots.Capture(ctx, page, "oauth_not_found")
		if r.Headless {
			r.transition(StateLoginFailed)
			url, _ := page.URL(ctx)
			return &LoginFailureError{URL: url, Reason: "no oauth control matched in headless mode", Err: err}
		}
		r.Logger.Warn("complete the login in the browser window", "grace", r.Timing.ManualGrace)
		return r.sleep(ctx, r.Timing.ManualGrace)
	}
	r.Logger.Info("clicking oauth control", "selector", match.Selector)
	if err := match.Element.Click(ctx); err != nil {
		r.Logger.Warn("oauth click failed", "selector", match.Selector, "err", err)
		return nil
	}
	r.transition(StateLoginInProgress)
	return nil
}

func (r *LoginResolver) loginCredentials(ctx context.Context, page browser.Page) error {
	email, err := FirstVisibleMatch(ctx, page, "email input", r.EmailSelectors, r.Timing.SelectorWait)
	if err != nil {
		return r.missingControl(ctx, page, "email_not_found", err)
	}
	if err := email.Element.Fill(ctx, r.Email); err != nil {
		r.Logger.Warn("fill email", "selector", email.Selector, "err", err)
	}

	if next, err := FirstVisibleMatch(ctx, page, "next button", r.NextSelectors, r.Timing.SelectorWait/3); err == nil {
		r.Logger.Debug("clicking next", "selector", next.Selector)
		if err := next.Element.Click(ctx); err != nil {
			r.Logger.Warn("click next", "selector", next.Selector, "err", err)
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := r.sleep(ctx, r.Timing.Settle); err != nil {
		return err
	}

	password, err := FirstVisibleMatch(ctx, page, "password input", r.PasswordSelectors, r.Timing.SelectorWait)
	if err != nil {
		return r.missingControl(ctx, page, "password_not_found", err)
	}
	if err := password.Element.Fill(ctx, r.Password); err != nil {
		r.Logger.Warn("fill password", "selector", password.Selector, "err", err)
	}

	if submit, err := FirstVisibleMatch(ctx, page, "submit button", r.SubmitSelectors, r.Timing.SelectorWait); err == nil {
		r.Logger.Info("submitting login form", "selector", submit.Selector)
		if err := submit.Element.Click(ctx); err != nil {
			r.Logger.Warn("click submit", "selector", submit.Selector, "err", err)
		}
	} else {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Logger.Info("no submit control, pressing enter")
		if err := page.PressEnter(ctx); err != nil {
			r.Logger.Warn("press enter", "err", err)
		}
	}
	r.transition(StateLoginInProgress)
	return nil
}

// missingControl records an exhausted credential selector list. The address
// check that follows decides whether the run fails.
func (r *LoginResolver) missingControl(ctx context.Context, page browser.Page, shot string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.Logger.Error("login control not found", "err", err)
	r.Shots.Capture(ctx, page, shot)
	return nil
}

func (r *LoginResolver) verify(ctx context.Context, page browser.Page) (LoginState, error) {
	current, err := page.URL(ctx)
	if err != nil {
		r.transition(StateLoginFailed)
		return r.state, &LoginFailureError{Reason: "cannot read page address after login", Err: err}
	}
	if IsLoginURL(current, r.Markers) {
		r.Shots.Capture(ctx, page, "login_failed")
		if r.Mode == config.LoginModeOAuth && !r.Headless {
			r.Logger.Warn("still on login page, waiting for manual completion", "url", current, "grace", r.Timing.ExtendedGrace)
			if err := r.sleep(ctx, r.Timing.ExtendedGrace); err != nil {
				return r.state, err
			}
			current, err = page.URL(ctx)
			if err != nil {
				r.transition(StateLoginFailed)
				return r.state, &LoginFailureError{Reason: "cannot read page address after grace window", Err: err}
			}
		}
		if IsLoginURL(current, r.Markers) {
			r.transition(StateLoginFailed)
			return r.state, &LoginFailureError{URL: current, Reason: "still on login page"}
		}
	}

	r.transition(StateAuthenticated)
	r.Logger.Info("login succeeded", "url", current)
	if r.Sessions != nil {
		r.Sessions.Save(ctx, page)
	}
	return r.state, nil
}

// asLoginFailure converts navigation timeouts during login into a login failure.
func asLoginFailure(err error) error {
	if err == nil || IsLoginFailure(err) {
		return err
	}
	if errors.Is(err, browser.ErrNavigationTimeout) {
		return &LoginFailureError{Reason: "navigation timed out", Err: err}
	}
	return err
}
