package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const pollInterval = 200 * time.Millisecond

type chromePage struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *slog.Logger
}

func openChromedp(ctx context.Context, opts Options, logger *slog.Logger) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1366, 900),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	logger.Debug("starting chrome", "headless", opts.Headless, "profile", opts.ProfileDir, "path", opts.ChromePath)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	startCtx, startCancel := context.WithTimeout(tabCtx, opts.NavTimeout)
	defer startCancel()
	stop := context.AfterFunc(ctx, startCancel)
	defer stop()
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel, navTimeout: opts.NavTimeout, logger: logger}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, p.navTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

func (p *chromePage) Find(ctx context.Context, selector string, wait time.Duration) (Element, error) {
	loc := parseLocator(selector)
	deadline := time.Now().Add(wait)
	script := fmt.Sprintf("!!(%s)", loc.jsLookup())
	for {
		var found bool
		err := p.run(ctx, p.navTimeout, chromedp.Evaluate(script, &found))
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil && found {
			return &chromeElement{page: p, loc: loc}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", selector, ErrNotFound)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (p *chromePage) PressEnter(ctx context.Context) error {
	return p.run(ctx, p.navTimeout, chromedp.KeyEvent(kb.Enter))
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.navTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	var out []Cookie
	err := p.run(ctx, p.navTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			cookie := Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite.String(),
			}
			if !c.Session {
				cookie.Expires = c.Expires
			}
			out = append(out, cookie)
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		params = append(params, param)
	}
	if err := p.run(ctx, p.navTimeout, network.SetCookies(params)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

type chromeElement struct {
	page *chromePage
	loc  locator
}

// node is the JS path every action resolves, so Click acts on the element
// Visible inspected even when the selector matches several.
func (e *chromeElement) node() string {
	return e.loc.jsLookup()
}

func (e *chromeElement) eval(ctx context.Context, body string, res any) error {
	script := fmt.Sprintf("(function(){ const el = %s; %s })()", e.node(), body)
	return e.page.run(ctx, e.page.navTimeout, chromedp.Evaluate(script, res))
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.eval(ctx, `
		if (!el) return false;
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0' && (rect.width > 0 || rect.height > 0);`, &visible)
	return visible, err
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.eval(ctx, `if (!el) return ''; return (el.innerText || el.value || '').trim();`, &text)
	return text, err
}

func (e *chromeElement) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := e.eval(ctx, `return el ? el.outerHTML : '';`, &html)
	return html, err
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	return e.page.run(ctx, e.page.navTimeout, chromedp.ScrollIntoView(e.node(), chromedp.ByJSPath))
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.page.run(ctx, e.page.navTimeout, chromedp.Click(e.node(), chromedp.ByJSPath, chromedp.NodeVisible))
}

func (e *chromeElement) Fill(ctx context.Context, value string) error {
	return e.page.run(ctx, e.page.navTimeout,
		chromedp.Clear(e.node(), chromedp.ByJSPath),
		chromedp.SendKeys(e.node(), value, chromedp.ByJSPath),
	)
}
