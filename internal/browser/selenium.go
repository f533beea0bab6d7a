package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tebeka/selenium"
)

// seleniumPage talks to an already running WebDriver endpoint (chromedriver
// or a Selenium grid).
type seleniumPage struct {
	wd      selenium.WebDriver
	logger  *slog.Logger
	pending []Cookie
}

func openSelenium(ctx context.Context, opts Options, logger *slog.Logger) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := []string{"--disable-gpu", "--window-size=1366,900"}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		args = append(args, "--user-data-dir="+opts.ProfileDir)
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent="+opts.UserAgent)
	}
	chromeOpts := map[string]interface{}{"args": args}
	if opts.ChromePath != "" {
		chromeOpts["binary"] = opts.ChromePath
	}
	caps := selenium.Capabilities{
		"browserName":        "chrome",
		"goog:chromeOptions": chromeOpts,
	}

	logger.Debug("connecting to webdriver", "url", opts.WebDriverURL, "headless", opts.Headless)
	wd, err := selenium.NewRemote(caps, opts.WebDriverURL)
	if err != nil {
		return nil, fmt.Errorf("start selenium session: %w", err)
	}
	if err := wd.SetPageLoadTimeout(opts.NavTimeout); err != nil {
		logger.Warn("set page load timeout", "err", err)
	}
	return &seleniumPage{wd: wd, logger: logger}, nil
}

func (p *seleniumPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.wd.Get(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	// WebDriver only accepts cookies for the current document's domain.
	if len(p.pending) > 0 {
		cookies := p.pending
		p.pending = nil
		for _, c := range cookies {
			sc := &selenium.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
				Secure: c.Secure,
			}
			if c.Expires > 0 {
				sc.Expiry = uint(c.Expires)
			}
			if err := p.wd.AddCookie(sc); err != nil {
				p.logger.Debug("skip cookie", "name", c.Name, "domain", c.Domain, "err", err)
			}
		}
		if err := p.wd.Refresh(); err != nil {
			return fmt.Errorf("reload with restored cookies: %w", err)
		}
	}
	return nil
}

func (p *seleniumPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.wd.CurrentURL()
}

func (p *seleniumPage) Find(ctx context.Context, selector string, wait time.Duration) (Element, error) {
	loc := parseLocator(selector)
	by := selenium.ByCSSSelector
	if loc.kind == kindXPath {
		by = selenium.ByXPATH
	}
	var found selenium.WebElement
	cond := func(wd selenium.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		we, err := wd.FindElement(by, loc.expr)
		if err != nil {
			return false, nil
		}
		found = we
		return true, nil
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	if err := p.wd.WaitWithTimeoutAndInterval(cond, wait, pollInterval); err != nil || found == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return &seleniumElement{we: found}, nil
}

func (p *seleniumPage) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	active, err := p.wd.ActiveElement()
	if err != nil {
		return fmt.Errorf("active element: %w", err)
	}
	return active.SendKeys(selenium.EnterKey)
}

func (p *seleniumPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := p.wd.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *seleniumPage) Cookies(ctx context.Context) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cookies, err := p.wd.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Secure:  c.Secure,
			Expires: float64(c.Expiry),
		})
	}
	return out, nil
}

// SetCookies queues cookies until the next Navigate puts the tab on a domain.
func (p *seleniumPage) SetCookies(_ context.Context, cookies []Cookie) error {
	p.pending = append(p.pending, cookies...)
	return nil
}

func (p *seleniumPage) Close() error {
	return p.wd.Quit()
}

type seleniumElement struct {
	we selenium.WebElement
}

func (e *seleniumElement) Visible(context.Context) (bool, error) {
	return e.we.IsDisplayed()
}

func (e *seleniumElement) Text(context.Context) (string, error) {
	return e.we.Text()
}

func (e *seleniumElement) OuterHTML(context.Context) (string, error) {
	return e.we.GetAttribute("outerHTML")
}

func (e *seleniumElement) ScrollIntoView(context.Context) error {
	// LocationInView scrolls the element into view as a side effect.
	_, err := e.we.LocationInView()
	return err
}

func (e *seleniumElement) Click(context.Context) error {
	return e.we.Click()
}

func (e *seleniumElement) Fill(_ context.Context, value string) error {
	if err := e.we.Clear(); err != nil {
		return err
	}
	return e.we.SendKeys(value)
}
