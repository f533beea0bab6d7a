package punch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autopunch/internal/browser"
)

type fakeElement struct {
	visible  bool
	text     string
	html     string
	clickErr error
	onClick  func(p *fakePage)

	page    *fakePage
	clicks  int
	filled  string
	scrolls int
}

func (e *fakeElement) Visible(context.Context) (bool, error) { return e.visible, nil }
func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }
func (e *fakeElement) OuterHTML(context.Context) (string, error) { return e.html, nil }

func (e *fakeElement) ScrollIntoView(context.Context) error {
	e.scrolls++
	return nil
}

func (e *fakeElement) Click(context.Context) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.onClick != nil {
		e.onClick(e.page)
	}
	return nil
}

func (e *fakeElement) Fill(_ context.Context, value string) error {
	e.filled = value
	return nil
}

type fakePage struct {
	url       string
	redirects map[string]string
	elements  map[string]*fakeElement

	finds      []string
	navigated  []string
	entered    bool
	cookiesSet []browser.Cookie
	closed     bool
}

func newFakePage(url string) *fakePage {
	return &fakePage{url: url, redirects: map[string]string{}, elements: map[string]*fakeElement{}}
}

func (p *fakePage) add(selector string, el *fakeElement) *fakeElement {
	el.page = p
	p.elements[selector] = el
	return el
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	if to, ok := p.redirects[url]; ok {
		url = to
	}
	p.url = url
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Find(_ context.Context, selector string, _ time.Duration) (browser.Element, error) {
	p.finds = append(p.finds, selector)
	if el, ok := p.elements[selector]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
}

func (p *fakePage) PressEnter(context.Context) error {
	p.entered = true
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Cookies(context.Context) ([]browser.Cookie, error) {
	return []browser.Cookie{{Name: "sid", Value: "fresh", Domain: "hr.example.com", Path: "/"}}, nil
}

func (p *fakePage) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	p.cookiesSet = append(p.cookiesSet, cookies...)
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

var errClickIntercepted = errors.New("element click intercepted")

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func screenshotsIn(t *testing.T, dir, prefix string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read screenshot dir: %v", err)
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && filepath.Ext(e.Name()) == ".png" {
			out = append(out, e.Name())
		}
	}
	return out
}
