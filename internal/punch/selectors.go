package punch

import (
	"context"
	"strings"
	"time"

	"autopunch/internal/browser"
)

// Built-in selector lists, tried in order when no override is configured.
var (
	DefaultOAuthSelectors = []string{
		"a[href*='accounts.google.com']",
		"button[data-provider='google']",
		"#google-login",
		".google-login",
		"[aria-label*='Google']",
		"text=Sign in with Google",
		"text=Continue with Google",
		"text=Login with Google",
		"text=Google",
	}
	DefaultEmailSelectors = []string{
		"input[type='email']",
		"input[name='email']",
		"input[name='username']",
		"input[id*='email']",
		"input[name='login']",
		"input[type='text']",
	}
	DefaultNextSelectors = []string{
		"#identifierNext",
		"button[id*='next']",
		"text=Next",
		"text=Continue",
	}
	DefaultPasswordSelectors = []string{
		"input[type='password']",
		"input[name='password']",
		"input[id*='password']",
	}
	DefaultSubmitSelectors = []string{
		"button[type='submit']",
		"input[type='submit']",
		"text=Sign in",
		"text=Log in",
		"text=Login",
	}
	DefaultActionSelectors = []string{
		"button[id*='check']",
		"button[class*='check']",
		"[data-testid*='check']",
		"button[class*='punch']",
		"text=Check In",
		"text=Check Out",
		"text=Check-in",
		"text=Check-out",
		"text=Clock In",
		"text=Clock Out",
	}
)

// SelectorsOr returns override when non-empty, else def.
func SelectorsOr(override, def []string) []string {
	if len(override) > 0 {
		return override
	}
	return def
}

// Match is the element chosen by FirstVisibleMatch.
type Match struct {
	Element  browser.Element
	Selector string
	Index    int
}

// FirstVisibleMatch tries candidates strictly in order and returns the first
// one that both exists and is visible. Absent or hidden matches are skipped.
func FirstVisibleMatch(ctx context.Context, page browser.Page, purpose string, candidates []string, wait time.Duration) (Match, error) {
	for i, sel := range candidates {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		el, err := page.Find(ctx, sel, wait)
		if err != nil {
			if ctx.Err() != nil {
				return Match{}, ctx.Err()
			}
			continue
		}
		visible, err := el.Visible(ctx)
		if err != nil || !visible {
			continue
		}
		return Match{Element: el, Selector: sel, Index: i}, nil
	}
	return Match{}, &SelectorNotFoundError{Purpose: purpose, Candidates: candidates}
}

// IsLoginURL reports whether url contains any of the login markers.
func IsLoginURL(url string, markers []string) bool {
	lower := strings.ToLower(url)
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
