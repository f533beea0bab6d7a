package punch

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"autopunch/internal/browser"
)

// Action is the attendance action a control performs.
type Action string

const (
	ActionCheckIn  Action = "check-in"
	ActionCheckOut Action = "check-out"
)

// ActionResult describes what the action resolver did.
type ActionResult struct {
	Clicked   bool
	Action    Action
	Selector  string
	Label     string
	PostLabel string
}

// ActionResolver finds and clicks the check-in/check-out control.
type ActionResolver struct {
	Selectors []string
	Timing    Timing
	Shots     *Screenshotter
	Logger    *slog.Logger
	Sleep     SleepFunc
}

// Perform clicks the first visible action control. An exhausted selector
// list is logged and screenshotted but not returned as an error; only
// context cancellation is.
func (r *ActionResolver) Perform(ctx context.Context, page browser.Page) (ActionResult, error) {
	remaining := r.Selectors
	offset := 0
	for len(remaining) > 0 {
		match, err := FirstVisibleMatch(ctx, page, "action control", remaining, r.Timing.SelectorWait)
		if err != nil {
			if ctx.Err() != nil {
				return ActionResult{}, ctx.Err()
			}
			break
		}
		result, ok := r.invoke(ctx, match)
		if ok {
			return result, nil
		}
		if ctx.Err() != nil {
			return ActionResult{}, ctx.Err()
		}
		offset += match.Index + 1
		remaining = r.Selectors[offset:]
	}

	r.Logger.Error("action control not found", "err", &SelectorNotFoundError{Purpose: "action control", Candidates: r.Selectors})
	r.Shots.Capture(ctx, page, "action_not_found")
	return ActionResult{}, nil
}

func (r *ActionResolver) invoke(ctx context.Context, match Match) (ActionResult, bool) {
	el := match.Element
	html, err := el.OuterHTML(ctx)
	if err != nil {
		r.Logger.Debug("read action html", "selector", match.Selector, "err", err)
	}
	label := Label(html)
	if label == "" {
		if text, err := el.Text(ctx); err == nil {
			label = strings.TrimSpace(text)
		}
	}
	action := Classify(label)
	r.Logger.Info("found action control", "selector", match.Selector, "label", label, "action", string(action))

	if err := el.ScrollIntoView(ctx); err != nil {
		r.Logger.Debug("scroll into view", "selector", match.Selector, "err", err)
	}
	if err := el.Click(ctx); err != nil {
		r.Logger.Warn("click action control", "selector", match.Selector, "err", err)
		return ActionResult{}, false
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	_ = sleep(ctx, r.Timing.Settle)

	post, err := el.Text(ctx)
	if err != nil {
		r.Logger.Debug("read post-click text", "selector", match.Selector, "err", err)
	}
	post = strings.TrimSpace(post)
	r.Logger.Info("clicked action control", "action", string(action), "before", label, "after", post)
	return ActionResult{
		Clicked:   true,
		Action:    action,
		Selector:  match.Selector,
		Label:     label,
		PostLabel: post,
	}, true
}

// Label extracts the visible text and aria-label of an element's outer
// HTML. A button-like input shows its value as text.
func Label(outerHTML string) string {
	if strings.TrimSpace(outerHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return ""
	}
	el := doc.Find("body").Children().First()
	if el.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	parts := []string{strings.Join(strings.Fields(el.Text()), " ")}
	if el.Is("input") {
		if v, ok := el.Attr("value"); ok && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if v, ok := el.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
		parts = append(parts, strings.TrimSpace(v))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

var checkOutWords = map[string]bool{"out": true, "checkout": true, "clockout": true, "signout": true, "punchout": true}

// Classify maps a control label to an action, defaulting to check-in.
// Only whole words count, so "layout" or "timeout" say nothing.
func Classify(label string) Action {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if checkOutWords[w] {
			return ActionCheckOut
		}
	}
	return ActionCheckIn
}
