package punch

import (
	"context"
	"reflect"
	"testing"
)

func TestFirstVisibleMatchSkipsAbsentAndHidden(t *testing.T) {
	t.Parallel()
	page := newFakePage("https://hr.example.com/home")
	page.add("#hidden", &fakeElement{visible: false})
	want := page.add("#second-visible", &fakeElement{visible: true})
	page.add("#third-visible", &fakeElement{visible: true})

	candidates := []string{"#absent", "#hidden", "#second-visible", "#third-visible"}
	match, err := FirstVisibleMatch(context.Background(), page, "action control", candidates, 0)
	if err != nil {
		t.Fatalf("expected a match: %v", err)
	}
	if match.Selector != "#second-visible" || match.Index != 2 || match.Element != want {
		t.Fatalf("got %+v, want #second-visible at index 2", match)
	}
	if !reflect.DeepEqual(page.finds, []string{"#absent", "#hidden", "#second-visible"}) {
		t.Fatalf("scan order = %v", page.finds)
	}
}

func TestFirstVisibleMatchExhausted(t *testing.T) {
	t.Parallel()
	page := newFakePage("https://hr.example.com/home")
	page.add("#hidden", &fakeElement{visible: false})
	_, err := FirstVisibleMatch(context.Background(), page, "oauth control", []string{"#absent", "#hidden"}, 0)
	if !IsSelectorNotFound(err) {
		t.Fatalf("expected selector not found, got %v", err)
	}
}

func TestFirstVisibleMatchStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := newFakePage("https://hr.example.com/home")
	_, err := FirstVisibleMatch(ctx, page, "action control", []string{"#a", "#b"}, 0)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(page.finds) != 1 {
		t.Fatalf("scan should stop after cancellation, finds = %v", page.finds)
	}
}

func TestIsLoginURL(t *testing.T) {
	t.Parallel()
	markers := []string{"login", "accounts.google.com"}
	if !IsLoginURL("https://hr.example.com/Login?next=/", markers) {
		t.Fatalf("case-insensitive login marker should match")
	}
	if !IsLoginURL("https://accounts.google.com/o/oauth2/auth", markers) {
		t.Fatalf("google accounts should match")
	}
	if IsLoginURL("https://hr.example.com/attendance", markers) {
		t.Fatalf("attendance page is not a login page")
	}
	if IsLoginURL("https://hr.example.com/", []string{" ", ""}) {
		t.Fatalf("blank markers never match")
	}
}

func TestSelectorsOr(t *testing.T) {
	t.Parallel()
	if got := SelectorsOr(nil, DefaultActionSelectors); !reflect.DeepEqual(got, DefaultActionSelectors) {
		t.Fatalf("empty override should use defaults")
	}
	if got := SelectorsOr([]string{"#mine"}, DefaultActionSelectors); !reflect.DeepEqual(got, []string{"#mine"}) {
		t.Fatalf("override should win, got %v", got)
	}
}
