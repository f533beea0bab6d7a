package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBarkNotifierPostsForm(t *testing.T) {
	t.Parallel()
	var got http.Header
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"title": r.PostForm.Get("title"),
			"body":  r.PostForm.Get("body"),
			"group": r.PostForm.Get("group"),
			"level": r.PostForm.Get("level"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bark, err := NewBarkNotifier(srv.URL + "/devicekey/")
	if err != nil {
		t.Fatalf("new bark: %v", err)
	}
	if err := bark.Send(context.Background(), "autopunch checkin failed", "exit status 1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", got.Get("Content-Type"))
	}
	want := map[string]string{"title": "autopunch checkin failed", "body": "exit status 1", "group": "autopunch", "level": "timeSensitive"}
	for k, v := range want {
		if form[k] != v {
			t.Fatalf("%s = %q, want %q", k, form[k], v)
		}
	}
}

func TestBarkNotifierReportsStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	bark, err := NewBarkNotifier(srv.URL)
	if err != nil {
		t.Fatalf("new bark: %v", err)
	}
	if err := bark.Send(context.Background(), "t", "b"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if _, err := NewBarkNotifier("  "); err == nil {
		t.Fatalf("empty url should be rejected")
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(context.Context, string, string) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiNotifierContinuesAfterError(t *testing.T) {
	t.Parallel()
	first, second := &failingNotifier{}, &failingNotifier{}
	err := NewMultiNotifier(first, second).Send(context.Background(), "t", "b")
	if err == nil || first.calls != 1 || second.calls != 1 {
		t.Fatalf("err=%v calls=%d/%d", err, first.calls, second.calls)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if n := FromConfig("https://api.day.app/key", false, logger); n.Len() != 0 {
		t.Fatalf("disabled bark should not be wired")
	}
	if n := FromConfig("", true, logger); n.Len() != 0 {
		t.Fatalf("bark without url should be skipped")
	}
	if n := FromConfig("https://api.day.app/key", true, logger); n.Len() != 1 {
		t.Fatalf("bark should be wired")
	}
}
