package interstitial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/domlens/apiscout/capture"
)

type fakeFrame struct{ url string }

func (f fakeFrame) URL() string { return f.url }

type fakeHandler struct {
	matches   bool
	matchErr  error
	dismisses bool
	handleErr error
	calledHandle bool
}

func (h *fakeHandler) Match(ctx context.Context, frame capture.Frame) (bool, error) {
	return h.matches, h.matchErr
}

func (h *fakeHandler) Handle(ctx context.Context, frame capture.Frame, action capture.ConsentAction, timeout time.Duration) (bool, error) {
	h.calledHandle = true
	return h.dismisses, h.handleErr
}

func TestDismissAny_StopsAfterFirstSuccess(t *testing.T) {
	r := NewRegistry(nil)
	first := &fakeHandler{matches: true, dismisses: true}
	second := &fakeHandler{matches: true, dismisses: true}
	r.Register("first", first)
	r.Register("second", second)

	frames := []capture.Frame{fakeFrame{url: "https://x.com"}}
	if !r.DismissAny(context.Background(), frames, capture.ActionReject, time.Second) {
		t.Fatal("expected dismissal to succeed")
	}
	if second.calledHandle {
		t.Error("second handler should not run once first dismisses")
	}
}

func TestDismissAny_ContinuesOnMatchError(t *testing.T) {
	r := NewRegistry(nil)
	broken := &fakeHandler{matchErr: errors.New("boom")}
	working := &fakeHandler{matches: true, dismisses: true}
	r.Register("broken", broken)
	r.Register("working", working)

	frames := []capture.Frame{fakeFrame{url: "https://x.com"}}
	if !r.DismissAny(context.Background(), frames, capture.ActionReject, time.Second) {
		t.Fatal("expected dismissal via the working handler")
	}
}

func TestDismissAny_NoMatchReturnsFalse(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("never", &fakeHandler{matches: false})

	frames := []capture.Frame{fakeFrame{url: "https://x.com"}}
	if r.DismissAny(context.Background(), frames, capture.ActionReject, time.Second) {
		t.Fatal("expected no dismissal")
	}
}

func TestDismissAny_MultipleFramesStopsAtFirstDismissal(t *testing.T) {
	r := NewRegistry(nil)
	handler := &fakeHandler{matches: true, dismisses: true}
	r.Register("h", handler)

	frames := []capture.Frame{
		fakeFrame{url: "https://a.com"},
		fakeFrame{url: "https://b.com"},
	}
	if !r.DismissAny(context.Background(), frames, capture.ActionReject, time.Second) {
		t.Fatal("expected dismissal on first frame")
	}
}
