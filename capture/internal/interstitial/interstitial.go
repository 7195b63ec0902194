// Package interstitial provides the default InterstitialHandler registry the
// orchestrator drives during the INTERSTITIAL state. See SPEC_FULL.md §4.10.
package interstitial

import (
	"context"
	"log/slog"
	"time"

	"github.com/domlens/apiscout/capture"
)

// Registry holds named InterstitialHandlers and implements the "iterate
// frames x handlers, stop after first successful dismissal" rule from
// spec.md §6.
type Registry struct {
	logger   *slog.Logger
	names    []string
	handlers map[string]capture.InterstitialHandler
}

// NewRegistry returns an empty Registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, handlers: make(map[string]capture.InterstitialHandler)}
}

// Register adds a named handler. Registration order determines the order
// handlers are tried within a frame.
func (r *Registry) Register(name string, h capture.InterstitialHandler) {
	if _, exists := r.handlers[name]; !exists {
		r.names = append(r.names, name)
	}
	r.handlers[name] = h
}

// DismissAny iterates frames x registered handlers and stops as soon as one
// handler reports a successful dismissal. Match/Handle errors are logged
// and treated as "did not dismiss", never fatal — consistent with spec.md
// §7's "interstitial failure: logged, run continues".
func (r *Registry) DismissAny(ctx context.Context, frames []capture.Frame, action capture.ConsentAction, timeout time.Duration) bool {
	for _, frame := range frames {
		for _, name := range r.names {
			h := r.handlers[name]
			matched, err := h.Match(ctx, frame)
			if err != nil {
				r.logger.Warn("interstitial: match failed", "handler", name, "frame", frame.URL(), "err", err)
				continue
			}
			if !matched {
				continue
			}
			dismissed, err := h.Handle(ctx, frame, action, timeout)
			if err != nil {
				r.logger.Warn("interstitial: handle failed", "handler", name, "frame", frame.URL(), "err", err)
				continue
			}
			if dismissed {
				r.logger.Info("interstitial: dismissed", "handler", name, "frame", frame.URL())
				return true
			}
		}
	}
	return false
}
