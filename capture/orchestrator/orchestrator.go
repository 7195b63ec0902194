// Package orchestrator implements the RunOrchestrator state machine of
// spec.md §4.8: it drives a capture.BrowserSession through navigation, an
// optional interstitial dismissal, a bounded capture window, and finally
// aggregation into a scored endpoint catalog. It is the top of the
// dependency graph — the only package that wires the classifier, redactor,
// normalizer, feature extractor, body store, journal, limiter, and
// interstitial registry together — so it lives outside the leaf capture
// package to avoid importing back into it.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/domlens/apiscout/capture"
	"github.com/domlens/apiscout/capture/internal/aggregate"
	"github.com/domlens/apiscout/capture/internal/bodystore"
	"github.com/domlens/apiscout/capture/internal/classify"
	"github.com/domlens/apiscout/capture/internal/interstitial"
	"github.com/domlens/apiscout/capture/internal/journal"
	"github.com/domlens/apiscout/capture/internal/limiter"
	"github.com/domlens/apiscout/idgen"
)

const waitIdleTimeout = 5 * time.Second

// Deps are the collaborators the orchestrator drives; all are optional
// except Session, which is required to reach LAUNCH.
type Deps struct {
	Session       capture.BrowserSession
	Interstitials *interstitial.Registry
	Flow          capture.FlowFunc
	Logger        *slog.Logger
}

// NewInterstitialRegistry returns an empty interstitial registry ready for
// Register calls. Exposed here so callers outside the capture module tree
// (e.g. cmd/apiscout) can build a Deps.Interstitials value without reaching
// into capture/internal/interstitial directly.
func NewInterstitialRegistry(logger *slog.Logger) *interstitial.Registry {
	return interstitial.NewRegistry(logger)
}

// Orchestrator runs one capture per Run call. It holds no mutable
// cross-run state, per spec.md §9's "safe for back-to-back runs" note.
type Orchestrator struct {
	opts   capture.Options
	deps   Deps
	logger *slog.Logger
}

// New validates opts and returns an Orchestrator ready to Run.
func New(opts capture.Options, deps Deps) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Session == nil {
		return nil, &capture.ConfigError{Reason: "a BrowserSession is required"}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, deps: deps, logger: logger}, nil
}

// Result is what Run returns: the run directory and, unless
// disableSummary was set, the computed summary.
type Result struct {
	RunDir  string
	Summary *capture.Summary
}

// Run executes the full state machine described in spec.md §4.8 and
// returns once DONE (or FAILED, as a non-nil error) is reached.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now().UTC()
	runID := runIdentifier(startedAt)
	runDir := filepath.Join(o.opts.OutDir, runID)
	log := o.logger.With("runId", runID, "url", o.opts.URL)

	if !o.opts.Watch {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.TimeoutDuration())
		defer cancel()
	}

	jlog, err := journal.Open(runDir, capture.RunMetadata{
		RunID:     runID,
		StartedAt: startedAt.Format(time.RFC3339Nano),
		URL:       o.opts.URL,
		Options:   o.opts,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: launch: open journal: %w", err)
	}

	lim, err := limiter.New(o.opts.MaxConcurrentCaptures)
	if err != nil {
		jlog.Close()
		return nil, fmt.Errorf("orchestrator: launch: %w", err)
	}

	store := bodystore.New(runDir, o.opts.MaxBodyBytes, o.opts.InlineBodyBytes)
	r := newRun(classify.Limits{
		MaxCaptures:    o.opts.MaxCaptures,
		MaxBodyBytes:   o.opts.MaxBodyBytes,
		CaptureAllJSON: o.opts.CaptureAllJSON,
		IncludeRegex:   o.opts.CompiledIncludeRegex(),
		ExcludeRegex:   o.opts.CompiledExcludeRegex(),
	}, store, jlog)

	log.Info("orchestrator: launch")
	_, page, closeAll, err := o.launch(ctx, log)
	if err != nil {
		jlog.Close()
		return o.failAndAggregate(runDir, jlog, startedAt, log, fmt.Errorf("orchestrator: launch: %w", err))
	}
	defer closeAll()

	if err := o.navigate(ctx, page, log); err != nil {
		jlog.Close()
		return o.failAndAggregate(runDir, jlog, startedAt, log, fmt.Errorf("orchestrator: navigate: %w", err))
	}

	o.dismissInterstitial(ctx, page, log)

	o.waitTargetHost(ctx, page, log)

	if err := o.waitIdle(ctx, page, log); err != nil {
		log.Warn("orchestrator: wait_idle failed, continuing", "error", err)
	}

	if o.deps.Flow != nil {
		if err := o.runFlow(ctx, page, log); err != nil {
			log.Warn("orchestrator: flow failed, continuing", "error", err)
		}
	}

	log.Info("orchestrator: capture_window start", "monitorMs", o.opts.MonitorMs)
	unsubscribe := page.OnResponse(func(ev capture.ResponseEvent) {
		lim.Submit(func() error { return r.handleResponse(ev) })
	})

	select {
	case <-time.After(o.opts.MonitorDuration()):
	case <-ctx.Done():
	}
	unsubscribe()
	r.close()
	log.Info("orchestrator: capture_window end", "totalResponses", r.totalResponses)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), o.opts.DrainDeadline(time.Since(startedAt)))
	drained := make(chan struct{})
	go func() { lim.Drain(); close(drained) }()
	select {
	case <-drained:
	case <-drainCtx.Done():
		log.Warn("orchestrator: drain deadline exceeded, abandoning outstanding tasks")
	}
	cancelDrain()

	closeAll()
	if err := jlog.Close(); err != nil {
		log.Warn("orchestrator: close journal failed", "error", err)
	}

	result := &Result{RunDir: runDir}
	if o.opts.DisableSummary {
		log.Info("orchestrator: done", "summary", "disabled")
		return result, nil
	}

	summary, err := o.aggregate(runDir, runID, startedAt, r)
	if err != nil {
		return result, fmt.Errorf("orchestrator: aggregate: %w", err)
	}
	result.Summary = summary
	log.Info("orchestrator: done", "totalEndpoints", summary.TotalEndpoints, "jsonCaptures", summary.JSONCaptures)
	return result, nil
}

// failAndAggregate implements spec.md §7's "browser-launch/navigation
// fatal" policy: attempt CLOSE, run AGGREGATE against whatever journal
// exists so partial captures remain usable, then surface the error.
func (o *Orchestrator) failAndAggregate(runDir string, jlog *journal.Log, startedAt time.Time, log *slog.Logger, cause error) (*Result, error) {
	log.Error("orchestrator: fatal", "error", cause)
	result := &Result{RunDir: runDir}
	if o.opts.DisableSummary {
		return result, cause
	}
	summary, aggErr := o.aggregateFromDisk(runDir, filepath.Base(runDir), startedAt)
	if aggErr != nil {
		return result, cause
	}
	result.Summary = summary
	return result, cause
}

func (o *Orchestrator) launch(ctx context.Context, log *slog.Logger) (capture.Context, capture.Page, func(), error) {
	browserCtx, err := o.deps.Session.NewContext(ctx, capture.ContextOptions{
		UserAgent:        o.opts.UserAgent,
		StorageStatePath: o.opts.StorageStatePath,
	})
	if err != nil {
		return nil, nil, func() {}, fmt.Errorf("new context: %w", err)
	}

	page, err := browserCtx.NewPage(ctx)
	if err != nil {
		browserCtx.Close()
		return nil, nil, func() {}, fmt.Errorf("new page: %w", err)
	}

	closeAll := func() {
		page.Close()
		if o.opts.SaveStorageState {
			if _, err := browserCtx.StorageState(ctx, o.opts.SaveSessionPath); err != nil {
				log.Warn("orchestrator: save storage state failed", "error", err)
			}
		}
		browserCtx.Close()
	}

	return browserCtx, page, closeAll, nil
}

func (o *Orchestrator) navigate(ctx context.Context, page capture.Page, log *slog.Logger) error {
	log.Info("orchestrator: navigate")
	return page.Goto(ctx, o.opts.URL, capture.LoadStateDOMContentLoaded, o.opts.TimeoutDuration())
}

func (o *Orchestrator) dismissInterstitial(ctx context.Context, page capture.Page, log *slog.Logger) {
	if o.deps.Interstitials == nil || o.opts.ConsentMode == capture.ConsentOff {
		return
	}
	dismissed := o.deps.Interstitials.DismissAny(ctx, page.Frames(), o.opts.ConsentAction, waitIdleTimeout)
	if dismissed {
		log.Info("orchestrator: interstitial dismissed")
		if err := page.WaitForLoadState(ctx, capture.LoadStateDOMContentLoaded, waitIdleTimeout); err != nil {
			log.Warn("orchestrator: post-interstitial wait failed", "error", err)
		}
	}
}

func (o *Orchestrator) waitTargetHost(ctx context.Context, page capture.Page, log *slog.Logger) {
	targetHost := hostOf(o.opts.URL)
	if targetHost == "" {
		return
	}
	err := page.WaitForURL(ctx, func(candidateURL string) bool {
		return strings.Contains(hostOf(candidateURL), targetHost) || hostOf(candidateURL) == targetHost
	}, waitIdleTimeout)
	if err != nil {
		log.Warn("orchestrator: wait_target_host failed, continuing", "error", err)
	}
}

func (o *Orchestrator) waitIdle(ctx context.Context, page capture.Page, log *slog.Logger) error {
	log.Info("orchestrator: wait_idle")
	return page.WaitForLoadState(ctx, capture.LoadStateNetworkIdle, waitIdleTimeout)
}

func (o *Orchestrator) runFlow(ctx context.Context, page capture.Page, log *slog.Logger) error {
	log.Info("orchestrator: flow start")
	flowCtx, cancel := context.WithTimeout(ctx, o.opts.TimeoutDuration())
	defer cancel()
	return o.deps.Flow(flowCtx, page)
}

// aggregate streams the just-closed journal, scores endpoints, and writes
// summary.json + endpoints.jsonl.
func (o *Orchestrator) aggregate(runDir, runID string, startedAt time.Time, r *run) (*capture.Summary, error) {
	summary, err := aggregateJournal(runDir, runID, o.opts.URL, startedAt, r.totalResponses, r.jsonCaptures, r.duplicatesSkipped)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// aggregateFromDisk is used on the fatal-failure path, where the in-memory
// run counters may not reflect what actually landed in the journal. Without
// a live run, the true observed-response count (including responses
// classify.Classify dropped before persistence) is unrecoverable from the
// journal alone, so it falls back to the persisted-record count.
func (o *Orchestrator) aggregateFromDisk(runDir, runID string, startedAt time.Time) (*capture.Summary, error) {
	return aggregateJournal(runDir, runID, o.opts.URL, startedAt, -1, -1, -1)
}

func aggregateJournal(runDir, runID, pageURL string, startedAt time.Time, totalResponses, jsonCaptures, duplicatesSkipped int) (*capture.Summary, error) {
	builder := aggregate.NewBuilder()
	var readErr error
	if err := journal.ReadIndex(runDir, func(rec *capture.CaptureRecord) {
		builder.Add(rec)
	}); err != nil {
		readErr = err
	}
	if readErr != nil {
		return nil, readErr
	}

	scored := aggregate.Rank(builder.Aggregates(), builder.TotalCaptures())

	if totalResponses < 0 {
		totalResponses = builder.TotalCaptures()
	}
	if jsonCaptures < 0 {
		jsonCaptures = 0
		for _, s := range scored {
			jsonCaptures += s.JSONParseSuccessCount
		}
	}
	if duplicatesSkipped < 0 {
		duplicatesSkipped = 0
	}

	top := scored
	if len(top) > 20 {
		top = top[:20]
	}

	summary := &capture.Summary{
		RunID:             runID,
		URL:               pageURL,
		StartedAt:         startedAt.Format(time.RFC3339Nano),
		CompletedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		CaptureDir:        runDir,
		TotalResponses:    totalResponses,
		JSONCaptures:      jsonCaptures,
		DuplicatesSkipped: duplicatesSkipped,
		TotalEndpoints:    len(scored),
		ScoringWeights:    aggregate.Weights,
		BodyEvidence:      aggregate.Evidence,
		Endpoints:         top,
	}

	if err := writeSummary(runDir, summary); err != nil {
		return nil, err
	}
	if err := writeEndpoints(runDir, scored); err != nil {
		return nil, err
	}

	return summary, nil
}

func writeSummary(runDir string, summary *capture.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "summary.json"), data, 0o644)
}

func writeEndpoints(runDir string, scored []capture.ScoredEndpoint) error {
	f, err := os.Create(filepath.Join(runDir, "endpoints.jsonl"))
	if err != nil {
		return fmt.Errorf("create endpoints.jsonl: %w", err)
	}
	defer f.Close()

	for i := range scored {
		line, err := capture.MarshalScoredEndpoint(&scored[i])
		if err != nil {
			return fmt.Errorf("marshal endpoint %d: %w", i, err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write endpoint %d: %w", i, err)
		}
	}
	return nil
}

func runIdentifier(t time.Time) string {
	ts := strings.ReplaceAll(t.Format(time.RFC3339), ":", "-")
	return ts + "-" + idgen.Hex(8)()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
