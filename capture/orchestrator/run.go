package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/domlens/apiscout/capture"
	"github.com/domlens/apiscout/capture/internal/bodystore"
	"github.com/domlens/apiscout/capture/internal/classify"
	"github.com/domlens/apiscout/capture/internal/feature"
	"github.com/domlens/apiscout/capture/internal/journal"
	"github.com/domlens/apiscout/capture/internal/normalize"
	"github.com/domlens/apiscout/capture/internal/redact"
)

// run holds the mutable state of a single orchestrator invocation: the
// dedup set, counters, and the collaborators a worker task needs. The
// dedup set and counters are updated only from inside limiter workers, per
// spec.md §5's single-owner rule; the orchestrator goroutine itself only
// sets closing (via close) and reads the counters for logging and for the
// summary.
type run struct {
	limits classify.Limits
	store  *bodystore.Store
	log    *journal.Log

	mu                sync.Mutex
	seen              map[string]bool
	persistedCount    int
	totalResponses    int
	jsonCaptures      int
	duplicatesSkipped int

	closing bool
}

func newRun(limits classify.Limits, store *bodystore.Store, log *journal.Log) *run {
	return &run{
		limits: limits,
		store:  store,
		log:    log,
		seen:   make(map[string]bool),
	}
}

// close marks the run as closing; responses observed afterward are dropped
// silently by handleResponse, per spec.md §4.8.
func (r *run) close() {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
}

// handleResponse is the task body submitted to the limiter for every
// response event received during CAPTURE_WINDOW. It never returns an error
// that would fail the run: per-response failures are caught here and
// recorded as metadata-only outcomes, per spec.md §7.
func (r *run) handleResponse(ev capture.ResponseEvent) error {
	r.mu.Lock()
	closing := r.closing
	r.mu.Unlock()
	if closing {
		return nil
	}

	r.mu.Lock()
	r.totalResponses++
	persistedSoFar := r.persistedCount
	r.mu.Unlock()

	obs := classify.Observation{
		ResourceType:  ev.ResourceType,
		URL:           ev.URL,
		Method:        ev.Method,
		Status:        ev.Status,
		ContentLength: ev.ContentLength,
	}
	if ev.Headers != nil {
		if headers, err := ev.Headers(); err == nil {
			obs.ContentType = headers["content-type"]
			if obs.ContentType == "" {
				obs.ContentType = headers["Content-Type"]
			}
		}
	}

	decision := classify.Classify(obs, r.limits, persistedSoFar)
	switch decision.Verdict {
	case classify.VerdictDrop:
		return nil
	case classify.VerdictMetadataOnly:
		return r.persist(buildMetadataRecord(ev, obs, decision.Reason))
	}

	raw, readErr := ev.Body()
	outcome := classify.ParseBody(raw, readErr, isJSONContentType(obs.ContentType), r.limits, redact.Error)
	if outcome.Verdict == classify.VerdictMetadataOnly {
		rec := buildMetadataRecord(ev, obs, outcome.Reason)
		rec.Truncated = outcome.Truncated
		rec.ParseError = outcome.ParseError
		rec.BodyAvailable = readErr == nil
		if len(raw) > 0 {
			rec.BodyHash = capture.HashBytes(raw)
		}
		return r.persist(rec)
	}

	return r.persistParsed(ev, obs, raw, outcome.Value)
}

func (r *run) persistParsed(ev capture.ResponseEvent, obs classify.Observation, raw []byte, parsed any) error {
	norm := normalize.URL(ev.URL)
	endpointKey := normalize.EndpointKey(ev.Method, norm.NormalizedPath)
	if endpointKey == "" || norm.NormalizedPath == "" {
		endpointKey = normalize.EndpointKey(ev.Method, redact.URL(ev.URL))
	}

	redacted := redact.JSON(parsed)
	feat := feature.Extract(parsed)
	bodyHash := capture.HashBytes(raw)

	rec := &capture.CaptureRecord{
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		Method:           ev.Method,
		URL:              redact.URL(ev.URL),
		Status:           ev.Status,
		ContentType:      obs.ContentType,
		PayloadSize:      len(raw),
		BodyAvailable:    true,
		JSONParseSuccess: true,
		BodyHash:         bodyHash,
		NormalizedURL:    norm.NormalizedURL,
		NormalizedPath:   norm.NormalizedPath,
		EndpointKey:      endpointKey,
		Features:         feat,
	}
	if headers, err := ev.Headers(); err == nil {
		rec.ResponseHeaders = redact.Headers(headers)
	}

	dedupKey := fmt.Sprintf("%s\x00%d\x00%s", rec.EndpointKey, rec.Status, rec.BodyHash)

	r.mu.Lock()
	if r.seen[dedupKey] {
		r.duplicatesSkipped++
		r.mu.Unlock()
		return nil
	}
	r.seen[dedupKey] = true
	r.jsonCaptures++
	r.persistedCount++
	r.mu.Unlock()

	placement := r.store.Place(raw, redacted)
	rec.BodyHash = placement.Hash
	if placement.InlineBody != nil {
		rec.InlineBody = placement.InlineBody
	} else if placement.BodyPath != "" {
		rec.BodyPath = placement.BodyPath
	} else if placement.OmittedReason != "" {
		rec.OmittedReason = placement.OmittedReason
		rec.InlineBody = nil
	}

	return r.log.Append(rec)
}

func (r *run) persist(rec *capture.CaptureRecord) error {
	dedupKey := fmt.Sprintf("%s\x00%d\x00%s", rec.EndpointKey, rec.Status, rec.BodyHash)

	r.mu.Lock()
	if r.seen[dedupKey] {
		r.duplicatesSkipped++
		r.mu.Unlock()
		return nil
	}
	r.seen[dedupKey] = true
	r.persistedCount++
	r.mu.Unlock()
	return r.log.Append(rec)
}

func buildMetadataRecord(ev capture.ResponseEvent, obs classify.Observation, reason string) *capture.CaptureRecord {
	norm := normalize.URL(ev.URL)
	endpointKey := normalize.EndpointKey(ev.Method, norm.NormalizedPath)

	rec := &capture.CaptureRecord{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Method:         ev.Method,
		URL:            redact.URL(ev.URL),
		Status:         ev.Status,
		ContentType:    obs.ContentType,
		OmittedReason:  reason,
		Truncated:      reason == classify.ReasonEmptyBody,
		NormalizedURL:  norm.NormalizedURL,
		NormalizedPath: norm.NormalizedPath,
		EndpointKey:    endpointKey,
	}
	return rec
}

func isJSONContentType(contentType string) bool {
	lower := strings.ToLower(contentType)
	for _, want := range []string{"application/json", "application/ld+json", "application/hal+json", "application/vnd.api+json"} {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}
