// Package classify implements the JSON-gating decision the orchestrator's
// workers apply to each observed response, per spec.md §4.4. Classify covers
// the pre-read gates (cap, include/exclude, resource type, status); ParseBody
// covers the post-read outcome (read failure, oversize, parse success or
// failure). The package is deliberately independent of the capture package's
// data model so the orchestrator can freely import it; callers translate
// Decision/ReadOutcome into their own persisted record shape.
package classify

import (
	"encoding/json"
	"regexp"
	"strings"
)

var jsonContentTypes = []string{
	"application/json",
	"application/ld+json",
	"application/hal+json",
	"application/vnd.api+json",
}

// Reason values, matching the capture.Omitted* string constants by literal
// value so callers can assign them directly into a CaptureRecord.
const (
	ReasonMaxBodyBytes = "maxBodyBytes"
	ReasonUnavailable  = "unavailable"
	ReasonNonJSON      = "nonJson"
	ReasonParseError   = "parseError"
	ReasonFiltered     = "filtered"
	ReasonEmptyBody    = "emptyBody"
)

// Observation is the raw signal available before any body is read.
type Observation struct {
	ResourceType  string
	URL           string
	Method        string
	Status        int
	ContentType   string
	ContentLength int64 // -1 if the response did not declare one
}

// Limits is the subset of configuration Classify and ParseBody need.
type Limits struct {
	MaxCaptures    int
	MaxBodyBytes   int64
	CaptureAllJSON bool
	IncludeRegex   *regexp.Regexp
	ExcludeRegex   *regexp.Regexp
}

// Verdict is what the caller should do next with an Observation.
type Verdict int

const (
	// VerdictDrop means no record is persisted; no side effect.
	VerdictDrop Verdict = iota
	// VerdictMetadataOnly means persist a record with no body, Reason set.
	VerdictMetadataOnly
	// VerdictReadBody means proceed to read and parse the body.
	VerdictReadBody
)

// Decision is the result of Classify.
type Decision struct {
	Verdict Verdict
	Reason  string // one of the Reason* constants, set iff VerdictMetadataOnly
}

// Classify applies gates 1 through 7 of spec.md §4.4. persistedCount is the
// number of records already persisted in the current window, used for the
// maxCaptures gate.
func Classify(obs Observation, limits Limits, persistedCount int) Decision {
	if limits.MaxCaptures > 0 && persistedCount >= limits.MaxCaptures {
		return Decision{Verdict: VerdictDrop}
	}
	if limits.IncludeRegex != nil && !limits.IncludeRegex.MatchString(obs.URL) {
		return Decision{Verdict: VerdictDrop}
	}
	if limits.ExcludeRegex != nil && limits.ExcludeRegex.MatchString(obs.URL) {
		return Decision{Verdict: VerdictDrop}
	}
	if !keepsByType(obs.ResourceType, obs.ContentType, limits.CaptureAllJSON) {
		return Decision{Verdict: VerdictDrop}
	}
	if obs.Status < 200 || obs.Status >= 400 {
		return Decision{Verdict: VerdictDrop}
	}
	if obs.Status == 204 || obs.Status == 304 {
		return Decision{Verdict: VerdictMetadataOnly, Reason: ReasonEmptyBody}
	}
	if obs.ContentLength >= 0 && obs.ContentLength > limits.MaxBodyBytes {
		return Decision{Verdict: VerdictMetadataOnly, Reason: ReasonMaxBodyBytes}
	}
	return Decision{Verdict: VerdictReadBody}
}

func keepsByType(resourceType, contentType string, captureAllJSON bool) bool {
	if isJSONContentType(contentType) {
		return true
	}
	if captureAllJSON {
		return false
	}
	rt := strings.ToLower(resourceType)
	return rt == "xhr" || rt == "fetch"
}

func isJSONContentType(contentType string) bool {
	lower := strings.ToLower(contentType)
	for _, want := range jsonContentTypes {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}

// ReadOutcome is the result of ParseBody: either a parsed value with no
// reason set, or a metadata-only outcome with a reason and possibly a
// redacted error string.
type ReadOutcome struct {
	Verdict    Verdict
	Reason     string
	Truncated  bool
	ParseError string
	Value      any
}

// ParseBody implements gate 8: given the raw bytes (or a read error),
// decide the final per-record outcome. readErr should be the error from
// the body-read call, or nil on success. contentTypeIsJSON should reflect
// the declared content-type at read time. redactErr is applied to any
// error surfaced in ParseError, per spec.md §7's redaction choke point.
func ParseBody(raw []byte, readErr error, contentTypeIsJSON bool, limits Limits, redactErr func(error) string) ReadOutcome {
	if readErr != nil {
		return ReadOutcome{Verdict: VerdictMetadataOnly, Reason: ReasonUnavailable, ParseError: redactErr(readErr)}
	}
	if int64(len(raw)) > limits.MaxBodyBytes {
		return ReadOutcome{Verdict: VerdictMetadataOnly, Reason: ReasonMaxBodyBytes, Truncated: true}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		if contentTypeIsJSON || limits.CaptureAllJSON {
			return ReadOutcome{Verdict: VerdictMetadataOnly, Reason: ReasonParseError, ParseError: redactErr(err)}
		}
		return ReadOutcome{Verdict: VerdictMetadataOnly, Reason: ReasonNonJSON}
	}
	return ReadOutcome{Verdict: VerdictReadBody, Value: v}
}
