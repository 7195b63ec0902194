// Package capture implements the endpoint-discovery pipeline: it observes
// responses from a browser session, keeps the ones carrying JSON, redacts
// and normalizes them, and rolls the survivors up into a ranked catalog of
// distinct API endpoints for a single run.
package capture

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Value is the tagged JSON value variant every parsed body is reduced to:
// null, bool, number, string, an array of Value, or a string-keyed object of
// Value. Consumers must not assume a richer schema than this.
type Value = any

// Features is a bounded shallow structural fingerprint of one parsed JSON
// body, computed by the FeatureExtractor (internal/feature).
type Features struct {
	IsArray     bool     `json:"isArray"`
	IsObject    bool     `json:"isObject"`
	IsPrimitive bool     `json:"isPrimitive"`
	ArrayLength int      `json:"arrayLength,omitempty"`
	NumKeys     int      `json:"numKeys,omitempty"`
	TopLevelKeys []string `json:"topLevelKeys,omitempty"`
	DepthEstimate int    `json:"depthEstimate"`
	HasID       bool     `json:"hasId"`
	HasItems    bool     `json:"hasItems"`
	HasResults  bool     `json:"hasResults"`
	HasData     bool     `json:"hasData"`
	SamplePaths []string `json:"samplePaths,omitempty"`
	SchemaHash  string   `json:"schemaHash,omitempty"`
}

// CaptureRecord is one observation of one response. See spec invariants (a)-(g)
// for the persistence rules implemented by the classifier, redactor, and
// body store that produce records of this shape.
type CaptureRecord struct {
	Timestamp       string            `json:"timestamp"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Status          int               `json:"status"`
	ContentType     string            `json:"contentType,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	PayloadSize     int               `json:"payloadSize"`
	BodyAvailable   bool              `json:"bodyAvailable"`
	Truncated       bool              `json:"truncated"`
	OmittedReason   string            `json:"omittedReason,omitempty"`
	JSONParseSuccess bool             `json:"jsonParseSuccess"`
	ParseError      string            `json:"parseError,omitempty"`
	BodyHash        string            `json:"bodyHash,omitempty"`
	BodyPath        string            `json:"bodyPath,omitempty"`
	InlineBody      Value             `json:"inlineBody,omitempty"`
	NormalizedURL   string            `json:"normalizedUrl,omitempty"`
	NormalizedPath  string            `json:"normalizedPath,omitempty"`
	EndpointKey     string            `json:"endpointKey"`
	Features        *Features         `json:"features,omitempty"`
}

// Omitted-body reasons. Exactly one is set when a record is metadata-only.
const (
	OmittedMaxBodyBytes = "maxBodyBytes"
	OmittedUnavailable  = "unavailable"
	OmittedNonJSON      = "nonJson"
	OmittedParseError   = "parseError"
	OmittedFiltered     = "filtered"
	OmittedEmptyBody    = "emptyBody"
)

// EndpointAggregate is one entry per stable endpointKey within a run,
// accumulated by the streaming Aggregator.
type EndpointAggregate struct {
	EndpointKey             string         `json:"endpointKey"`
	Count                   int            `json:"count"`
	StatusCounts            map[string]int `json:"statusCounts"`
	Hosts                   []string       `json:"hosts"`
	PayloadSizes            []int          `json:"payloadSizes"`
	SchemaHashes            []string       `json:"schemaHashes"`
	SamplePaths             []string       `json:"samplePaths"`
	FirstSeen               string         `json:"firstSeen"`
	LastSeen                string         `json:"lastSeen"`
	BodyAvailableCount      int            `json:"bodyAvailableCount"`
	JSONParseSuccessCount   int            `json:"jsonParseSuccessCount"`
	NoBodyCount             int            `json:"noBodyCount"`
	HasArrayStructure       bool           `json:"hasArrayStructure"`
	HasDataFlags            bool           `json:"hasDataFlags"`
	AvgDepth                float64        `json:"avgDepth"`

	depthSamples int // running-mean denominator, not persisted
}

// DepthSamples returns the number of depth observations folded into
// AvgDepth so far. Exported for internal/aggregate's running-mean update.
func (e *EndpointAggregate) DepthSamples() int { return e.depthSamples }

// SetDepthSamples updates the running-mean denominator.
func (e *EndpointAggregate) SetDepthSamples(n int) { e.depthSamples = n }

// ScoredEndpoint is an EndpointAggregate plus a deterministic score and
// human-readable reasons, produced by the Scorer.
type ScoredEndpoint struct {
	EndpointAggregate
	Score              float64  `json:"score"`
	Reasons            []string `json:"reasons"`
	AvgPayloadSize     float64  `json:"avgPayloadSize"`
	MaxPayloadSize     int      `json:"maxPayloadSize"`
	DistinctSchemas    int      `json:"distinctSchemas"`
	BodyAvailableRate  float64  `json:"bodyAvailableRate"`
	BodyRate           float64  `json:"bodyRate"`
	BodyEvidenceFactor float64  `json:"bodyEvidenceFactor"`
}

// RunMetadata describes a single run: its identity, target, and a frozen
// snapshot of the effective options used, written once to run.json.
type RunMetadata struct {
	RunID     string  `json:"runId"`
	StartedAt string  `json:"startedAt"`
	URL       string  `json:"url"`
	Options   Options `json:"options"`
}

// ScoringWeights are the fixed, published weights behind Scorer's score,
// embedded in summary.json for reproducibility.
type ScoringWeights struct {
	Frequency   float64 `json:"frequency"`
	PayloadSize float64 `json:"payloadSize"`
	Structure   float64 `json:"structure"`
	Stability   float64 `json:"stability"`
}

// BodyEvidence describes the body-evidence gate parameters embedded in
// summary.json.
type BodyEvidence struct {
	Scale     float64 `json:"scale"`
	MinFactor float64 `json:"minFactor"`
}

// Summary is the top-level summary.json payload written at the end of the
// AGGREGATE stage.
type Summary struct {
	RunID             string           `json:"runId"`
	URL               string           `json:"url"`
	StartedAt         string           `json:"startedAt"`
	CompletedAt       string           `json:"completedAt"`
	CaptureDir        string           `json:"captureDir"`
	TotalResponses    int              `json:"totalResponses"`
	JSONCaptures      int              `json:"jsonCaptures"`
	DuplicatesSkipped int              `json:"duplicatesSkipped"`
	TotalEndpoints    int              `json:"totalEndpoints"`
	ScoringWeights    ScoringWeights   `json:"scoringWeights"`
	BodyEvidence      BodyEvidence     `json:"bodyEvidence"`
	Endpoints         []ScoredEndpoint `json:"endpoints"`
}

// MarshalRecord serializes a CaptureRecord to a single JSON line (no
// trailing newline).
func MarshalRecord(r *CaptureRecord) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord deserializes a single CaptureRecord line.
func UnmarshalRecord(data []byte) (*CaptureRecord, error) {
	var r CaptureRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarshalScoredEndpoint serializes a ScoredEndpoint to a single JSON line.
func MarshalScoredEndpoint(e *ScoredEndpoint) ([]byte, error) {
	return json.Marshal(e)
}

// HashBytes returns the SHA-256 hex digest of raw bytes, matching invariant
// (c): identical rawBytes always produce identical digests.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return fmt.Sprintf("%x", h)
}
