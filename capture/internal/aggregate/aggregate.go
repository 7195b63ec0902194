// Package aggregate implements the Aggregator and Scorer: a streaming
// per-endpoint rollup of a run's journal and the deterministic weighted
// score derived from it, per spec.md §4.9.
package aggregate

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/domlens/apiscout/capture"
)

// Fixed, published scoring weights (spec.md §4.9). Sum to 1.0.
var Weights = capture.ScoringWeights{
	Frequency:   0.30,
	PayloadSize: 0.30,
	Structure:   0.20,
	Stability:   0.20,
}

// BodyEvidence gate parameters, embedded in summary.json.
var Evidence = capture.BodyEvidence{Scale: 1.5, MinFactor: 0.05}

// Builder accumulates CaptureRecords into per-endpoint aggregates. The zero
// value is ready to use.
type Builder struct {
	order []string
	byKey map[string]*capture.EndpointAggregate

	total int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byKey: make(map[string]*capture.EndpointAggregate)}
}

// Add folds one CaptureRecord into its endpoint's aggregate. Falls back to
// the (already redacted) URL as the grouping key when endpointKey is empty,
// per spec.md §4.8's AGGREGATE description.
func (b *Builder) Add(r *capture.CaptureRecord) {
	b.total++
	if b.byKey == nil {
		b.byKey = make(map[string]*capture.EndpointAggregate)
	}

	key := r.EndpointKey
	if key == "" {
		key = r.URL
	}

	agg, ok := b.byKey[key]
	if !ok {
		agg = &capture.EndpointAggregate{
			EndpointKey:  key,
			StatusCounts: make(map[string]int),
		}
		b.byKey[key] = agg
		b.order = append(b.order, key)
	}

	agg.Count++
	agg.StatusCounts[fmt.Sprintf("%d", r.Status)]++

	if host := hostOf(r.URL); host != "" {
		appendUnique(&agg.Hosts, host)
	}
	if r.PayloadSize > 0 {
		agg.PayloadSizes = append(agg.PayloadSizes, r.PayloadSize)
	}
	if r.Features != nil && r.Features.SchemaHash != "" {
		appendUnique(&agg.SchemaHashes, r.Features.SchemaHash)
	}
	if r.Features != nil {
		for _, p := range r.Features.SamplePaths {
			appendUnique(&agg.SamplePaths, p)
		}
	}

	if agg.FirstSeen == "" || r.Timestamp < agg.FirstSeen {
		agg.FirstSeen = r.Timestamp
	}
	if r.Timestamp > agg.LastSeen {
		agg.LastSeen = r.Timestamp
	}

	if r.BodyAvailable {
		agg.BodyAvailableCount++
	}
	if r.JSONParseSuccess {
		agg.JSONParseSuccessCount++
	}
	if !r.BodyAvailable {
		agg.NoBodyCount++
	}

	if r.Features != nil {
		if r.Features.IsArray {
			agg.HasArrayStructure = true
		}
		if r.Features.HasID || r.Features.HasItems || r.Features.HasResults || r.Features.HasData {
			agg.HasDataFlags = true
		}
		if r.Features.DepthEstimate > 0 {
			runningMeanAdd(agg, float64(r.Features.DepthEstimate))
		}
	}
}

// TotalCaptures is the number of records folded in so far, used by Score's
// frequency term.
func (b *Builder) TotalCaptures() int { return b.total }

// Aggregates returns the accumulated aggregates in first-seen-endpoint
// order.
func (b *Builder) Aggregates() []*capture.EndpointAggregate {
	out := make([]*capture.EndpointAggregate, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.byKey[k])
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func appendUnique(list *[]string, v string) {
	for _, existing := range *list {
		if existing == v {
			return
		}
	}
	*list = append(*list, v)
}

// runningMeanAdd folds one more depth sample into the aggregate's running
// mean, using the unexported sample counter kept alongside AvgDepth.
func runningMeanAdd(agg *capture.EndpointAggregate, v float64) {
	n := agg.DepthSamples() + 1
	agg.AvgDepth += (v - agg.AvgDepth) / float64(n)
	agg.SetDepthSamples(n)
}

// Score computes a ScoredEndpoint from an aggregate, per spec.md §4.9's
// exact formula.
func Score(agg *capture.EndpointAggregate, totalCaptures int) capture.ScoredEndpoint {
	var avgPayload float64
	maxPayload := 0
	for _, s := range agg.PayloadSizes {
		avgPayload += float64(s)
		if s > maxPayload {
			maxPayload = s
		}
	}
	if len(agg.PayloadSizes) > 0 {
		avgPayload /= float64(len(agg.PayloadSizes))
	}

	distinctSchemas := len(agg.SchemaHashes)

	frequencyScore := min1(float64(agg.Count)/float64(max1(totalCaptures))*3) * Weights.Frequency
	sizeScore := min1(avgPayload/10000) * Weights.PayloadSize

	structureScore := 0.0
	if agg.HasArrayStructure {
		structureScore += 0.5
	}
	if agg.HasDataFlags {
		structureScore += 0.5
	}
	structureScore = clamp(structureScore, 0, 1) * Weights.Structure

	var stabilityScore float64
	if distinctSchemas != 0 {
		stabilityScore = maxf(1-0.2*float64(distinctSchemas-1), 0.2) * Weights.Stability
	}

	raw := frequencyScore + sizeScore + structureScore + stabilityScore

	var bodyRate float64
	if agg.Count > 0 {
		bodyRate = float64(agg.JSONParseSuccessCount) / float64(agg.Count)
	}
	bodyEvidenceFactor := maxf(Evidence.MinFactor, min1(bodyRate*Evidence.Scale))

	score := clamp(raw*bodyEvidenceFactor, 0, 1)

	bodyAvailableRate := 0.0
	if agg.Count > 0 {
		bodyAvailableRate = float64(agg.BodyAvailableCount) / float64(agg.Count)
	}

	return capture.ScoredEndpoint{
		EndpointAggregate:  *agg,
		Score:              score,
		Reasons:            reasons(agg, totalCaptures, avgPayload, distinctSchemas, bodyRate),
		AvgPayloadSize:     avgPayload,
		MaxPayloadSize:     maxPayload,
		DistinctSchemas:    distinctSchemas,
		BodyAvailableRate:  bodyAvailableRate,
		BodyRate:           bodyRate,
		BodyEvidenceFactor: bodyEvidenceFactor,
	}
}

func reasons(agg *capture.EndpointAggregate, totalCaptures int, avgPayload float64, distinctSchemas int, bodyRate float64) []string {
	var out []string

	freqRatio := float64(agg.Count) / float64(max1(totalCaptures))
	if freqRatio*3 >= 0.5 {
		pct := freqRatio * 100
		out = append(out, fmt.Sprintf("high frequency (%d/%d, %.0f%%)", agg.Count, totalCaptures, pct))
	}
	if avgPayload >= 5000 {
		out = append(out, fmt.Sprintf("large payload (avg %.0f bytes)", avgPayload))
	}
	if agg.HasArrayStructure {
		out = append(out, "has array structure")
	}
	if agg.HasDataFlags {
		out = append(out, "has data-like fields")
	}
	if distinctSchemas == 1 {
		out = append(out, "stable schema (1 variant)")
	} else if distinctSchemas > 1 {
		out = append(out, fmt.Sprintf("unstable schema (%d variants)", distinctSchemas))
	}
	if bodyRate >= 0.66 {
		out = append(out, fmt.Sprintf("strong JSON body evidence (%d/%d, %.0f%%)", agg.JSONParseSuccessCount, agg.Count, bodyRate*100))
	} else if bodyRate < 0.34 {
		out = append(out, fmt.Sprintf("weak JSON body evidence (%d/%d, %.0f%%)", agg.JSONParseSuccessCount, agg.Count, bodyRate*100))
	}

	return out
}

// Rank scores every aggregate, sorts by score desc then count desc, and
// returns the full ordered list.
func Rank(aggs []*capture.EndpointAggregate, totalCaptures int) []capture.ScoredEndpoint {
	scored := make([]capture.ScoredEndpoint, 0, len(aggs))
	for _, a := range aggs {
		scored = append(scored, Score(a, totalCaptures))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Count > scored[j].Count
	})
	return scored
}

func min1(v float64) float64 { return clamp(v, 0, 1) }
func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
