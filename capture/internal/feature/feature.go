// Package feature computes a bounded, shallow structural fingerprint of a
// parsed JSON body. All bounds are hard caps: the extractor never produces
// output proportional to unbounded input size. See spec.md §4.3.
package feature

import (
	"crypto/sha256"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/domlens/apiscout/capture"
)

const (
	maxDepth         = 3
	maxKeysPerObject = 50
	maxSamplePaths   = 100
	maxTopLevelKeys  = 20
	softBudget       = 100 * time.Millisecond
)

var dataLikenessID = map[string]bool{"id": true, "_id": true, "uuid": true}
var dataLikenessItems = map[string]bool{"items": true, "results": true, "data": true, "list": true}
var dataLikenessResults = map[string]bool{"results": true}
var dataLikenessData = map[string]bool{"data": true}

// Extract computes a Features record for v, a parsed JSON value in the
// {null, bool, number, string, []any, map[string]any} variant. Deterministic
// for a given input, modulo the wall-clock escape hatch: if the soft budget
// is exceeded mid-walk, Extract returns whatever it has computed so far.
func Extract(v capture.Value) *capture.Features {
	deadline := time.Now().Add(softBudget)
	f := &capture.Features{}

	switch t := v.(type) {
	case []any:
		f.IsArray = true
		f.ArrayLength = len(t)
		if len(t) > 0 {
			elem := t[0]
			switch elem.(type) {
			case map[string]any, []any:
				var out []string
				walk(elem, "[0]", 1, maxDepth, newVisited(), deadline, &out)
				f.SamplePaths = out
				f.DepthEstimate = depthOf(elem, 1, maxDepth, newVisited(), deadline)
			}
		}
	case map[string]any:
		f.IsObject = true
		f.NumKeys = len(t)
		keys := sortedKeys(t)
		if len(keys) > maxTopLevelKeys {
			keys = keys[:maxTopLevelKeys]
		}
		f.TopLevelKeys = keys
		f.SchemaHash = schemaHash(keys)
		f.HasID = anyKeyMatches(t, dataLikenessID)
		f.HasItems = anyKeyMatches(t, dataLikenessItems)
		f.HasResults = anyKeyMatches(t, dataLikenessResults)
		f.HasData = anyKeyMatches(t, dataLikenessData)
		f.DepthEstimate = depthOf(t, 0, maxDepth, newVisited(), deadline)
		f.SamplePaths = samplePaths(t, deadline)
	default:
		f.IsPrimitive = true
		f.DepthEstimate = 0
	}

	return f
}

func anyKeyMatches(m map[string]any, set map[string]bool) bool {
	for k := range m {
		if set[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

// sortedKeys returns every key of m in sorted order. Callers that need a
// bounded subset must truncate the sorted result themselves — truncating
// before sorting would sample an arbitrary subset on each call, since Go's
// map iteration order is randomized.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cappedKeys returns the sorted keys of m, truncated to maxKeysPerObject.
// Used wherever recursion or iteration must be bounded but the bound has to
// land on a deterministic subset.
func cappedKeys(m map[string]any) []string {
	keys := sortedKeys(m)
	if len(keys) > maxKeysPerObject {
		keys = keys[:maxKeysPerObject]
	}
	return keys
}

func schemaHash(sortedTopKeys []string) string {
	h := sha256.Sum256([]byte(strings.Join(sortedTopKeys, "|")))
	return fmt.Sprintf("%x", h)
}

// newVisited returns the identity set used to make depth computation and
// path walking safe against cyclic structures. Keyed by the reflect pointer
// of maps/slices, since composite JSON values decoded by encoding/json never
// share backing storage across branches unless a caller constructed the
// value by hand.
func newVisited() map[uintptr]bool {
	return make(map[uintptr]bool)
}

func identity(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

func depthOf(v any, depth, depthCap int, visited map[uintptr]bool, deadline time.Time) int {
	if depth >= depthCap || time.Now().After(deadline) {
		return depth
	}
	if id, ok := identity(v); ok {
		if visited[id] {
			return depth
		}
		visited[id] = true
	}

	switch t := v.(type) {
	case map[string]any:
		best := depth
		for _, k := range cappedKeys(t) {
			if d := depthOf(t[k], depth+1, depthCap, visited, deadline); d > best {
				best = d
			}
		}
		return best
	case []any:
		best := depth
		for i, val := range t {
			if i >= maxKeysPerObject {
				break
			}
			if d := depthOf(val, depth+1, depthCap, visited, deadline); d > best {
				best = d
			}
		}
		return best
	default:
		return depth
	}
}

func samplePaths(m map[string]any, deadline time.Time) []string {
	var out []string
	walk(m, "", 0, maxDepth, newVisited(), deadline, &out)
	return out
}

// walk performs the bounded depth-first traversal that produces samplePaths:
// dotted keys for object fields, "[0]" for the first (and only) descended
// array element, one path per leaf.
func walk(v any, path string, depth, depthCap int, visited map[uintptr]bool, deadline time.Time, out *[]string) {
	if len(*out) >= maxSamplePaths || time.Now().After(deadline) {
		return
	}
	if id, ok := identity(v); ok {
		if visited[id] {
			return
		}
		visited[id] = true
	}

	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			*out = append(*out, path)
			return
		}
		if depth >= depthCap {
			*out = append(*out, path)
			return
		}
		keys := cappedKeys(t)
		for _, k := range keys {
			if len(*out) >= maxSamplePaths {
				return
			}
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			walk(t[k], childPath, depth+1, depthCap, visited, deadline, out)
		}
	case []any:
		if len(t) == 0 {
			*out = append(*out, path)
			return
		}
		if depth >= depthCap {
			*out = append(*out, path+"[0]")
			return
		}
		walk(t[0], path+"[0]", depth+1, depthCap, visited, deadline, out)
	default:
		*out = append(*out, path)
	}
}
