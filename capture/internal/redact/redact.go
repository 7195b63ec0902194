// Package redact implements the pure redaction functions used before any
// captured header, URL, JSON body, or error string is persisted or logged.
// None of these functions raise: on internal failure they return the input
// unchanged, matching spec.md §4.1's failure semantics.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// sensitiveHeaders is matched case-insensitively. Fixed per spec.md §4.1 —
// no configuration surface widens this set.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
	"x-auth-token":  true,
	"api-key":       true,
}

// sensitiveQueryParams is matched case-insensitively.
var sensitiveQueryParams = map[string]bool{
	"token":     true,
	"key":       true,
	"auth":      true,
	"session":   true,
	"sig":       true,
	"signature": true,
	"apikey":    true,
	"api_key":   true,
}

// sensitiveJSONKeys is matched exactly (case-sensitive), per spec.md §4.1.
var sensitiveJSONKeys = map[string]bool{
	"password":         true,
	"token":            true,
	"secret":           true,
	"email":            true,
	"apiKey":           true,
	"api_key":          true,
	"accessToken":      true,
	"access_token":     true,
	"refreshToken":     true,
	"refresh_token":    true,
}

const maxRedactDepth = 64

// Headers replaces the values of sensitive header names with [REDACTED].
// Keys are preserved in their original case; non-matching entries pass
// through unchanged.
func Headers(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}

	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = placeholder
		} else {
			out[k] = v
		}
	}
	return out
}

// URL redacts sensitive query parameter values, leaving path, host, port,
// and other params intact. On parse failure the input is returned
// unchanged.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	changed := false
	for name := range q {
		if sensitiveQueryParams[strings.ToLower(name)] {
			vals := q[name]
			for i := range vals {
				vals[i] = placeholder
			}
			q[name] = vals
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// JSON recursively walks a parsed JSON value (the tagged {null, bool,
// number, string, []any, map[string]any} variant) and replaces the value of
// any object key in the sensitive set with [REDACTED]. Cyclic structures are
// bounded by a hard depth cap; primitives pass through unchanged.
func JSON(v any) any {
	return redactValue(v, 0)
}

func redactValue(v any, depth int) any {
	if depth >= maxRedactDepth {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveJSONKeys[k] {
				out[k] = placeholder
				continue
			}
			out[k] = redactValue(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val, depth+1)
		}
		return out
	default:
		return v
	}
}

var absPathPattern = regexp.MustCompile(`(?:[A-Za-z]:\\|/(?:home|Users)/)\S*`)

// Error stringifies an error message, truncates it to 200 characters, and
// replaces any absolute filesystem path with [PATH].
func Error(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return absPathPattern.ReplaceAllString(msg, "[PATH]")
}
