// Package normalize canonicalizes response URLs and derives the stable
// endpoint key that collapses distinct URLs differing only in IDs, query
// order, or fragment into one entity. See spec.md §4.2.
package normalize

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Result is the pair returned by URL: the canonical full URL and the
// canonical path alone.
type Result struct {
	NormalizedURL  string
	NormalizedPath string
}

var preserveSegments = map[string]bool{
	"api": true, "v1": true, "v2": true, "v3": true, "v4": true,
	"search": true, "query": true, "list": true, "create": true,
	"update": true, "delete": true, "users": true, "posts": true,
	"items": true, "products": true, "orders": true, "comments": true,
	"auth": true, "login": true, "logout": true, "register": true,
	"admin": true, "public": true, "private": true,
}

var (
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-f]{32,}$`)
	opaquePattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

// URL parses a URL, drops the fragment, sorts query parameters, and
// replaces path segments that look like identifiers with the literal token
// ":id". On parse failure both fields of Result equal the input unchanged.
func URL(raw string) Result {
	u, err := url.Parse(raw)
	if err != nil {
		return Result{NormalizedURL: raw, NormalizedPath: raw}
	}

	u.Fragment = ""

	path := normalizePath(u.Path)
	u.Path = path

	u.RawQuery = sortedQuery(u.Query())

	return Result{
		NormalizedURL:  u.String(),
		NormalizedPath: path,
	}
}

func normalizePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if preserveSegments[strings.ToLower(seg)] {
			continue
		}
		if looksLikeID(seg) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func looksLikeID(seg string) bool {
	return digitsPattern.MatchString(seg) ||
		uuidPattern.MatchString(seg) ||
		hexPattern.MatchString(strings.ToLower(seg)) ||
		opaquePattern.MatchString(seg)
}

// sortedQuery re-serializes query parameters sorted by name, then by value
// for repeated keys, with stable ordering.
func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}

	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	first := true
	for _, name := range names {
		vals := append([]string(nil), q[name]...)
		sort.Strings(vals)
		for _, v := range vals {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// EndpointKey returns "METHOD normalizedPath" with method uppercased.
func EndpointKey(method, normalizedPath string) string {
	return strings.ToUpper(method) + " " + normalizedPath
}
