package classify

import (
	"errors"
	"regexp"
	"testing"
)

func TestClassify_MaxCapturesGate(t *testing.T) {
	limits := Limits{MaxCaptures: 2, MaxBodyBytes: 1 << 20}
	obs := Observation{ResourceType: "xhr", Status: 200}
	d := Classify(obs, limits, 2)
	if d.Verdict != VerdictDrop {
		t.Errorf("expected drop at cap, got %v", d.Verdict)
	}
}

func TestClassify_IncludeExcludeRegex(t *testing.T) {
	limits := Limits{
		MaxBodyBytes: 1 << 20,
		IncludeRegex: regexp.MustCompile(`/api/`),
		ExcludeRegex: regexp.MustCompile(`/health`),
	}
	keep := Observation{ResourceType: "xhr", Status: 200, URL: "https://x.com/api/users"}
	if d := Classify(keep, limits, 0); d.Verdict != VerdictReadBody {
		t.Errorf("expected read-body for included URL, got %v", d.Verdict)
	}
	notIncluded := Observation{ResourceType: "xhr", Status: 200, URL: "https://x.com/other"}
	if d := Classify(notIncluded, limits, 0); d.Verdict != VerdictDrop {
		t.Errorf("expected drop for non-included URL, got %v", d.Verdict)
	}
	excluded := Observation{ResourceType: "xhr", Status: 200, URL: "https://x.com/api/health"}
	if d := Classify(excluded, limits, 0); d.Verdict != VerdictDrop {
		t.Errorf("expected drop for excluded URL, got %v", d.Verdict)
	}
}

func TestClassify_ResourceTypeOrContentType(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	xhr := Observation{ResourceType: "xhr", Status: 200, ContentType: "text/html"}
	if d := Classify(xhr, limits, 0); d.Verdict != VerdictReadBody {
		t.Errorf("expected xhr to pass regardless of content-type, got %v", d.Verdict)
	}
	jsonDoc := Observation{ResourceType: "document", Status: 200, ContentType: "application/json; charset=utf-8"}
	if d := Classify(jsonDoc, limits, 0); d.Verdict != VerdictReadBody {
		t.Errorf("expected json content-type to pass, got %v", d.Verdict)
	}
	nonJSONDoc := Observation{ResourceType: "document", Status: 200, ContentType: "text/html"}
	if d := Classify(nonJSONDoc, limits, 0); d.Verdict != VerdictDrop {
		t.Errorf("expected non-xhr non-json document to drop, got %v", d.Verdict)
	}
}

func TestClassify_CaptureAllJSONDropsResourceTypeGate(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20, CaptureAllJSON: true}
	xhrNonJSON := Observation{ResourceType: "xhr", Status: 200, ContentType: "text/html"}
	if d := Classify(xhrNonJSON, limits, 0); d.Verdict != VerdictDrop {
		t.Errorf("captureAllJson should require json content-type even for xhr, got %v", d.Verdict)
	}
	scriptJSON := Observation{ResourceType: "script", Status: 200, ContentType: "application/json"}
	if d := Classify(scriptJSON, limits, 0); d.Verdict != VerdictReadBody {
		t.Errorf("captureAllJson should keep any resource type with json content-type, got %v", d.Verdict)
	}
}

func TestClassify_NonSuccessStatusDropped(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	obs := Observation{ResourceType: "xhr", Status: 500}
	if d := Classify(obs, limits, 0); d.Verdict != VerdictDrop {
		t.Errorf("expected drop for 500 status, got %v", d.Verdict)
	}
}

func TestClassify_EmptyBodyStatus(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	obs := Observation{ResourceType: "xhr", Status: 204}
	d := Classify(obs, limits, 0)
	if d.Verdict != VerdictMetadataOnly || d.Reason != ReasonEmptyBody {
		t.Errorf("expected metadata-only emptyBody, got %+v", d)
	}
}

func TestClassify_ContentLengthExceedsMaxBodyBytes(t *testing.T) {
	limits := Limits{MaxBodyBytes: 10}
	obs := Observation{ResourceType: "xhr", Status: 200, ContentLength: 100}
	d := Classify(obs, limits, 0)
	if d.Verdict != VerdictMetadataOnly || d.Reason != ReasonMaxBodyBytes {
		t.Errorf("expected metadata-only maxBodyBytes, got %+v", d)
	}
}

func TestClassify_NoDeclaredContentLengthSkipsPreReadGate(t *testing.T) {
	limits := Limits{MaxBodyBytes: 10}
	obs := Observation{ResourceType: "xhr", Status: 200, ContentLength: -1}
	d := Classify(obs, limits, 0)
	if d.Verdict != VerdictReadBody {
		t.Errorf("expected read-body when content-length is undeclared, got %+v", d)
	}
}

func TestParseBody_ReadFailure(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	out := ParseBody(nil, errors.New("boom"), true, limits, func(err error) string { return err.Error() })
	if out.Verdict != VerdictMetadataOnly || out.Reason != ReasonUnavailable {
		t.Errorf("expected unavailable outcome, got %+v", out)
	}
}

func TestParseBody_OversizeAfterRead(t *testing.T) {
	limits := Limits{MaxBodyBytes: 4}
	out := ParseBody([]byte(`{"a":1}`), nil, true, limits, func(err error) string { return err.Error() })
	if out.Verdict != VerdictMetadataOnly || out.Reason != ReasonMaxBodyBytes || !out.Truncated {
		t.Errorf("expected truncated maxBodyBytes outcome, got %+v", out)
	}
}

func TestParseBody_ParseSuccess(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	out := ParseBody([]byte(`{"id":1}`), nil, true, limits, func(err error) string { return err.Error() })
	if out.Verdict != VerdictReadBody {
		t.Fatalf("expected successful parse verdict, got %+v", out)
	}
	m, ok := out.Value.(map[string]any)
	if !ok || m["id"] != float64(1) {
		t.Errorf("unexpected parsed value: %#v", out.Value)
	}
}

func TestParseBody_ParseFailureJSONContentType(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	out := ParseBody([]byte(`not json`), nil, true, limits, func(err error) string { return err.Error() })
	if out.Verdict != VerdictMetadataOnly || out.Reason != ReasonParseError {
		t.Errorf("expected parseError outcome, got %+v", out)
	}
}

func TestParseBody_ParseFailureNonJSONContentType(t *testing.T) {
	limits := Limits{MaxBodyBytes: 1 << 20}
	out := ParseBody([]byte(`not json`), nil, false, limits, func(err error) string { return err.Error() })
	if out.Verdict != VerdictMetadataOnly || out.Reason != ReasonNonJSON {
		t.Errorf("expected nonJson outcome, got %+v", out)
	}
}
