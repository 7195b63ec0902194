package browser

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/domlens/apiscout/capture"
)

// watchResponses subscribes to page's network traffic over CDP and delivers
// a capture.ResponseEvent for every response received. Generalizes the
// CDP event-subscription shape used for DOM-domain mutation events to the
// network domain: enable the domain, correlate request/response pairs by
// RequestID, and hand the caller a lazy Headers/Body reader rather than
// eagerly fetching either.
func watchResponses(page *rod.Page, handler func(capture.ResponseEvent)) (unsubscribe func(), err error) {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("browser: enable network domain: %w", err)
	}

	var mu sync.Mutex
	methods := make(map[proto.NetworkRequestID]string)

	stop := page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			mu.Lock()
			methods[e.RequestID] = e.Request.Method
			mu.Unlock()
		},
		func(e *proto.NetworkResponseReceived) {
			mu.Lock()
			method := methods[e.RequestID]
			delete(methods, e.RequestID)
			mu.Unlock()
			if method == "" {
				method = "GET"
			}

			requestID := e.RequestID
			resp := e.Response

			handler(capture.ResponseEvent{
				URL:           resp.URL,
				Status:        resp.Status,
				Method:        method,
				ResourceType:  strings.ToLower(string(e.Type)),
				ContentLength: contentLengthOf(resp.Headers),
				Headers:       headersFunc(resp.Headers),
				Body:          bodyFunc(page, requestID),
			})
		},
	)

	go stop()

	// rod has no per-subscription cancel; the event loop ends when the page
	// closes. Callers that need early cutoff rely on the closing flag
	// upstream (the orchestrator's run.close), not on unsubscribe.
	return func() {}, nil
}

func contentLengthOf(headers proto.NetworkHeaders) int64 {
	for k, v := range headers {
		if strings.EqualFold(k, "content-length") {
			var n int64
			if _, err := fmt.Sscanf(fmt.Sprint(v), "%d", &n); err == nil {
				return n
			}
		}
	}
	return -1
}

func headersFunc(headers proto.NetworkHeaders) func() (map[string]string, error) {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(headers))
		for k, v := range headers {
			out[k] = fmt.Sprint(v)
		}
		return out, nil
	}
}

func bodyFunc(page *rod.Page, requestID proto.NetworkRequestID) func() ([]byte, error) {
	return func() ([]byte, error) {
		result, err := proto.NetworkGetResponseBody{RequestID: requestID}.Call(page)
		if err != nil {
			return nil, fmt.Errorf("browser: get response body: %w", err)
		}
		if result.Base64Encoded {
			return base64.StdEncoding.DecodeString(result.Body)
		}
		return []byte(result.Body), nil
	}
}
