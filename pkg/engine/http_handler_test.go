package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

type capturedCall struct {
	capabilityID string
	action       string
	input        string
	options      map[string]string
}

type stubExecutor struct {
	resp  domain.Response
	err   error
	calls []capturedCall
}

func (s *stubExecutor) Execute(_ context.Context, capabilityID, action, input string, options map[string]string) (domain.Response, error) {
	s.calls = append(s.calls, capturedCall{capabilityID, action, input, options})
	return s.resp, s.err
}

func TestToolHandler_GetReadsQueryInput(t *testing.T) {
	exec := &stubExecutor{resp: domain.Response{Success: true, Output: "ok"}}
	h := NewToolHandler(ToolHandlerConfig{Executor: exec, Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/api/tools/json-format/format?input=%7B%7D&indent=2", http.NoBody)
	req.Header.Set(HeaderAPIKey, "secret")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(exec.calls))
	}
	call := exec.calls[0]
	if call.capabilityID != "json-format" || call.action != "format" || call.input != "{}" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.options[domain.OptionAPIKey] != "secret" {
		t.Fatalf("api key header not mapped: %v", call.options)
	}
	if call.options[domain.OptionHTTPMethod] != http.MethodGet {
		t.Fatalf("http method option missing: %v", call.options)
	}
	if call.options["indent"] != "2" {
		t.Fatalf("query option missing: %v", call.options)
	}
	if _, ok := call.options["input"]; ok {
		t.Fatalf("input must not leak into options")
	}
	if got := rec.Header().Get(HeaderCorrelationID); got != "corr-1" {
		t.Fatalf("correlation id not echoed: %q", got)
	}

	var resp domain.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Output != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestToolHandler_PostJSONAndRawBodies(t *testing.T) {
	exec := &stubExecutor{resp: domain.Response{Success: true}}
	h := NewToolHandler(ToolHandlerConfig{Executor: exec, Logger: discardLogger()})

	body := `{"input":"aGk=","options":{"tenantId":"t1","apiKey":"from-body"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/base64/decode", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(HeaderAPIKey, "from-header")
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/tools/base64/encode", strings.NewReader("raw text"))
	req.Header.Set("Content-Type", "text/plain")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(exec.calls) != 2 {
		t.Fatalf("expected two calls, got %d", len(exec.calls))
	}
	first := exec.calls[0]
	if first.input != "aGk=" || first.options[domain.OptionTenantID] != "t1" {
		t.Fatalf("json body not decoded: %+v", first)
	}
	if first.options[domain.OptionAPIKey] != "from-header" {
		t.Fatalf("header must override body api key, got %q", first.options[domain.OptionAPIKey])
	}
	if first.options[domain.OptionCorrelationID] == "" {
		t.Fatalf("correlation id should be generated")
	}
	if exec.calls[1].input != "raw text" {
		t.Fatalf("raw body not used as input: %q", exec.calls[1].input)
	}
}

func TestToolHandler_RejectsBadRequests(t *testing.T) {
	exec := &stubExecutor{resp: domain.Response{Success: true}}
	h := NewToolHandler(ToolHandlerConfig{Executor: exec, Logger: discardLogger(), MaxBodyBytes: 8})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		ctype  string
		status int
	}{
		{"missing action", http.MethodGet, "/api/v1/tools/base64", "", "", http.StatusNotFound},
		{"extra segment", http.MethodGet, "/api/v1/tools/base64/encode/x", "", "", http.StatusNotFound},
		{"other prefix", http.MethodGet, "/tools/base64/encode", "", "", http.StatusNotFound},
		{"method", http.MethodDelete, "/api/v1/tools/base64/encode", "", "", http.StatusMethodNotAllowed},
		{"too large", http.MethodPost, "/api/v1/tools/base64/encode", "0123456789", "text/plain", http.StatusRequestEntityTooLarge},
		{"bad json", http.MethodPost, "/api/v1/tools/base64/encode", "{", "application/json", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.ctype != "" {
				req.Header.Set("Content-Type", tc.ctype)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error.Code == "" {
				t.Fatalf("expected error body, got %q (%v)", rec.Body.String(), err)
			}
		})
	}
	if len(exec.calls) != 0 {
		t.Fatalf("rejected requests must not reach the executor")
	}
}

func TestToolHandler_CancelledExecution(t *testing.T) {
	exec := &stubExecutor{err: context.Canceled}
	h := NewToolHandler(ToolHandlerConfig{Executor: exec, Logger: discardLogger()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools/a/b", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestStatusForCode(t *testing.T) {
	cases := map[string]int{
		domain.CodeCapabilityNotFound: http.StatusNotFound,
		domain.CodeRateLimited:        http.StatusTooManyRequests,
		domain.CodeAPIKeyRequired:     http.StatusUnauthorized,
		domain.CodeExecutionDisabled:  http.StatusForbidden,
		domain.CodeCircuitOpen:        http.StatusServiceUnavailable,
		domain.CodeTimeout:            http.StatusGatewayTimeout,
		domain.CodeExecutionFailed:    http.StatusUnprocessableEntity,
		domain.CodeNoHandler:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusForCode(domain.Failure(code, "")); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
	if got := StatusForCode(domain.Response{Success: true}); got != http.StatusOK {
		t.Fatalf("success should map to 200, got %d", got)
	}
}

func TestToolHandler_ServesRealPipeline(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	h := NewToolHandler(ToolHandlerConfig{Executor: f.pipeline, Logger: discardLogger()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools/json-format/format?input=x", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools/not-real/format?input=x", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tool should be 404, got %d", rec.Code)
	}
}

func TestToolHandler_IdenticalRequestsShareCachedResult(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	h := NewToolHandler(ToolHandlerConfig{Executor: f.pipeline, Logger: discardLogger()})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools/json-format/format?input=%7B%22a%22%3A1%7D", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/json-format/format", strings.NewReader(`{"input":"{\"a\":1}"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCorrelationID, "corr-4")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("post: unexpected status %d %s", rec.Code, rec.Body.String())
	}

	if got := f.calls.Load(); got != 1 {
		t.Fatalf("executor called %d times, want 1", got)
	}
}
