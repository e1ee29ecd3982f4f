package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestSubmitSendsInputAndReturnsRequestID(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/fal-ai/flux/dev", http.StatusOK, map[string]any{
		"request_id": "req-123",
		"status_url": "https://queue.fal.run/fal-ai/flux/requests/req-123/status",
	})
	client := newTestClient(t, transport, "")

	input := map[string]any{"prompt": "a red fox", "width": 512, "height": 768, "num_outputs": 1}
	requestID, raw, err := client.Submit(context.Background(), "fal-ai/flux/dev", input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if requestID != "req-123" {
		t.Fatalf("request id = %q, want req-123", requestID)
	}
	if !strings.Contains(string(raw), "status_url") {
		t.Fatalf("raw payload not returned: %s", raw)
	}

	last := transport.last()
	if got := last.header.Get("Authorization"); got != "Key test-key" {
		t.Fatalf("authorization = %q, want %q", got, "Key test-key")
	}
	if got := last.header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content-type = %q", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(last.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["prompt"] != "a red fox" || payload["num_outputs"] != float64(1) {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSubmitRequestIDFallbackFields(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{name: "snake case", body: map[string]any{"request_id": "a", "requestId": "b", "id": "c"}, want: "a"},
		{name: "camel case", body: map[string]any{"request_id": "", "requestId": "b", "id": "c"}, want: "b"},
		{name: "plain id", body: map[string]any{"id": "c"}, want: "c"},
		{name: "numeric id", body: map[string]any{"id": 42}, want: "42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSONResponse(http.MethodPost, "/fal-ai/flux/dev", http.StatusOK, tc.body)
			client := newTestClient(t, transport, "")

			got, _, err := client.Submit(context.Background(), "fal-ai/flux/dev", map[string]any{"prompt": "x"})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if got != tc.want {
				t.Fatalf("request id = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSubmitWithoutIdentifierFails(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/fal-ai/flux/dev", http.StatusOK, map[string]any{"status": "IN_QUEUE"})
	client := newTestClient(t, transport, "")

	_, raw, err := client.Submit(context.Background(), "fal-ai/flux/dev", map[string]any{"prompt": "x"})
	if !errors.Is(err, ErrNoRequestID) {
		t.Fatalf("error = %v, want ErrNoRequestID", err)
	}
	if !strings.Contains(string(raw), "IN_QUEUE") {
		t.Fatalf("expected raw payload to be returned with the error, got %s", raw)
	}
}

func TestSubmitAppendsWebhook(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/fal-ai/flux/dev", http.StatusOK, map[string]any{"request_id": "r"})
	client := newTestClient(t, transport, "https://hooks.example.com/fal")

	if _, _, err := client.Submit(context.Background(), "fal-ai/flux/dev", map[string]any{"prompt": "x"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := transport.last().query.Get("fal_webhook"); got != "https://hooks.example.com/fal" {
		t.Fatalf("fal_webhook = %q", got)
	}
}

func TestSubmitAPIErrorCarriesDetail(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodPost, "/fal-ai/flux/dev", http.StatusUnauthorized, map[string]any{"detail": "Invalid key"})
	client := newTestClient(t, transport, "")

	_, _, err := client.Submit(context.Background(), "fal-ai/flux/dev", map[string]any{"prompt": "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid key" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestAPIErrorTruncatesPlainBodyOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxErrorBody-1) + strings.Repeat("é", 10)
	apiErr := newAPIError(http.StatusBadGateway, []byte(body))

	if !utf8.ValidString(apiErr.Message) {
		t.Fatalf("message is not valid utf-8")
	}
	if len(apiErr.Message) != maxErrorBody-1 {
		t.Fatalf("message length = %d, want %d", len(apiErr.Message), maxErrorBody-1)
	}

	if got := truncate("héllo", 2); got != "h" {
		t.Fatalf("truncate() = %q, want %q", got, "h")
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate() = %q, want %q", got, "short")
	}
}

func TestStatusResultCancelUseAppID(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse(http.MethodGet, "/fal-ai/flux/requests/req-1/status", http.StatusAccepted, map[string]any{"status": "IN_PROGRESS"})
	transport.setJSONResponse(http.MethodGet, "/fal-ai/flux/requests/req-1", http.StatusOK, map[string]any{"images": []any{map[string]any{"url": "https://cdn/x.png"}}})
	transport.setJSONResponse(http.MethodPut, "/fal-ai/flux/requests/req-1/cancel", http.StatusAccepted, map[string]any{"status": "CANCELLATION_REQUESTED"})
	client := newTestClient(t, transport, "")
	ctx := context.Background()

	status, err := client.Status(ctx, "fal-ai/flux/dev", "req-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if FirstString(status, "status") != "IN_PROGRESS" {
		t.Fatalf("unexpected status payload: %s", status)
	}

	result, err := client.Result(ctx, "fal-ai/flux/dev", "req-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if FirstString(result, "images.0.url") != "https://cdn/x.png" {
		t.Fatalf("unexpected result payload: %s", result)
	}

	if err := client.Cancel(ctx, "fal-ai/flux/dev", "req-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if transport.last().method != http.MethodPut {
		t.Fatalf("cancel method = %s, want PUT", transport.last().method)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
}

func TestCleanModelRejectsTraversal(t *testing.T) {
	for _, model := range []string{"", "/", "fal-ai/../admin", "fal-ai//flux"} {
		if _, err := cleanModel(model); err == nil {
			t.Fatalf("cleanModel(%q) expected error", model)
		}
	}
	got, err := cleanModel("/fal-ai/flux/dev/")
	if err != nil || got != "fal-ai/flux/dev" {
		t.Fatalf("cleanModel() = %q, %v", got, err)
	}
}

func TestAppID(t *testing.T) {
	tests := map[string]string{
		"fal-ai/flux/dev":        "fal-ai/flux",
		"fal-ai/flux-pro":        "fal-ai/flux-pro",
		"fal-ai/flux-lora/a/b/c": "fal-ai/flux-lora",
		"standalone":             "standalone",
	}
	for model, want := range tests {
		if got := appID(model); got != want {
			t.Fatalf("appID(%q) = %q, want %q", model, got, want)
		}
	}
}

func newTestClient(t *testing.T, transport http.RoundTripper, webhook string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		QueueURL:   "https://queue.example.com/",
		WebhookURL: webhook,
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

type captureTransport struct {
	mu        sync.Mutex
	responses map[string]responseStub
	requests  []capturedRequest
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, capturedRequest{
		method: req.Method,
		path:   req.URL.Path,
		query:  req.URL.Query(),
		header: req.Header.Clone(),
		body:   body,
	})
	if stub, ok := c.responses[req.Method+" "+req.URL.Path]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(method, path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[method+" "+path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) last() capturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func (s responseStub) toResponse() *http.Response {
	return &http.Response{
		StatusCode: s.status,
		Header:     s.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
