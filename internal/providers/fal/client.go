package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"imageapi/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("fal: api key is required")
	// ErrNoRequestID is returned when a submission response carries no job identifier.
	ErrNoRequestID = errors.New("fal: no identifier returned")
	// ErrMissingModel is returned for an empty model identifier.
	ErrMissingModel = errors.New("fal: model is required")
)

// requestIDFields are probed in order on submission responses.
var requestIDFields = []string{"request_id", "requestId", "id"}

const maxErrorBody = 4 << 10

// APIError describes a non-2xx answer from the queue API.
type APIError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("fal: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("fal: status %d", e.StatusCode)
}

// Options configures the fal.ai queue client.
type Options struct {
	APIKey         string
	QueueURL       string
	WebhookURL     string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the fal.ai queue API: submit, status, result and cancel.
type Client struct {
	apiKey     string
	queueURL   string
	webhookURL string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with defaults for every optional field.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	queueURL := strings.TrimRight(strings.TrimSpace(opts.QueueURL), "/")
	if queueURL == "" {
		queueURL = "https://queue.fal.run"
	}
	return &Client{
		apiKey:     apiKey,
		queueURL:   queueURL,
		webhookURL: strings.TrimSpace(opts.WebhookURL),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Submit enqueues a job for model with input as the JSON body and returns the
// provider request id together with the raw submission payload.
func (c *Client) Submit(ctx context.Context, model string, input any) (string, json.RawMessage, error) {
	model, err := cleanModel(model)
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", nil, fmt.Errorf("fal: encode request: %w", err)
	}
	endpoint := c.queueURL + "/" + model
	if c.webhookURL != "" {
		endpoint += "?" + url.Values{"fal_webhook": {c.webhookURL}}.Encode()
	}
	raw, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", nil, err
	}
	requestID := FirstString(raw, requestIDFields...)
	if requestID == "" {
		return "", raw, ErrNoRequestID
	}
	c.logger.Debug().
		Str("model", model).
		Str("request_id", requestID).
		Msg("fal: job submitted")
	return requestID, raw, nil
}

// Status returns the raw status document for a submitted job.
func (c *Client) Status(ctx context.Context, model, requestID string) (json.RawMessage, error) {
	endpoint, err := c.requestURL(model, requestID, "/status")
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// Result returns the raw output document of a completed job.
func (c *Client) Result(ctx context.Context, model, requestID string) (json.RawMessage, error) {
	endpoint, err := c.requestURL(model, requestID, "")
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// Cancel asks the provider to drop a queued or running job.
func (c *Client) Cancel(ctx context.Context, model, requestID string) error {
	endpoint, err := c.requestURL(model, requestID, "/cancel")
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, endpoint, nil)
	return err
}

func (c *Client) requestURL(model, requestID, suffix string) (string, error) {
	model, err := cleanModel(model)
	if err != nil {
		return "", err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", errors.New("fal: request id is required")
	}
	return c.queueURL + "/" + appID(model) + "/requests/" + url.PathEscape(requestID) + suffix, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("fal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("fal: decode response: invalid json")
	}
	return json.RawMessage(raw), nil
}

func newAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if gjson.ValidBytes(raw) {
		apiErr.Body = json.RawMessage(raw)
		apiErr.Message = FirstString(raw, "detail", "detail.0.msg", "message", "error")
		return apiErr
	}
	text := strings.TrimSpace(string(raw))
	apiErr.Message = truncate(text, maxErrorBody)
	return apiErr
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FirstString returns the first non-empty string found at any of paths.
func FirstString(raw []byte, paths ...string) string {
	for _, path := range paths {
		res := gjson.GetBytes(raw, path)
		if res.Type != gjson.String && res.Type != gjson.Number {
			continue
		}
		if v := strings.TrimSpace(res.String()); v != "" {
			return v
		}
	}
	return ""
}

func cleanModel(model string) (string, error) {
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return "", ErrMissingModel
	}
	for _, seg := range strings.Split(model, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("fal: invalid model %q", model)
		}
	}
	return model, nil
}

// appID reduces an endpoint id such as "fal-ai/flux/dev" to the owner/alias
// pair the queue uses for status, result and cancel routes.
func appID(model string) string {
	parts := strings.SplitN(model, "/", 3)
	if len(parts) < 2 {
		return model
	}
	return parts[0] + "/" + parts[1]
}
