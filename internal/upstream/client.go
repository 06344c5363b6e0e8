// Package upstream is a client for OpenAI-compatible chat completion APIs
// such as OpenRouter.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Upstream call errors. Every failure returned by Complete wraps exactly one
// of these.
var (
	// ErrTransport covers connection failures and timeouts.
	ErrTransport = errors.New("upstream transport failure")
	// ErrStatus is wrapped by *StatusError for non-2xx replies.
	ErrStatus = errors.New("upstream returned error status")
	// ErrProtocol means a 2xx reply whose body is not a JSON object.
	ErrProtocol = errors.New("upstream returned unparseable body")
)

// maxResponseBody bounds how much of a reply is read.
const maxResponseBody = 8 << 20

// StatusError is returned for non-2xx replies.
type StatusError struct {
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Message is one chat message. Content is passed through untouched so both
// string and multi-part content work.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is a returned completion. Body is the provider's JSON object
// verbatim; Usage is nil when the provider did not report usage.
type Response struct {
	Body  json.RawMessage
	Model string
	Usage *Usage
}

// ReportedTokens returns the provider's total token count. ok is false when
// usage is absent or zero, in which case callers apply their fallback cost.
func (r *Response) ReportedTokens() (tokens int64, ok bool) {
	if r.Usage == nil || r.Usage.TotalTokens <= 0 {
		return 0, false
	}
	return r.Usage.TotalTokens, true
}

// Client calls {baseURL}/chat/completions.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	referer    string
	title      string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// for app attribution.
func WithAttribution(referer, title string) Option {
	return func(cl *Client) {
		cl.referer = referer
		cl.title = title
	}
}

// New creates a client. timeout bounds each call end to end.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type replyEnvelope struct {
	Model string `json:"model"`
	Usage *Usage `json:"usage"`
}

// Complete issues exactly one chat completion request.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	return parseReply(body)
}

func parseReply(body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrProtocol)
	}

	var env replyEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	return &Response{
		Body:  json.RawMessage(trimmed),
		Model: env.Model,
		Usage: env.Usage,
	}, nil
}
