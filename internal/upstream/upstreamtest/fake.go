// Package upstreamtest provides a scriptable completer for tests.
package upstreamtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tollgate/tollgate/internal/upstream"
)

// Completer is a fake upstream that counts calls.
type Completer struct {
	calls     atomic.Int64
	latency   time.Duration
	err       error
	usage     *upstream.Usage
	body      string
	lastModel atomic.Value
	lastMax   atomic.Int64
}

// Option configures a fake Completer.
type Option func(*Completer)

// New creates a fake that reports 30 total tokens by default.
func New(opts ...Option) *Completer {
	c := &Completer{
		usage: &upstream.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithUsage sets reported usage. Nil means usage is omitted.
func WithUsage(u *upstream.Usage) Option {
	return func(c *Completer) { c.usage = u }
}

// WithTotalTokens is shorthand for WithUsage with only a total.
func WithTotalTokens(n int64) Option {
	return func(c *Completer) { c.usage = &upstream.Usage{TotalTokens: n} }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(c *Completer) { c.err = err }
}

// WithLatency delays each call, honoring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(c *Completer) { c.latency = d }
}

// WithBody sets the raw JSON body returned. It must be a JSON object.
func WithBody(body string) Option {
	return func(c *Completer) { c.body = body }
}

// Complete implements the upstream call.
func (c *Completer) Complete(ctx context.Context, req upstream.Request) (*upstream.Response, error) {
	c.calls.Add(1)
	c.lastModel.Store(req.Model)
	c.lastMax.Store(int64(req.MaxTokens))

	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", upstream.ErrTransport, ctx.Err())
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	body := c.body
	if body == "" {
		payload := map[string]any{
			"id":      "gen-fake",
			"model":   req.Model,
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		}
		if c.usage != nil {
			payload["usage"] = c.usage
		}
		b, _ := json.Marshal(payload)
		body = string(b)
	}

	return &upstream.Response{
		Body:  json.RawMessage(body),
		Model: req.Model,
		Usage: c.usage,
	}, nil
}

// Calls returns how many times Complete was invoked.
func (c *Completer) Calls() int64 {
	return c.calls.Load()
}

// LastModel returns the model of the most recent request.
func (c *Completer) LastModel() string {
	s, _ := c.lastModel.Load().(string)
	return s
}

// LastMaxTokens returns max_tokens of the most recent request.
func (c *Completer) LastMaxTokens() int {
	return int(c.lastMax.Load())
}
