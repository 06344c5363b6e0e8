package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/model"
	"github.com/tollgate/tollgate/internal/upstream"
)

// Metering policy defaults.
const (
	DefaultModel           = "anthropic/claude-3.5-sonnet"
	DefaultMaxTokens       = 4000
	DefaultUpstreamTimeout = 60 * time.Second
)

// MeteringConfig holds the per-request policy constants.
type MeteringConfig struct {
	DefaultModel     string
	DefaultMaxTokens int
	// FallbackUsage is charged when the upstream reports no usage.
	FallbackUsage   int64
	UpstreamTimeout time.Duration
}

func (c MeteringConfig) withDefaults() MeteringConfig {
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = DefaultMaxTokens
	}
	if c.FallbackUsage <= 0 {
		c.FallbackUsage = DefaultUsageCost
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = DefaultUpstreamTimeout
	}
	return c
}

// CompletionRequest is a caller's chat completion request.
type CompletionRequest struct {
	Messages []upstream.Message
	Model    string
	// MaxTokens is nil when the caller left it unset.
	MaxTokens *int
}

// CompletionResult is a metered completion.
type CompletionResult struct {
	Upstream *upstream.Response
	// TokensUsed is what was charged for this request.
	TokensUsed int64
	// TokensRemaining is the balance persisted by the debit.
	TokensRemaining int64
	// EventID is the usage event written, empty if recording failed.
	EventID string
}

// MeteringService drives one metered request:
// check quota, call upstream, debit, record.
type MeteringService struct {
	ledger   *QuotaLedger
	recorder *UsageRecorder
	upstream Completer
	cfg      MeteringConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewMeteringService creates a new MeteringService.
func NewMeteringService(ledger *QuotaLedger, recorder *UsageRecorder, completer Completer, cfg MeteringConfig, logger *slog.Logger, m metrics.Recorder) *MeteringService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &MeteringService{
		ledger:   ledger,
		recorder: recorder,
		upstream: completer,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "metering"),
		metrics:  m,
		now:      time.Now,
	}
}

// Complete serves one chat completion for userID, who is already authenticated.
//
// Upstream failures (transport, timeout, non-2xx, unparseable body) are not
// charged and leave one failed usage event. Any returned reply is charged,
// including refusals, because the provider billed the tokens.
func (s *MeteringService) Complete(ctx context.Context, userID string, req CompletionRequest) (*CompletionResult, error) {
	if err := s.Admit(ctx, userID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	upReq := upstream.Request{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: s.cfg.DefaultMaxTokens,
	}
	if upReq.Model == "" {
		upReq.Model = s.cfg.DefaultModel
	}
	if req.MaxTokens != nil {
		upReq.MaxTokens = *req.MaxTokens
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	start := s.now()
	resp, callErr := s.upstream.Complete(callCtx, upReq)
	latency := s.now().Sub(start)
	cancel()
	s.metrics.ObserveUpstreamDuration(latency)

	// The provider may already have billed us; finish accounting even if
	// the caller hangs up.
	bookCtx := context.WithoutCancel(ctx)

	if callErr != nil {
		s.metrics.IncMeteredRequest(metrics.OutcomeUpstreamFailed)
		s.logger.Warn("upstream call failed",
			"account_id", userID,
			"model", upReq.Model,
			"latency_ms", latency.Milliseconds(),
			"error", callErr,
		)
		s.recordFailure(bookCtx, userID, upReq.Model, latency, callErr.Error())
		return nil, fmt.Errorf("%w: %w", ErrUpstream, callErr)
	}

	usage, reported := resp.ReportedTokens()
	if !reported {
		usage = s.cfg.FallbackUsage
	}

	debit, err := s.ledger.Debit(bookCtx, userID, usage)
	if err != nil {
		s.metrics.IncMeteredRequest(metrics.OutcomeError)
		s.logger.Error("debit failed after upstream reply",
			"account_id", userID,
			"usage", usage,
			"error", err,
		)
		s.recordFailure(bookCtx, userID, upReq.Model, latency, "debit failed")
		return nil, err
	}

	event := &model.UsageEvent{
		AccountID:  userID,
		Operation:  model.OperationLLMQuery,
		Model:      upReq.Model,
		TokensUsed: debit.Charged,
		LatencyMs:  latency.Milliseconds(),
		Status:     model.UsageCompleted,
	}
	if err := s.recorder.Append(bookCtx, event); err != nil {
		// Paid but unlogged. The debit stands.
		s.metrics.IncUsageRecordFailed()
		s.logger.Error("usage event not recorded after debit",
			"account_id", userID,
			"tokens_charged", debit.Charged,
			"error", err,
		)
		event.ID = ""
	}

	s.metrics.IncMeteredRequest(metrics.OutcomeCompleted)
	s.logger.Info("metered request completed",
		"account_id", userID,
		"model", upReq.Model,
		"tokens_used", debit.Charged,
		"usage_reported", reported,
		"tokens_remaining", debit.Remaining,
		"latency_ms", latency.Milliseconds(),
	)

	return &CompletionResult{
		Upstream:        resp,
		TokensUsed:      debit.Charged,
		TokensRemaining: debit.Remaining,
		EventID:         event.ID,
	}, nil
}

// Admit checks that userID may spend tokens at all. It runs before the request
// body is looked at, so an empty balance answers 402 whatever the body holds.
func (s *MeteringService) Admit(ctx context.Context, userID string) error {
	if _, err := s.ledger.CheckBalance(ctx, userID); err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrAccountNotFound) {
			s.metrics.IncMeteredRequest(metrics.OutcomeInsufficientBalance)
		} else {
			s.metrics.IncMeteredRequest(metrics.OutcomeError)
		}
		return err
	}
	return nil
}

func (s *MeteringService) recordFailure(ctx context.Context, userID, modelName string, latency time.Duration, reason string) {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	err := s.recorder.Append(ctx, &model.UsageEvent{
		AccountID: userID,
		Operation: model.OperationLLMQuery,
		Model:     modelName,
		LatencyMs: latency.Milliseconds(),
		Status:    model.UsageFailed,
		Error:     reason,
	})
	if err != nil {
		s.metrics.IncUsageRecordFailed()
		s.logger.Error("failed usage event not recorded", "account_id", userID, "error", err)
	}
}
