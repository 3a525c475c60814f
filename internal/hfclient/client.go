// Package hfclient talks to a hosted zero-shot image classification endpoint.
package hfclient

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

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/logging"
)

const (
	DefaultBaseURL      = "https://api-inference.huggingface.co/models/"
	DefaultModel        = "openai/clip-vit-large-patch14"
	DefaultWarmupModel  = "google/vit-base-patch16-224"
	DefaultTimeout      = 8 * time.Second
	DefaultMaxAttempts  = 3
	DefaultBackoffStep  = 500 * time.Millisecond
	defaultWarmupBudget = 3 * time.Second
	maxResponseBytes    = 1 << 20
)

// LabelScore is one entry of a zero-shot response.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Response is the final HTTP exchange after retries.
type Response struct {
	StatusCode int
	Body       []byte
	Attempts   int
}

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	BaseURL     string
	Model       string
	WarmupModel string
	APIKey      string
	Timeout     time.Duration

	MaxAttempts int
	BackoffStep time.Duration

	RequestsPerSecond float64
	Burst             int

	BreakerEnabled      bool
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

func (c Config) normalize() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.WarmupModel == "" {
		c.WarmupModel = DefaultWarmupModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = DefaultBackoffStep
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 10
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = 0.5
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 30 * time.Second
	}
	return c
}

// AttemptObserver is notified with the status of every HTTP attempt (0 for
// transport failures).
type AttemptObserver func(statusCode int)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAttemptObserver registers a per-attempt callback.
func WithAttemptObserver(fn AttemptObserver) Option {
	return func(c *Client) { c.observe = fn }
}

// Client submits images for zero-shot classification.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*Response]
	observe    AttemptObserver
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// New constructs a client.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	cfg = cfg.normalize()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		observe:    func(int) {},
		sleep:      sleepContext,
		logger:     logger.Named("hfclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:    "hf_zero_shot",
			Timeout: cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.BreakerMinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return c
}

// APIKeyConfigured reports whether a credential is present.
func (c *Client) APIKeyConfigured() bool {
	return c.cfg.APIKey != ""
}

// APIKeyLength is exposed for health reporting only.
func (c *Client) APIKeyLength() int {
	return len(c.cfg.APIKey)
}

// CandidateScores decodes a zero-shot body. Any shape other than a list of
// label/score objects is reported as *detection.ShapeMismatchError.
func CandidateScores(body []byte) (map[string]float64, error) {
	var entries []LabelScore
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &detection.ShapeMismatchError{Body: string(body), Err: err}
	}
	scores := make(map[string]float64, len(entries))
	for _, entry := range entries {
		scores[entry.Label] = entry.Score
	}
	return scores, nil
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
}

// ZeroShot submits dataURI with the candidate labels. Gateway failures
// (502/503/504) are retried up to MaxAttempts with a linear backoff of
// BackoffStep×attempt. Any other status ends the loop immediately. A final
// non-200 status or a transport failure is returned as *detection.UpstreamError,
// together with the last response when one was received.
func (c *Client) ZeroShot(ctx context.Context, dataURI string, labels []string) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, &detection.ConfigError{Key: "HF_API_KEY", Reason: "credential is not configured"}
	}
	payload, err := json.Marshal(zeroShotRequest{
		Inputs:     dataURI,
		Parameters: zeroShotParameters{CandidateLabels: labels},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal zero-shot request: %w", err)
	}

	call := func() (*Response, error) { return c.postWithRetry(ctx, c.cfg.Model, payload) }
	if c.breaker == nil {
		return call()
	}
	resp, err := c.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &detection.UpstreamError{Err: err}
	}
	return resp, err
}

func (c *Client) postWithRetry(ctx context.Context, model string, payload []byte) (*Response, error) {
	opLogger := logging.WithOperation(c.logger, "hfclient.zero_shot", "")
	var resp *Response
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &detection.UpstreamError{Attempts: attempt - 1, Err: err}
		}

		status, body, err := c.post(ctx, model, payload)
		c.observe(status)
		if err != nil {
			opLogger.Error("zero-shot request failed", zap.Error(err), zap.Int("attempt", attempt))
			return nil, &detection.UpstreamError{Attempts: attempt, Err: err}
		}
		resp = &Response{StatusCode: status, Body: body, Attempts: attempt}

		if !isRetryableStatus(status) || attempt == c.cfg.MaxAttempts {
			break
		}

		wait := c.cfg.BackoffStep * time.Duration(attempt)
		opLogger.Warn("transient upstream status",
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return resp, &detection.UpstreamError{StatusCode: status, Body: string(body), Attempts: attempt, Err: err}
		}
	}

	if resp.StatusCode != http.StatusOK {
		return resp, &detection.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Attempts:   resp.Attempts,
		}
	}
	if resp.Attempts > 1 {
		opLogger.Info("zero-shot request succeeded after retry", zap.Int("attempt", resp.Attempts))
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, model string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+model, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// Warmup sends a throwaway request to reduce first-call latency. It is best
// effort: every failure is swallowed.
func (c *Client) Warmup(ctx context.Context) {
	if c.cfg.APIKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, defaultWarmupBudget)
	defer cancel()

	payload, _ := json.Marshal(map[string]string{"inputs": "data:image/jpeg;base64,d2FybXVw"})
	status, _, err := c.post(ctx, c.cfg.WarmupModel, payload)
	if err != nil {
		c.logger.Debug("warmup ignored", zap.Error(err))
		return
	}
	c.logger.Debug("warmup completed", zap.Int("status", status))
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isBreakerSuccess keeps client-side rejections (4xx) from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var upstream *detection.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode >= 400 && upstream.StatusCode < 500 {
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
