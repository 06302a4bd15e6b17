// Package client is the submission side of the ledger: a retrying HTTP
// client, a reconciler that derives resume points from server-side
// progress, and a driver that walks scripted sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"

	"github.com/tallyd/tally/internal/models"
	"github.com/tallyd/tally/internal/webapi"
)

// RetryConfig bounds the automatic retry behavior for transient failures.
// Timeouts, connection resets and 5xx responses are retried with
// exponential backoff plus jitter; 4xx refusals are surfaced immediately.
type RetryConfig struct {
	// MaxAttempts counts every try including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	// Timeout applies per attempt, not across the whole budget.
	Timeout time.Duration
}

// DefaultRetry is the retry budget used when the caller configures nothing.
var DefaultRetry = RetryConfig{
	MaxAttempts: 4,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Jitter:      100 * time.Millisecond,
	Timeout:     10 * time.Second,
}

func (rc RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetry
	if rc.MaxAttempts > 0 {
		def.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		def.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		def.MaxDelay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		def.Jitter = rc.Jitter
	}
	if rc.Timeout > 0 {
		def.Timeout = rc.Timeout
	}
	return def
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Retry   RetryConfig
	Logger  *slog.Logger
}

// Client talks to the ledger service. Transient failures are retried
// inside each call; once the budget is exhausted the call returns a
// DeliveryFailedError and the caller decides what to do with its pending
// state.
type Client struct {
	baseURL  string
	http     *httpclient.Client
	attempts int
	logger   *slog.Logger
}

// New creates a Client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	retry := cfg.Retry.withDefaults()

	backoff := heimdall.NewExponentialBackoff(retry.BaseDelay, retry.MaxDelay, 2.0, retry.Jitter)
	httpCli := httpclient.NewClient(
		httpclient.WithHTTPTimeout(retry.Timeout),
		httpclient.WithRetryCount(retry.MaxAttempts-1),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
	)

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpCli,
		attempts: retry.MaxAttempts,
		logger:   cfg.Logger,
	}, nil
}

// EnsureSession creates the session when it does not exist yet and returns
// the stored session either way.
func (c *Client) EnsureSession(ctx context.Context, spec webapi.SessionSpec) (models.Session, error) {
	var sess models.Session
	err := c.doJSON(ctx, "ensure session", spec.SessionID, -1, http.MethodPost, "/api/sessions", spec, &sess)
	return sess, err
}

// SubmitStep records one step completion. The server applies it as an
// idempotent upsert, so retried and duplicated deliveries are safe.
func (c *Client) SubmitStep(ctx context.Context, sessionID string, stepIndex int, rawScore float64) (models.StepRecord, error) {
	var rec models.StepRecord
	path := fmt.Sprintf("/api/sessions/%s/steps/%d", sessionID, stepIndex)
	err := c.doJSON(ctx, "submit step", sessionID, stepIndex, http.MethodPut, path, webapi.RecordStepRequest{RawScore: rawScore}, &rec)
	return rec, err
}

// FetchProgress returns the server-side progress for sessionID.
func (c *Client) FetchProgress(ctx context.Context, sessionID string) (models.Progress, error) {
	var prog models.Progress
	err := c.doJSON(ctx, "fetch progress", sessionID, -1, http.MethodGet, "/api/sessions/"+sessionID+"/progress", nil, &prog)
	return prog, err
}

// FinalSubmit finalizes the session. A session somebody already finalized
// is reported as success with its stored state: that is the expected
// outcome of a retried finalize, not a failure.
func (c *Client) FinalSubmit(ctx context.Context, sessionID string) (models.Session, error) {
	var sess models.Session
	err := c.doJSON(ctx, "final submit", sessionID, -1, http.MethodPost, "/api/sessions/"+sessionID+"/submit", nil, &sess)
	if err != nil && IsAlreadySubmitted(err) {
		prog, perr := c.FetchProgress(ctx, sessionID)
		if perr != nil {
			return models.Session{}, perr
		}
		return prog.Session, nil
	}
	return sess, err
}

// Abandon marks the session abandoned.
func (c *Client) Abandon(ctx context.Context, sessionID string) (models.Session, error) {
	var sess models.Session
	err := c.doJSON(ctx, "abandon", sessionID, -1, http.MethodPost, "/api/sessions/"+sessionID+"/abandon", nil, &sess)
	return sess, err
}

func (c *Client) doJSON(ctx context.Context, op, sessionID string, stepIndex int, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck
		}
		c.logger.Debug("delivery failed", "op", op, "session", sessionID, "error", err)
		return &DeliveryFailedError{Op: op, SessionID: sessionID, StepIndex: stepIndex, Attempts: c.attempts, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusInternalServerError {
		// The retrier already spent its budget on 5xx responses.
		return &DeliveryFailedError{Op: op, SessionID: sessionID, StepIndex: stepIndex, Attempts: c.attempts, Err: decodeAPIError(resp)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope webapi.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Reason == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	apiErr.Code = envelope.Code
	apiErr.Reason = envelope.Reason
	apiErr.Message = envelope.Error
	return apiErr
}
