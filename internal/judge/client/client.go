package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeprep/internal/judge/model"
	"codeprep/pkg/errors"
	"codeprep/pkg/utils/logger"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	defaultAPIKeyHeader   = "X-Auth-Token"
	defaultRequestTimeout = 10 * time.Second
	defaultPollRetryMax   = 1
	maxResponseBytes      = 4 << 20
)

// Config configures the judge gateway client.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	APIKeyHeader   string        `yaml:"apiKeyHeader"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// PollRetryMax bounds transport-level retries inside one poll attempt.
	PollRetryMax int           `yaml:"pollRetryMax"`
	RetryWaitMin time.Duration `yaml:"retryWaitMin"`
	RetryWaitMax time.Duration `yaml:"retryWaitMax"`
}

// Client talks to the judge gateway over HTTP.
type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	submitHTTP   *retryablehttp.Client
	pollHTTP     *retryablehttp.Client
}

// NewClient validates cfg and builds the submit and poll transports.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge baseURL: %w", err)
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = defaultAPIKeyHeader
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PollRetryMax < 0 {
		cfg.PollRetryMax = 0
	} else if cfg.PollRetryMax == 0 {
		cfg.PollRetryMax = defaultPollRetryMax
	}

	// A retried batch submit would queue the same code twice.
	submitHTTP := newRetryableClient(cfg, 0)
	pollHTTP := newRetryableClient(cfg, cfg.PollRetryMax)

	return &Client{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		submitHTTP:   submitHTTP,
		pollHTTP:     pollHTTP,
	}, nil
}

// CallBound is the longest one poll call can take, transport retries and
// backoff waits included. A batch submit never retries, so it is bounded too.
func (c *Client) CallBound() time.Duration {
	retries := c.pollHTTP.RetryMax
	return time.Duration(retries+1)*c.pollHTTP.HTTPClient.Timeout + time.Duration(retries)*c.pollHTTP.RetryWaitMax
}

func newRetryableClient(cfg Config, retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	if cfg.RetryWaitMin > 0 {
		c.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		c.RetryWaitMax = cfg.RetryWaitMax
	}
	c.HTTPClient.Timeout = cfg.RequestTimeout
	c.Logger = zapLeveledLogger{}
	c.ErrorHandler = keepLastResponse
	return c
}

// keepLastResponse hands the final response back to the caller once retries are
// spent, so status codes and quota messages can still be inspected.
func keepLastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// SubmitBatch queues one execution per stdin entry and returns the tokens in input order.
func (c *Client) SubmitBatch(ctx context.Context, req model.BatchRequest) (model.BatchResult, error) {
	if len(req.Stdin) == 0 {
		return model.BatchResult{}, errors.ValidationError("stdin", "at least one test input is required")
	}
	if len(req.Stdin) != len(req.ExpectedOutputs) {
		return model.BatchResult{}, errors.ValidationError("expected_outputs", "must have one entry per stdin")
	}
	if req.LanguageID <= 0 {
		return model.BatchResult{}, errors.Newf(errors.LanguageNotSupported, "language id %d is not a valid judge language", req.LanguageID)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return model.BatchResult{}, errors.Wrapf(err, errors.InternalServerError, "encode batch request failed")
	}

	logger.Debug(ctx, "judge batch submit",
		zap.Int("language_id", req.LanguageID),
		zap.Int("cases", len(req.Stdin)),
	)
	status, payload, err := c.do(ctx, c.submitHTTP, http.MethodPost, c.baseURL+"/submissions/batch", body)
	if err != nil {
		return model.BatchResult{}, err
	}

	var resp model.BatchResponse
	decodeErr := json.Unmarshal(payload, &resp)

	if status < 200 || status > 299 {
		if decodeErr == nil && isQuotaMessage(resp.Message) {
			return model.BatchResult{}, errors.New(errors.QuotaExceeded).WithMessage(resp.Message)
		}
		return model.BatchResult{}, errors.Newf(errors.JudgeUnavailable, "judge returned HTTP %d", status).
			WithDetail("status", status)
	}
	if decodeErr != nil {
		return model.BatchResult{}, errors.Wrapf(decodeErr, errors.JudgeUnavailable, "decode batch response failed")
	}
	if !resp.Success {
		if isQuotaMessage(resp.Message) {
			return model.BatchResult{}, errors.New(errors.QuotaExceeded).WithMessage(resp.Message)
		}
		rejected := errors.New(errors.SubmissionRejected)
		if resp.Message != "" {
			rejected = rejected.WithMessage(resp.Message)
		}
		return model.BatchResult{}, rejected
	}

	tokens := resp.Data.Tokens
	if len(tokens) != len(req.Stdin) {
		return model.BatchResult{}, errors.New(errors.SubmissionRejected).
			WithDetail("expected_tokens", len(req.Stdin)).
			WithDetail("received_tokens", len(tokens))
	}
	for i, tok := range tokens {
		if tok == "" {
			return model.BatchResult{}, errors.New(errors.SubmissionRejected).WithDetail("empty_token_index", i)
		}
	}

	result := model.BatchResult{Tokens: tokens}
	if len(resp.Data.Submissions) > 0 {
		result.JudgeRef = model.RefString(resp.Data.Submissions[0].ID)
	}
	return result, nil
}

// GetResult fetches the current execution snapshot for token.
func (c *Client) GetResult(ctx context.Context, token model.Token) (model.ExecutionSnapshot, error) {
	if token == "" {
		return model.ExecutionSnapshot{}, errors.ValidationError("token", "required")
	}
	status, payload, err := c.do(ctx, c.pollHTTP, http.MethodGet, c.baseURL+"/submissions/"+url.PathEscape(string(token)), nil)
	if err != nil {
		return model.ExecutionSnapshot{}, err
	}
	if status < 200 || status > 299 {
		return model.ExecutionSnapshot{}, errors.Newf(errors.JudgeUnavailable, "judge returned HTTP %d", status).
			WithDetail("status", status).
			WithDetail("token", string(token))
	}

	var snap model.ExecutionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.ExecutionSnapshot{}, errors.Wrapf(err, errors.JudgeUnavailable, "decode execution snapshot failed")
	}
	logger.Debug(ctx, "judge poll",
		zap.String("token", string(token)),
		zap.Int("status_id", int(snap.Status.ID)),
	)
	return snap, nil
}

func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, endpoint string, body []byte) (int, []byte, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, errors.Wrapf(err, errors.InternalServerError, "build judge request failed")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, errors.Wrapf(ctx.Err(), errors.Canceled, "judge request canceled")
		}
		return 0, nil, errors.Wrapf(err, errors.JudgeUnavailable, "judge request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, errors.Wrapf(err, errors.JudgeUnavailable, "read judge response failed")
	}
	return resp.StatusCode, payload, nil
}

func isQuotaMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "quota")
}

// zapLeveledLogger routes retryablehttp logs through the zap wrapper.
type zapLeveledLogger struct{}

func (zapLeveledLogger) Error(msg string, kv ...interface{}) {
	logger.Error(context.Background(), msg, kvFields(kv)...)
}

func (zapLeveledLogger) Info(msg string, kv ...interface{}) {
	logger.Debug(context.Background(), msg, kvFields(kv)...)
}

func (zapLeveledLogger) Debug(msg string, kv ...interface{}) {
	logger.Debug(context.Background(), msg, kvFields(kv)...)
}

func (zapLeveledLogger) Warn(msg string, kv ...interface{}) {
	logger.Warn(context.Background(), msg, kvFields(kv)...)
}

func kvFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

var _ retryablehttp.LeveledLogger = zapLeveledLogger{}
