package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"opledger/internal/model"
)

const maxResponseBody = 64 << 10

// Result is the outcome of a successful call.
type Result struct {
	StatusCode int
	Body       model.Payload
}

// Executor performs the external call an operation record describes.
// A returned *CallError tells the poller whether the attempt may be retried;
// any other error is treated as retryable.
type Executor interface {
	Execute(ctx context.Context, op *model.Operation) (*Result, error)
}

// CallError describes a failed attempt.
type CallError struct {
	Retryable  bool
	StatusCode int
	Body       model.Payload
	RetryAfter *time.Duration
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("endpoint returned %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "call failed"
}

func (e *CallError) Unwrap() error { return e.Err }

// HTTPExecutor replays operations as HTTP requests.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor returns an executor whose client is traced and bounded by timeout.
func NewHTTPExecutor(timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPExecutor{client: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// Execute sends op.RequestPayload as JSON to op.Endpoint. 2xx responses succeed;
// 408, 429 and 5xx responses and transport errors are retryable; any other
// status is a permanent failure.
func (e *HTTPExecutor) Execute(ctx context.Context, op *model.Operation) (*Result, error) {
	if op.Endpoint == "" {
		return nil, &CallError{Err: errors.New("operation has no endpoint")}
	}
	method := op.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if op.RequestPayload != nil && method != http.MethodGet {
		b, err := json.Marshal(op.RequestPayload)
		if err != nil {
			return nil, &CallError{Err: fmt.Errorf("encode request payload: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, op.Endpoint, body)
	if err != nil {
		return nil, &CallError{Err: fmt.Errorf("build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", op.OperationType+":"+op.OperationID)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &CallError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	payload := decodeBody(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Result{StatusCode: resp.StatusCode, Body: payload}, nil
	}
	return nil, &CallError{
		Retryable:  retryableStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Body:       payload,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func decodeBody(r io.Reader) model.Payload {
	raw, err := io.ReadAll(io.LimitReader(r, maxResponseBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var p model.Payload
	if err := json.Unmarshal(raw, &p); err == nil {
		return p
	}
	return model.Payload{"raw": string(raw)}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		return &d
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
