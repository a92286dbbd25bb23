package ledger

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
)

// maxResponseBytes bounds ledger responses read into memory.
const maxResponseBytes = 1 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// HTTPClient talks JSON over HTTP to a remote ledger node (see Server).
type HTTPClient struct {
	baseURL string
	client  HTTPDoer
}

// NewHTTPClient creates a client for the node at cfg.BaseURL.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type fingerprintRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type anchorResponse struct {
	Ref string `json:"ref"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Anchor implements Client.
func (c *HTTPClient) Anchor(ctx context.Context, fingerprint string) (string, error) {
	const op = "anchor"
	var resp anchorResponse
	if err := c.do(ctx, op, http.MethodPost, "/v1/anchors", fingerprintRequest{Fingerprint: fingerprint}, &resp); err != nil {
		return "", err
	}
	if resp.Ref == "" {
		return "", NewError(CategoryBadData, op, "response missing ref", nil)
	}
	return resp.Ref, nil
}

// Check implements Client.
func (c *HTTPClient) Check(ctx context.Context, ref, fingerprint string) (CheckResult, error) {
	const op = "check"
	var resp CheckResult
	path := "/v1/anchors/" + url.PathEscape(ref) + "/check"
	if err := c.do(ctx, op, http.MethodPost, path, fingerprintRequest{Fingerprint: fingerprint}, &resp); err != nil {
		return CheckResult{}, err
	}
	return resp, nil
}

// VerifyChain asks the node to walk its chain.
func (c *HTTPClient) VerifyChain(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	if err := c.do(ctx, "verify", http.MethodGet, "/v1/chain/verify", nil, &report); err != nil {
		return VerifyReport{}, err
	}
	return report, nil
}

// Ping checks that the node answers its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return NewError(CategoryBadData, op, "failed to marshal request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return NewError(CategoryInternal, op, "failed to create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := fromContext(ctx, op, err); ctxErr != nil {
			return ctxErr
		}
		return NewError(CategoryUnavailable, op, "failed to execute request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := fromContext(ctx, op, err); ctxErr != nil {
			return ctxErr
		}
		return NewError(CategoryUnavailable, op, "failed to read response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(op, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewError(CategoryBadData, op, "failed to decode response", err)
	}
	return nil
}

func statusError(op string, status int, raw []byte) *Error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)
	msg := fmt.Sprintf("ledger returned %d", status)
	if body.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, body.Description)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewError(CategoryRateLimited, op, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(CategoryTimeout, op, msg, nil)
	case status == http.StatusInternalServerError:
		return NewError(CategoryInternal, op, msg, nil)
	case status >= http.StatusInternalServerError:
		return NewError(CategoryUnavailable, op, msg, nil)
	default:
		return NewError(CategoryRejected, op, msg, nil)
	}
}

var _ Client = (*HTTPClient)(nil)
