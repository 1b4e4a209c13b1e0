// Package gated fetches resources protected by an HTTP 402 payment gate.
package gated

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/types"
	"github.com/vitwit/x402pay/utils"
)

// HeaderTransactionHash carries the payment evidence on a gated request.
const HeaderTransactionHash = types.HeaderTransactionHash

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

// Result is the outcome of one fetch. Exactly one of Payload and Requirement
// is meaningful: Requirement is set when the gate answered 402.
type Result struct {
	StatusCode  int
	Payload     json.RawMessage
	Requirement *types.PaymentRequirement
}

// PaymentRequired reports whether the gate refused the request.
func (r *Result) PaymentRequired() bool {
	return r.Requirement != nil
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v any) error {
	if r.PaymentRequired() {
		return types.NewError(types.ErrInvalidPayload, "no payload: payment required", nil)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return types.NewError(types.ErrInvalidPayload, fmt.Sprintf("failed to decode payload: %v", err), err)
	}
	return nil
}

// Config configures the client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxBodyBytes int64
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client issues GET requests to a gated server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxBody    int64
	log        logger.Logger
}

func New(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		maxBody:    maxBody,
		log:        logger.OrNoop(log),
	}
}

// Fetch sends exactly one GET for path with proof as payment evidence.
//
// A 402 answer is not an error: it yields a Result whose Requirement says what
// the gate wants. Other non-2xx answers are SERVER_ERROR; transport failures
// are NETWORK_ERROR.
func (c *Client) Fetch(ctx context.Context, path, proof string) (*Result, error) {
	return c.Do(ctx, types.GatedRequest{ResourcePath: path, Proof: proof})
}

// Do executes one gated request.
func (c *Client) Do(ctx context.Context, gr types.GatedRequest) (*Result, error) {
	url := c.resolve(gr.ResourcePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, fmt.Sprintf("failed to create request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTransactionHash, gr.Proof)

	fields := map[string]any{"url": url, "txHash": gr.Proof}
	c.log.Debug("fetching gated resource", fields)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("gated request failed", map[string]any{"url": url, "error": err})
		return nil, types.NewError(types.ErrNetworkError, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	body, err := readAllWithLimit(resp.Body, c.maxBody)
	if err != nil {
		return nil, types.NewError(types.ErrNetworkError, fmt.Sprintf("failed to read response: %v", err), err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		requirement, perr := utils.ParsePaymentRequirement(body)
		if perr != nil {
			// Keep the gate's answer even when it is not in a known shape.
			if requirement.Error == "" {
				requirement.Error = strings.TrimSpace(string(body))
			}
			c.log.Warn("unrecognized payment requirement", map[string]any{"url": url, "error": perr})
		}
		c.log.Info("payment required", map[string]any{"url": url, "reason": requirement.Error})
		return &Result{StatusCode: resp.StatusCode, Requirement: requirement}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.log.Info("gated resource received", map[string]any{"url": url, "status": resp.StatusCode})
		return &Result{StatusCode: resp.StatusCode, Payload: json.RawMessage(body)}, nil

	default:
		c.log.Warn("gated server error", map[string]any{"url": url, "status": resp.StatusCode})
		return nil, &types.X402Error{
			Code:    types.ErrServerError,
			Message: serverErrorMessage(resp, body),
			Status:  resp.StatusCode,
		}
	}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// serverErrorMessage is the status line, plus the server's "error" field when
// the body is a JSON object carrying one.
func serverErrorMessage(resp *http.Response, body []byte) string {
	msg := resp.Status
	if msg == "" {
		msg = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg += ": " + payload.Error
	}
	return msg
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}
