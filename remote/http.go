package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jonwraymond/nodediag/probe"
)

// ProbePath is the agent endpoint that runs probes.
const ProbePath = "/v1/probe"

// maxResponseBytes bounds how much of an agent response is read.
const maxResponseBytes = 16 << 20

// TokenSource mints bearer tokens for agent calls. *auth.Signer satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// probeResponse is the JSON body an agent answers with.
type probeResponse struct {
	Report string `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HTTPChannel runs probes on a worker agent over HTTP.
type HTTPChannel struct {
	address    string
	baseURL    string
	client     *http.Client
	tokens     TokenSource
	propagator propagation.TextMapPropagator
}

// HTTPOption configures an HTTPChannel.
type HTTPOption func(*HTTPChannel)

// WithHTTPClient sets the HTTP client. Default: a client with a 30s timeout.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPChannel) { h.client = c }
}

// WithTokenSource authenticates calls with bearer tokens from ts.
func WithTokenSource(ts TokenSource) HTTPOption {
	return func(h *HTTPChannel) { h.tokens = ts }
}

// WithPropagator sets the trace propagator. Default: otel's global propagator.
func WithPropagator(p propagation.TextMapPropagator) HTTPOption {
	return func(h *HTTPChannel) { h.propagator = p }
}

// NewHTTPChannel creates a channel to the agent at address, given either as
// host:port or as a base URL.
func NewHTTPChannel(address string, opts ...HTTPOption) *HTTPChannel {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	h := &HTTPChannel{
		address: address,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Address returns the address the channel was created with.
func (h *HTTPChannel) Address() string { return h.address }

// Call sends p's spec to the agent and returns the report.
//
// Transport failures wrap ErrUnreachable; non-2xx answers are *AgentError.
func (h *HTTPChannel) Call(ctx context.Context, p probe.Probe) (string, error) {
	spec := p.Spec()
	if spec.Kind == "" {
		return "", probe.ErrNotTransmitable
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("remote: encode spec: %w", err)
	}

	req, err := h.newRequest(ctx, http.MethodPost, ProbePath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out probeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if resp.StatusCode/100 != 2 {
			return "", &AgentError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return "", fmt.Errorf("remote: decode response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &AgentError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return out.Report, nil
}

// Ping checks the agent's liveness endpoint.
func (h *HTTPChannel) Ping(ctx context.Context) error {
	req, err := h.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := h.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode != http.StatusOK {
		return &AgentError{StatusCode: resp.StatusCode, Message: "liveness check failed"}
	}
	return nil
}

func (h *HTTPChannel) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if h.tokens != nil {
		token, err := h.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("remote: mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	prop := h.propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	prop.Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func (h *HTTPChannel) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, nil
}

var (
	_ Channel = (*HTTPChannel)(nil)
	_ Pinger  = (*HTTPChannel)(nil)
)
