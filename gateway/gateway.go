// Package gateway is the single path from the console to the RANSXM
// service. Every call goes through Gateway.Request, which attaches the
// bearer credential, encodes and decodes JSON, and turns every failure into
// a plain Result carrying an "error" field.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ransxm/ransxm-console/nav"
	"github.com/ransxm/ransxm-console/session"
)

// DefaultBaseURL is the hosted RANSXM API.
const DefaultBaseURL = "https://ransxm-api.onrender.com/api"

// DefaultTimeout bounds a request when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

const (
	defaultUserAgent = "ransxm-console"
	maxResponseBytes = 64 << 20
)

// Config holds the configuration for a Gateway.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Options describes one request. Method defaults to GET. A Body of type
// string, []byte or json.RawMessage is sent verbatim; any other non-nil value
// is JSON-encoded.
type Options struct {
	Method  string
	Body    any
	Headers map[string]string
	Query   url.Values
	// AcceptContent keeps a successful non-JSON body as Result content.
	// Without it such a body is a connection failure.
	AcceptContent bool
}

// Metrics is a snapshot of request counters.
type Metrics struct {
	Requests          uint64
	AuthFailures      uint64
	TransportFailures uint64
}

// Gateway performs authenticated requests against the service.
type Gateway struct {
	baseURL   string
	userAgent string
	client    *http.Client
	session   *session.Manager
	nav       nav.Navigator
	logger    *zap.Logger

	requests          atomic.Uint64
	authFailures      atomic.Uint64
	transportFailures atomic.Uint64
}

// New creates a gateway. sess supplies the bearer token and is torn down on
// authentication failures; navigator receives the forced redirect.
func New(cfg Config, sess *session.Manager, navigator nav.Navigator, logger *zap.Logger) (*Gateway, error) {
	if sess == nil {
		return nil, fmt.Errorf("gateway requires a session manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if navigator == nil {
		navigator = nav.Discard
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", base)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Gateway{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: userAgent,
		client:    client,
		session:   sess,
		nav:       navigator,
		logger:    logger,
	}, nil
}

// BaseURL returns the service base URL.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Session returns the session manager the gateway authenticates with.
func (g *Gateway) Session() *session.Manager {
	return g.session
}

// Metrics returns the current counters.
func (g *Gateway) Metrics() Metrics {
	return Metrics{
		Requests:          g.requests.Load(),
		AuthFailures:      g.authFailures.Load(),
		TransportFailures: g.transportFailures.Load(),
	}
}

// Request sends one request to endpoint (relative to the base URL). It never
// returns a Go error: failures come back as a Result with an "error" field.
func (g *Gateway) Request(ctx context.Context, endpoint string, opts Options) Result {
	g.requests.Add(1)

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	requestID := requestIDFor(ctx)
	logger := g.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	)

	req, err := g.buildRequest(ctx, method, endpoint, opts, requestID)
	if err != nil {
		return g.transportFailure(logger, err)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return g.transportFailure(logger, err)
	}
	defer resp.Body.Close()

	logger.Debug("Request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return g.authFailure(ctx, logger)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return g.transportFailure(logger, err)
	}

	result, err := decodeBody(resp, body, opts.AcceptContent)
	if err != nil {
		return g.transportFailure(logger, err)
	}

	if resp.StatusCode >= http.StatusBadRequest && !result.Has("error") {
		result = errorResult(http.StatusText(resp.StatusCode))
	}
	return result
}

func (g *Gateway) buildRequest(ctx context.Context, method, endpoint string, opts Options, requestID string) (*http.Request, error) {
	var body io.Reader
	switch b := opts.Body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	case []byte:
		body = bytes.NewReader(b)
	case json.RawMessage:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := g.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	// The bearer credential is applied last so no caller header replaces it.
	if token := g.session.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func decodeBody(resp *http.Response, body []byte, acceptContent bool) (Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Result{}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !isJSON(contentType) {
		if !acceptContent || resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("unexpected %s response with status %d", contentType, resp.StatusCode)
		}
		return Result{"content": string(body), "content_type": contentType}, nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		return Result(m), nil
	}
	return Result{"data": v}, nil
}

// isJSON treats a missing content type as JSON.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (g *Gateway) authFailure(ctx context.Context, logger *zap.Logger) Result {
	g.authFailures.Add(1)
	logger.Warn("Session rejected by service, logging out")

	if err := g.session.Destroy(ctx); err != nil {
		logger.Error("Failed to clear session", zap.Error(err))
	}
	g.nav.Navigate(nav.EntryPage)
	return errorResult(ErrSessionExpired)
}

func (g *Gateway) transportFailure(logger *zap.Logger, err error) Result {
	g.transportFailures.Add(1)
	logger.Warn("Request failed", zap.Error(err))
	return errorResult(ErrConnectionFailed)
}
