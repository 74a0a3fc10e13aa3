// ABOUTME: Resilient API client for the FlashVault backend
// ABOUTME: Header building, per-attempt timeout, linear-backoff retry, 401 teardown

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flashvault/go-client/config"
	"github.com/flashvault/go-client/credstore"
	"github.com/flashvault/go-client/models"
)

// Notifier surfaces a user-facing message, fire-and-forget. Wired when the
// embedding app wants failed requests to show a transient notification.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(string)

func (f NotifierFunc) Notify(message string) { f(message) }

// attempt classification sentinels. Timeouts and cancellations are final;
// everything else feeds the retry loop.
var (
	errAttemptTimeout  = errors.New("attempt timed out")
	errAttemptCanceled = errors.New("request canceled")
)

// Client issues authenticated requests against the backend. It owns the
// process-wide auth-token slot; SetToken and the 401 teardown are expected
// to be driven by a single writer (the session manager), reads are
// snapshots. Every call returns a models.Envelope -- transport failures are
// folded into failure envelopes rather than Go errors, so callers branch on
// one shape.
type Client struct {
	baseURL    string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	appVersion string
	platform   string

	http     *http.Client
	store    *credstore.Store
	notifier Notifier

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport. Attempt timeouts are
// applied per request via context, so the injected client needs no Timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithStore wires the credential store so a 401 response wipes persisted
// secrets along with the in-memory token.
func WithStore(s *credstore.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithNotifier wires the user-facing failure notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:    cfg.APIBaseURL,
		timeout:    cfg.APITimeout,
		retries:    cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		appVersion: cfg.AppVersion,
		platform:   cfg.Platform,
		http:       &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retries < 1 {
		c.retries = 1
	}
	return c
}

// SetToken replaces the in-memory auth token. An empty string clears it and
// subsequent requests go out unauthenticated. The caller is responsible for
// keeping the persisted copy in sync; the client never reads storage itself.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// ClearToken drops the in-memory token; subsequent requests go out
// unauthenticated.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the current in-memory auth token, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Do performs a request with a JSON-encoded body (nil for none) and returns
// the response envelope. See the Client doc for the failure contract.
func (c *Client) Do(ctx context.Context, method, path string, body any, rc *models.RequestConfig) *models.Envelope {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			slog.Error("request body encode failed", "method", method, "path", path, "error", err)
			return &models.Envelope{Success: false, Message: "Invalid request body", Error: "encode_error"}
		}
		payload = data
	}
	return c.send(ctx, method, path, payload, "application/json", rc)
}

func (c *Client) Get(ctx context.Context, path string, rc *models.RequestConfig) *models.Envelope {
	return c.Do(ctx, http.MethodGet, path, nil, rc)
}

func (c *Client) Post(ctx context.Context, path string, body any, rc *models.RequestConfig) *models.Envelope {
	return c.Do(ctx, http.MethodPost, path, body, rc)
}

func (c *Client) Put(ctx context.Context, path string, body any, rc *models.RequestConfig) *models.Envelope {
	return c.Do(ctx, http.MethodPut, path, body, rc)
}

func (c *Client) Patch(ctx context.Context, path string, body any, rc *models.RequestConfig) *models.Envelope {
	return c.Do(ctx, http.MethodPatch, path, body, rc)
}

func (c *Client) Delete(ctx context.Context, path string, rc *models.RequestConfig) *models.Envelope {
	return c.Do(ctx, http.MethodDelete, path, nil, rc)
}

// send runs the attempt/retry loop. Timeouts fail fast without retrying;
// transport errors and 5xx responses retry with linear backoff
// (retryDelay * attempt).
func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType string, rc *models.RequestConfig) *models.Envelope {
	timeout := c.timeout
	retries := c.retries
	if rc != nil {
		if rc.Timeout > 0 {
			timeout = rc.Timeout
		}
		if rc.Retries > 0 {
			retries = rc.Retries
		}
	}
	url := c.resolveURL(path)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		env, err := c.attempt(ctx, method, url, payload, contentType, rc, timeout)
		if env != nil {
			return env
		}

		if errors.Is(err, errAttemptTimeout) {
			slog.Warn("request timed out", "method", method, "url", url, "timeout", timeout)
			return c.finalFailure(rc, "Request timed out. Please try again.", "timeout")
		}
		if errors.Is(err, errAttemptCanceled) {
			return &models.Envelope{Success: false, Message: "Request canceled", Error: "canceled"}
		}

		lastErr = err
		if attempt < retries {
			delay := c.retryDelay * time.Duration(attempt)
			slog.Debug("request failed, retrying", "method", method, "url", url,
				"attempt", attempt, "delay", delay, "error", err)
			if !sleepCtx(ctx, delay) {
				return &models.Envelope{Success: false, Message: "Request canceled", Error: "canceled"}
			}
		}
	}

	slog.Warn("request failed after retries", "method", method, "url", url,
		"attempts", retries, "error", lastErr)
	return c.finalFailure(rc, lastErr.Error(), "network_error")
}

// attempt performs one HTTP round trip. A non-nil envelope is a final
// outcome; a nil envelope with an error feeds the caller's classification.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, contentType string, rc *models.RequestConfig, timeout time.Duration) (*models.Envelope, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, url, body)
	if err != nil {
		slog.Error("failed to build request", "method", method, "url", url, "error", err)
		return &models.Envelope{Success: false, Message: "Invalid request", Error: "bad_request"}, nil
	}
	c.setHeaders(req, contentType, rc)

	resp, err := c.http.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, errAttemptCanceled
		case actx.Err() == context.DeadlineExceeded:
			return nil, errAttemptTimeout
		default:
			return nil, fmt.Errorf("request failed: %w", err)
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Session-ending event: no body parse, no retry.
		c.handleUnauthorized()
		return &models.Envelope{Success: false, Message: "Session expired. Please log in again.", Error: "unauthorized"}, nil

	case resp.StatusCode == http.StatusNotFound:
		return &models.Envelope{Success: false, Message: "Resource not found", Error: "not_found"}, nil

	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("server error: status %d", resp.StatusCode)
	}

	// Everything else, 2xx and remaining 4xx alike: the backend's JSON body
	// is the source of truth for success/message.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("unparseable response body", "method", method, "url", url,
			"status", resp.StatusCode, "error", err)
		return &models.Envelope{Success: false, Message: "Invalid response from server", Error: "parse_error"}, nil
	}
	return &env, nil
}

func (c *Client) setHeaders(req *http.Request, contentType string, rc *models.RequestConfig) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Client-Version", c.appVersion)
	req.Header.Set("X-Platform", c.platform)
	req.Header.Set("X-Request-ID", requestID())
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	// Raw token value, no scheme prefix: the backend does not use Bearer.
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", tok)
	}

	if rc != nil {
		for k, v := range rc.Headers {
			req.Header.Set(k, v)
		}
	}
}

// handleUnauthorized tears down the session: in-memory token first, then the
// persisted secret tier. The caller sees a fixed "session expired" envelope.
func (c *Client) handleUnauthorized() {
	c.ClearToken()
	if c.store != nil {
		if err := c.store.Logout(); err != nil {
			slog.Error("failed to clear credentials after unauthorized response", "error", err)
		}
	}
	slog.Info("session ended by unauthorized response")
}

// finalFailure builds the terminal failure envelope and, unless suppressed,
// notifies the user.
func (c *Client) finalFailure(rc *models.RequestConfig, message, code string) *models.Envelope {
	if rc.ShowErrorEnabled() && c.notifier != nil {
		c.notifier.Notify(message)
	}
	return &models.Envelope{Success: false, Message: message, Error: code}
}

// resolveURL passes absolute URLs through verbatim and prefixes relative
// paths with the configured base URL.
func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// requestID generates a per-request id: millisecond timestamp plus a random
// suffix for collision resistance within the same millisecond.
func requestID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// sleepCtx waits for d, returning false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
