package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syntropic/vecfeed/vectordb"
)

const (
	// DefaultBaseURL matches a local docker-compose instance.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultClass is the collection chunk objects live in.
	DefaultClass = "DocumentChunk"

	// DefaultVectorizer embeds server-side through the backend's
	// OpenAI module. Set Vectorizer to "none" when vectors are
	// attached client-side.
	DefaultVectorizer = "text2vec-openai"

	// DefaultTimeout bounds each HTTP request. Batch upserts against a
	// vectorizing backend can legitimately take tens of seconds.
	DefaultTimeout = 90 * time.Second
)

// Config holds connection settings for a Weaviate instance.
type Config struct {
	// BaseURL is the instance root, e.g. "http://localhost:8080".
	BaseURL string

	// APIKey is sent as a bearer token when set. Local instances
	// typically run unauthenticated.
	APIKey string

	// Class is the collection all chunk objects are written to.
	Class string

	// Vectorizer names the server-side embedding module for the class,
	// or "none" when vectors are supplied with each object.
	Vectorizer string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// normalize fills in defaults for unset fields.
func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Class == "" {
		c.Class = DefaultClass
	}
	if c.Vectorizer == "" {
		c.Vectorizer = DefaultVectorizer
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate normalizes the config and checks it is usable.
func (c *Config) Validate() error {
	c.normalize()
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q", vectordb.ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Client talks to a Weaviate instance over its REST API. It implements
// vectordb.Store and adds schema management and query passthrough.
// Safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	class      string
	vectorizer string
	logger     *slog.Logger
}

var _ vectordb.Store = (*Client)(nil)

// New creates a client for the configured instance. No network traffic
// happens here; use Ready to probe the instance.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		class:      cfg.Class,
		vectorizer: cfg.Vectorizer,
		logger:     logger.With("component", "weaviate"),
	}, nil
}

// Class returns the collection name this client operates on.
func (c *Client) Class() string { return c.class }

// Meta describes the backend build, from GET /v1/meta.
type Meta struct {
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
}

// Meta fetches the instance build info.
func (c *Client) Meta(ctx context.Context) (*Meta, error) {
	var meta Meta
	if err := c.do(ctx, http.MethodGet, "/v1/meta", nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Ready reports whether the instance is reachable and serving.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.Meta(ctx)
	return err
}

// do sends one request and decodes the body into out when out is
// non-nil. Transport failures map to ErrUnavailable; HTTP statuses map
// to the vectordb error taxonomy via classifyStatus.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Keep context cancellation visible to callers that check for it.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", vectordb.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s %s response: %v", vectordb.ErrUnavailable, method, path, err)
	}

	if err := classifyStatus(resp, data); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// classifyStatus maps an HTTP status onto the vectordb error taxonomy.
// The response body rides along in the message because weaviate puts
// its diagnostics there.
func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		return &vectordb.ThrottledError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", vectordb.ErrAuth, code, errorMessage(body))
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", vectordb.ErrNotFound, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", vectordb.ErrUnavailable, code, errorMessage(body))
	default:
		return fmt.Errorf("%w: status %d: %s", vectordb.ErrRejected, code, errorMessage(body))
	}
}

// errorMessage extracts weaviate's error payload, falling back to the
// raw body. The payload shape is {"error": [{"message": "..."}]}.
func errorMessage(body []byte) string {
	var payload struct {
		Error []struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
		return payload.Error[0].Message
	}
	return strings.TrimSpace(string(body))
}

// parseRetryAfter reads a Retry-After header in either HTTP form:
// delay seconds or an absolute date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
