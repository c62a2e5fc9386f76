package weaviate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntropic/vecfeed/vectordb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.Vectorizer == "" {
		cfg.Vectorizer = "none"
	}
	client, err := New(cfg, testLogger())
	require.NoError(t, err)
	return client
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultClass, cfg.Class)
	assert.Equal(t, DefaultVectorizer, cfg.Vectorizer)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestConfigTrimsTrailingSlash(t *testing.T) {
	cfg := Config{BaseURL: "http://weaviate:8080/"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://weaviate:8080", cfg.BaseURL)
}

func TestConfigRejectsUnparsableURL(t *testing.T) {
	cfg := Config{BaseURL: "not a url"}
	err := cfg.Validate()
	assert.ErrorIs(t, err, vectordb.ErrInvalidConfig)
}

func TestReady(t *testing.T) {
	var sawAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/meta", r.URL.Path)
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"version":"1.27.3","hostname":"http://[::]:8080"}`))
	})

	client := newTestClient(t, handler, Config{})
	require.NoError(t, client.Ready(context.Background()))
	assert.Empty(t, sawAuth, "no API key configured, no auth header expected")

	meta, err := client.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.27.3", meta.Version)
}

func TestAPIKeySentAsBearer(t *testing.T) {
	var sawAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"version":"1.27.3"}`))
	})

	client := newTestClient(t, handler, Config{APIKey: "sekrit"})
	require.NoError(t, client.Ready(context.Background()))
	assert.Equal(t, "Bearer sekrit", sawAuth)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, vectordb.ErrAuth},
		{"forbidden", http.StatusForbidden, vectordb.ErrAuth},
		{"not found", http.StatusNotFound, vectordb.ErrNotFound},
		{"unprocessable", http.StatusUnprocessableEntity, vectordb.ErrRejected},
		{"bad request", http.StatusBadRequest, vectordb.ErrRejected},
		{"too many requests", http.StatusTooManyRequests, vectordb.ErrThrottled},
		{"service unavailable", http.StatusServiceUnavailable, vectordb.ErrThrottled},
		{"internal error", http.StatusInternalServerError, vectordb.ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, vectordb.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":[{"message":"nope"}]}`))
			})
			client := newTestClient(t, handler, Config{})

			err := client.Ready(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestErrorMessageSurfacesBackendDiagnostics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":[{"message":"invalid text property"}]}`))
	})
	client := newTestClient(t, handler, Config{})

	err := client.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid text property")
}

func TestRetryAfterSeconds(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := newTestClient(t, handler, Config{})

	err := client.Ready(context.Background())
	require.ErrorIs(t, err, vectordb.ErrThrottled)
	assert.Equal(t, 30*time.Second, vectordb.RetryAfterHint(err))
}

func TestRetryAfterHTTPDate(t *testing.T) {
	resetAt := time.Now().Add(90 * time.Second)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", resetAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, handler, Config{})

	err := client.Ready(context.Background())
	require.ErrorIs(t, err, vectordb.ErrThrottled)

	hint := vectordb.RetryAfterHint(err)
	assert.Greater(t, hint, 60*time.Second)
	assert.LessOrEqual(t, hint, 91*time.Second)
}

func TestRetryAfterAbsentYieldsZeroHint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := newTestClient(t, handler, Config{})

	err := client.Ready(context.Background())
	require.ErrorIs(t, err, vectordb.ErrThrottled)
	assert.Zero(t, vectordb.RetryAfterHint(err))
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	cfg := Config{BaseURL: srv.URL, Vectorizer: "none"}
	client, err := New(cfg, testLogger())
	require.NoError(t, err)
	srv.Close()

	err = client.Ready(context.Background())
	assert.ErrorIs(t, err, vectordb.ErrUnavailable)
}

func TestContextCancellationSurfaces(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client := newTestClient(t, handler, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Ready(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 12*time.Second, parseRetryAfter("12"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("0"))
	assert.Zero(t, parseRetryAfter("-3"))
	assert.Zero(t, parseRetryAfter("garbage"))

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Zero(t, parseRetryAfter(past), "dates in the past mean no wait")
}
