package exchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fintrack/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Rates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/latest/USD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.9215}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v6/latest/", srv.Client(), DefaultBreakerConfig(), nil, quietLogger())
	rates, err := c.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.9215").Equal(rates["EUR"]))
}

func TestClient_UnsupportedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"error","error-type":"unsupported-code"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), DefaultBreakerConfig(), nil, quietLogger())
	_, err := c.Rates(context.Background(), "XXX")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedCurrency)
}

func TestClient_UpstreamFailureTripsBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "circuit_breaker_state"}, []string{"name"})
	cfg := BreakerConfig{MaxRequests: 1, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2}
	c := NewClient(srv.URL, srv.Client(), cfg, state, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := c.Rates(context.Background(), "USD")
		var upstream *apperrors.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	}

	_, err := c.Rates(context.Background(), "USD")
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "circuit open", upstream.Detail)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the upstream")
	assert.Equal(t, float64(2), testutil.ToFloat64(state.WithLabelValues(serviceName)))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, DefaultBreakerConfig(), nil, quietLogger())
	_, err := c.Rates(context.Background(), "USD")
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.StatusCode)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), DefaultBreakerConfig(), nil, quietLogger())
	_, err := c.Rates(context.Background(), "USD")
	var upstream *apperrors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "malformed response", upstream.Detail)
}
