package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	apperrors "fintrack/internal/errors"
)

const serviceName = "exchange-rate"

// BreakerConfig tunes the circuit breaker guarding the upstream.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ratesResponse mirrors the upstream payload, e.g.
// {"result":"success","base_code":"USD","rates":{"EUR":0.92}}.
type ratesResponse struct {
	Result    string                     `json:"result"`
	BaseCode  string                     `json:"base_code"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	ErrorType string                     `json:"error-type"`
}

// Client fetches currency rates through a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*ratesResponse]
	logger  *slog.Logger
}

// NewClient creates a rates client. state may be nil.
func NewClient(baseURL string, httpClient *http.Client, cfg BreakerConfig, state *prometheus.GaugeVec, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	settings := gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// A rejected currency code is the caller's problem, not an outage.
			if errors.Is(err, apperrors.ErrUnsupportedCurrency) {
				return true
			}
			var upstream *apperrors.UpstreamError
			if errors.As(err, &upstream) {
				return upstream.StatusCode > 0 && upstream.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if state != nil {
				state.WithLabelValues(name).Set(float64(to))
			}
		},
	}
	if state != nil {
		state.WithLabelValues(serviceName).Set(float64(gobreaker.StateClosed))
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[*ratesResponse](settings),
		logger:  logger,
	}
}

// Rates returns the conversion rates from base to every quoted currency.
func (c *Client) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	resp, err := c.breaker.Execute(func() (*ratesResponse, error) {
		return c.fetch(ctx, base)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &apperrors.UpstreamError{Service: serviceName, Detail: "circuit open", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return resp.Rates, nil
}

func (c *Client) fetch(ctx context.Context, base string) (*ratesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.UpstreamError{Service: serviceName, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &apperrors.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: res.StatusCode,
			Detail:     fmt.Sprintf("status %d", res.StatusCode),
		}
	}

	var payload ratesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: res.StatusCode,
			Detail:     "malformed response",
			Err:        err,
		}
	}
	if res.StatusCode != http.StatusOK || payload.Result != "success" {
		detail := payload.ErrorType
		if detail == "" {
			detail = fmt.Sprintf("status %d", res.StatusCode)
		}
		if detail == "unsupported-code" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedCurrency, base)
		}
		return nil, &apperrors.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Detail: detail}
	}
	return &payload, nil
}
