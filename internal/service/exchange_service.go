package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/obs"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// RateSource returns the conversion rates for a base currency.
type RateSource interface {
	Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// RateCache stores serialized rate tables.
type RateCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Conversion is the result of converting an amount between two currencies.
type Conversion struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
	Result decimal.Decimal `json:"result"`
}

// ExchangeService converts amounts using upstream exchange rates.
type ExchangeService interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*Conversion, error)
}

type exchangeService struct {
	source RateSource
	cache  RateCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewExchangeService creates a new exchange service. cache may be nil.
func NewExchangeService(source RateSource, cache RateCache, ttl time.Duration, logger *slog.Logger) ExchangeService {
	return &exchangeService{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Convert converts amount from one currency to another. Identical currencies
// convert at rate 1 without contacting the upstream.
func (s *exchangeService) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !currencyCode.MatchString(from) || !currencyCode.MatchString(to) {
		return nil, apperrors.NewValidationError("currency codes must be three letters")
	}
	if amount.IsNegative() {
		return nil, apperrors.NewValidationError("amount must not be negative")
	}

	rate := decimal.NewFromInt(1)
	if from != to {
		rates, err := s.rates(ctx, from)
		if err != nil {
			return nil, err
		}
		r, ok := rates[to]
		if !ok {
			return nil, apperrors.ErrUnsupportedCurrency
		}
		rate = r
	}

	return &Conversion{
		From:   from,
		To:     to,
		Rate:   rate,
		Amount: amount,
		Result: amount.Mul(rate).Round(2),
	}, nil
}

func (s *exchangeService) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	key := "fx:rates:" + base
	log := obs.WithContext(ctx, s.logger)

	if s.cache != nil {
		if raw, _ := s.cache.Get(ctx, key); raw != nil {
			var cached map[string]decimal.Decimal
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			log.Warn("discarding unreadable cached rates", slog.String("base", base))
			if err := s.cache.Delete(ctx, key); err != nil {
				log.Warn("evict cached rates", slog.String("base", base), slog.Any("error", err))
			}
		}
	}

	rates, err := s.source.Rates(ctx, base)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(rates); err == nil {
			_ = s.cache.Set(ctx, key, raw, s.ttl)
		}
	}
	return rates, nil
}
