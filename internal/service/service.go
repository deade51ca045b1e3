// Package service holds the exchange rate domain rules: timestamp-gated
// writes, the one-record-per-exact-key invariant, and the typed failures the
// outer surfaces translate for callers.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/letrung1998vn/currency-exchange/internal/storage"
	"github.com/letrung1998vn/currency-exchange/internal/timestamp"
)

// DefaultQuoteCurrency is applied when a caller supplies no quote side.
const DefaultQuoteCurrency = "USD"

var (
	// ErrInvalidTimestamp rejects date-time text failing the strict layout.
	ErrInvalidTimestamp = timestamp.ErrInvalidTimestamp
	// ErrDuplicateRate rejects a write colliding with an existing exact key.
	ErrDuplicateRate = errors.New("exchange rate already recorded for this currency and time")
	// ErrRateNotFound indicates an update target that does not exist.
	ErrRateNotFound = errors.New("exchange rate to update not found")
	// ErrNotFound indicates an empty result for a read that requires records.
	ErrNotFound = errors.New("no exchange rates found")
)

// RateInput carries the six price fields supplied to create or update a record.
type RateInput struct {
	AverageBid decimal.Decimal
	AverageAsk decimal.Decimal
	HighBid    decimal.Decimal
	HighAsk    decimal.Decimal
	LowBid     decimal.Decimal
	LowAsk     decimal.Decimal
}

// RateService orchestrates rate record CRUD over a dumb store.
type RateService struct {
	store  storage.ExchangeRateStore
	logger zerolog.Logger
}

// New constructs the rate service.
func New(store storage.ExchangeRateStore, logger zerolog.Logger) *RateService {
	return &RateService{
		store:  store,
		logger: logger.With().Str("component", "rate_service").Logger(),
	}
}

func resolveQuote(quote string) string {
	if quote == "" {
		return DefaultQuoteCurrency
	}
	return quote
}

// Add records a new rate at (base, quote, timestampText). The insert is
// conditional on the exact key; a collision surfaces as ErrDuplicateRate and
// leaves the store unchanged.
func (s *RateService) Add(ctx context.Context, base, quote, timestampText string, input RateInput) (storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return storage.ExchangeRate{}, err
	}

	rate := storage.ExchangeRate{
		BaseCurrency:  base,
		QuoteCurrency: resolveQuote(quote),
		UpdateTime:    at,
		AverageBid:    input.AverageBid,
		AverageAsk:    input.AverageAsk,
		HighBid:       input.HighBid,
		HighAsk:       input.HighAsk,
		LowBid:        input.LowBid,
		LowAsk:        input.LowAsk,
	}

	saved, err := s.store.InsertRate(ctx, rate)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return storage.ExchangeRate{}, fmt.Errorf("%w: %s/%s at %s",
				ErrDuplicateRate, base, rate.QuoteCurrency, timestampText)
		}
		return storage.ExchangeRate{}, fmt.Errorf("add exchange rate: %w", err)
	}

	s.logger.Debug().
		Str("base", saved.BaseCurrency).
		Str("quote", saved.QuoteCurrency).
		Time("update_time", saved.UpdateTime).
		Msg("exchange rate added")
	return saved, nil
}

// List returns every record for a base currency ordered by base currency
// ascending, failing with ErrNotFound when the scope is empty.
func (s *RateService) List(ctx context.Context, base string) ([]storage.ExchangeRate, error) {
	rates, err := s.store.ListByBase(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("list exchange rates: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, base)
	}
	return rates, nil
}

// ListPair behaves as List scoped to a currency pair.
func (s *RateService) ListPair(ctx context.Context, base, quote string) ([]storage.ExchangeRate, error) {
	rates, err := s.store.ListByPair(ctx, base, resolveQuote(quote))
	if err != nil {
		return nil, fmt.Errorf("list exchange rates: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, base, resolveQuote(quote))
	}
	return rates, nil
}

// GetAtTime returns the single record at the exact key, failing with
// ErrNotFound when absent. ListAtTime is its list-shaped sibling; callers
// depend on the two behaviours separately, so they stay distinct operations.
func (s *RateService) GetAtTime(ctx context.Context, base, quote, timestampText string) (storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return storage.ExchangeRate{}, err
	}

	rate, err := s.store.FindAtTime(ctx, base, resolveQuote(quote), at)
	if err != nil {
		return storage.ExchangeRate{}, fmt.Errorf("get exchange rate at time: %w", err)
	}
	if rate == nil {
		return storage.ExchangeRate{}, fmt.Errorf("%w: %s at %s", ErrNotFound, base, timestampText)
	}
	return *rate, nil
}

// ListAtTime returns the records for a base currency at the exact timestamp.
// An empty result is an empty list, not an error.
func (s *RateService) ListAtTime(ctx context.Context, base, timestampText string) ([]storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.ListAtTime(ctx, base, at)
	if err != nil {
		return nil, fmt.Errorf("list exchange rates at time: %w", err)
	}
	return rates, nil
}

// ListByBaseAtTime returns all records for one base currency code at an exact
// timestamp, failing with ErrNotFound when empty.
func (s *RateService) ListByBaseAtTime(ctx context.Context, base, timestampText string) ([]storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.ListAtTime(ctx, base, at)
	if err != nil {
		return nil, fmt.Errorf("list by base code: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: base %s at %s", ErrNotFound, base, timestampText)
	}
	return rates, nil
}

// ListByQuoteAtTime returns all records for one quote currency code at an
// exact timestamp, failing with ErrNotFound when empty.
func (s *RateService) ListByQuoteAtTime(ctx context.Context, quote, timestampText string) ([]storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.ListByQuoteAtTime(ctx, quote, at)
	if err != nil {
		return nil, fmt.Errorf("list by quote code: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: quote %s at %s", ErrNotFound, quote, timestampText)
	}
	return rates, nil
}

// Update overwrites the six price fields of the exact-key record, failing
// with ErrRateNotFound when no record exists there. Identity and key fields
// are never touched.
func (s *RateService) Update(ctx context.Context, base, quote, timestampText string, input RateInput) (storage.ExchangeRate, error) {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return storage.ExchangeRate{}, err
	}

	existing, err := s.store.FindAtTime(ctx, base, resolveQuote(quote), at)
	if err != nil {
		return storage.ExchangeRate{}, fmt.Errorf("update exchange rate: %w", err)
	}
	if existing == nil {
		return storage.ExchangeRate{}, fmt.Errorf("%w: %s at %s", ErrRateNotFound, base, timestampText)
	}

	existing.AverageBid = input.AverageBid
	existing.AverageAsk = input.AverageAsk
	existing.HighBid = input.HighBid
	existing.HighAsk = input.HighAsk
	existing.LowBid = input.LowBid
	existing.LowAsk = input.LowAsk

	if err := s.store.UpdateRate(ctx, *existing); err != nil {
		return storage.ExchangeRate{}, fmt.Errorf("update exchange rate: %w", err)
	}

	s.logger.Debug().
		Str("base", existing.BaseCurrency).
		Time("update_time", existing.UpdateTime).
		Msg("exchange rate updated")
	return *existing, nil
}

// Delete removes every record for a base currency. Absence is not an error.
func (s *RateService) Delete(ctx context.Context, base string) error {
	if err := s.store.DeleteByBase(ctx, base); err != nil {
		return fmt.Errorf("delete exchange rates: %w", err)
	}
	return nil
}

// DeletePair removes every record for a currency pair. Absence is not an error.
func (s *RateService) DeletePair(ctx context.Context, base, quote string) error {
	if err := s.store.DeleteByPair(ctx, base, resolveQuote(quote)); err != nil {
		return fmt.Errorf("delete exchange rates: %w", err)
	}
	return nil
}

// DeleteAtTime removes the exact-key record only. Absence is not an error.
func (s *RateService) DeleteAtTime(ctx context.Context, base, quote, timestampText string) error {
	at, err := timestamp.Parse(timestampText)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAtTime(ctx, base, resolveQuote(quote), at); err != nil {
		return fmt.Errorf("delete exchange rate at time: %w", err)
	}
	return nil
}
