package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded ExchangeRateStore kept entirely in process
// memory. It backs DSN-less runs and tests; semantics mirror the SQL store,
// including the conditional insert.
type MemoryStore struct {
	mu     sync.RWMutex
	rates  []ExchangeRate
	nextID int64
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func sameKey(r ExchangeRate, base, quote string, at time.Time) bool {
	return r.BaseCurrency == base && r.QuoteCurrency == quote && r.UpdateTime.Equal(at)
}

func sortRates(rates []ExchangeRate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].BaseCurrency != rates[j].BaseCurrency {
			return rates[i].BaseCurrency < rates[j].BaseCurrency
		}
		return rates[i].UpdateTime.Before(rates[j].UpdateTime)
	})
}

// InsertRate appends a record unless its exact key already exists.
func (m *MemoryStore) InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rates {
		if sameKey(existing, rate.BaseCurrency, rate.QuoteCurrency, rate.UpdateTime) {
			return ExchangeRate{}, ErrDuplicateKey
		}
	}

	rate.ID = m.nextID
	m.nextID++
	rate.CreatedAt = time.Now().UTC()
	m.rates = append(m.rates, rate)
	return rate, nil
}

// UpdateRate overwrites the six price fields of the record with rate.ID.
func (m *MemoryStore) UpdateRate(ctx context.Context, rate ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rates {
		if m.rates[i].ID == rate.ID {
			m.rates[i].AverageBid = rate.AverageBid
			m.rates[i].AverageAsk = rate.AverageAsk
			m.rates[i].HighBid = rate.HighBid
			m.rates[i].HighAsk = rate.HighAsk
			m.rates[i].LowBid = rate.LowBid
			m.rates[i].LowAsk = rate.LowAsk
			return nil
		}
	}
	return ErrRecordNotFound
}

func (m *MemoryStore) filter(keep func(ExchangeRate) bool) []ExchangeRate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ExchangeRate, 0)
	for _, rate := range m.rates {
		if keep(rate) {
			result = append(result, rate)
		}
	}
	sortRates(result)
	return result
}

// ListByBase lists every record for a base currency.
func (m *MemoryStore) ListByBase(ctx context.Context, base string) ([]ExchangeRate, error) {
	return m.filter(func(r ExchangeRate) bool { return r.BaseCurrency == base }), nil
}

// ListByPair lists every record for a currency pair.
func (m *MemoryStore) ListByPair(ctx context.Context, base, quote string) ([]ExchangeRate, error) {
	return m.filter(func(r ExchangeRate) bool {
		return r.BaseCurrency == base && r.QuoteCurrency == quote
	}), nil
}

// FindAtTime returns the record at an exact key, or nil when absent.
func (m *MemoryStore) FindAtTime(ctx context.Context, base, quote string, at time.Time) (*ExchangeRate, error) {
	matches := m.filter(func(r ExchangeRate) bool { return sameKey(r, base, quote, at) })
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// ListAtTime lists records for a base currency at an exact timestamp.
func (m *MemoryStore) ListAtTime(ctx context.Context, base string, at time.Time) ([]ExchangeRate, error) {
	return m.filter(func(r ExchangeRate) bool {
		return r.BaseCurrency == base && r.UpdateTime.Equal(at)
	}), nil
}

// ListByQuoteAtTime lists records for a quote currency at an exact timestamp.
func (m *MemoryStore) ListByQuoteAtTime(ctx context.Context, quote string, at time.Time) ([]ExchangeRate, error) {
	return m.filter(func(r ExchangeRate) bool {
		return r.QuoteCurrency == quote && r.UpdateTime.Equal(at)
	}), nil
}

// ListBetween lists records for a base currency within [from, to).
func (m *MemoryStore) ListBetween(ctx context.Context, base string, from, to time.Time) ([]ExchangeRate, error) {
	return m.filter(func(r ExchangeRate) bool {
		return r.BaseCurrency == base && !r.UpdateTime.Before(from) && r.UpdateTime.Before(to)
	}), nil
}

// ListRecent lists the most recent records ordered by descending update time.
func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ExchangeRate, len(m.rates))
	copy(result, m.rates)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdateTime.After(result[j].UpdateTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) remove(keep func(ExchangeRate) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rates[:0]
	for _, rate := range m.rates {
		if keep(rate) {
			kept = append(kept, rate)
		}
	}
	m.rates = kept
}

// DeleteByBase removes every record for a base currency.
func (m *MemoryStore) DeleteByBase(ctx context.Context, base string) error {
	m.remove(func(r ExchangeRate) bool { return r.BaseCurrency != base })
	return nil
}

// DeleteByPair removes every record for a currency pair.
func (m *MemoryStore) DeleteByPair(ctx context.Context, base, quote string) error {
	m.remove(func(r ExchangeRate) bool {
		return r.BaseCurrency != base || r.QuoteCurrency != quote
	})
	return nil
}

// DeleteAtTime removes the exact-key record only.
func (m *MemoryStore) DeleteAtTime(ctx context.Context, base, quote string, at time.Time) error {
	m.remove(func(r ExchangeRate) bool { return !sameKey(r, base, quote, at) })
	return nil
}

// CountRates counts stored records.
func (m *MemoryStore) CountRates(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rates)), nil
}

var _ ExchangeRateStore = (*MemoryStore)(nil)
