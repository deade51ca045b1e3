package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrDuplicateKey indicates an insert collided with an existing
	// (base_currency, quote_currency, update_time) key.
	ErrDuplicateKey = errors.New("storage: duplicate rate key")
	// ErrRecordNotFound indicates an update targeted a record that no longer exists.
	ErrRecordNotFound = errors.New("storage: record not found")
)

const (
	rateColumns = `id,
        base_currency,
        quote_currency,
        update_time,
        average_bid,
        average_ask,
        high_bid,
        high_ask,
        low_bid,
        low_ask,
        created_at`

	insertRateSQL = `INSERT INTO currency_exchange_rates (
        base_currency,
        quote_currency,
        update_time,
        average_bid,
        average_ask,
        high_bid,
        high_ask,
        low_bid,
        low_ask
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (base_currency, quote_currency, update_time) DO NOTHING
    RETURNING id, created_at;`

	updateRateSQL = `UPDATE currency_exchange_rates
    SET average_bid = $2,
        average_ask = $3,
        high_bid    = $4,
        high_ask    = $5,
        low_bid     = $6,
        low_ask     = $7
    WHERE id = $1;`

	listByBaseSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE base_currency = $1
    ORDER BY base_currency, update_time;`

	listByPairSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE base_currency = $1
      AND quote_currency = $2
    ORDER BY base_currency, update_time;`

	findAtTimeSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE base_currency = $1
      AND quote_currency = $2
      AND update_time = $3;`

	listAtTimeSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE base_currency = $1
      AND update_time = $2
    ORDER BY base_currency;`

	listByQuoteAtTimeSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE quote_currency = $1
      AND update_time = $2
    ORDER BY base_currency;`

	listBetweenSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    WHERE base_currency = $1
      AND update_time >= $2
      AND update_time < $3
    ORDER BY update_time;`

	listRecentSQL = `SELECT ` + rateColumns + `
    FROM currency_exchange_rates
    ORDER BY update_time DESC
    LIMIT $1;`

	deleteByBaseSQL = `DELETE FROM currency_exchange_rates WHERE base_currency = $1;`

	deleteByPairSQL = `DELETE FROM currency_exchange_rates
    WHERE base_currency = $1 AND quote_currency = $2;`

	deleteAtTimeSQL = `DELETE FROM currency_exchange_rates
    WHERE base_currency = $1 AND quote_currency = $2 AND update_time = $3;`

	countRatesSQL = `SELECT COUNT(*) FROM currency_exchange_rates;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ExchangeRateStore defines persistence operations over rate records.
type ExchangeRateStore interface {
	InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
	UpdateRate(ctx context.Context, rate ExchangeRate) error
	ListByBase(ctx context.Context, base string) ([]ExchangeRate, error)
	ListByPair(ctx context.Context, base, quote string) ([]ExchangeRate, error)
	FindAtTime(ctx context.Context, base, quote string, at time.Time) (*ExchangeRate, error)
	ListAtTime(ctx context.Context, base string, at time.Time) ([]ExchangeRate, error)
	ListByQuoteAtTime(ctx context.Context, quote string, at time.Time) ([]ExchangeRate, error)
	ListBetween(ctx context.Context, base string, from, to time.Time) ([]ExchangeRate, error)
	ListRecent(ctx context.Context, limit int) ([]ExchangeRate, error)
	DeleteByBase(ctx context.Context, base string) error
	DeleteByPair(ctx context.Context, base, quote string) error
	DeleteAtTime(ctx context.Context, base, quote string, at time.Time) error
	CountRates(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store implements ExchangeRateStore over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertRate persists a new rate record. The insert is conditional on the
// exact key: a conflicting row leaves the store untouched and ErrDuplicateKey
// is returned.
func (s *Store) InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return ExchangeRate{}, err
	}

	row := pool.QueryRow(ctx, insertRateSQL,
		rate.BaseCurrency,
		rate.QuoteCurrency,
		rate.UpdateTime,
		rate.AverageBid.String(),
		rate.AverageAsk.String(),
		rate.HighBid.String(),
		rate.HighAsk.String(),
		rate.LowBid.String(),
		rate.LowAsk.String(),
	)

	if scanErr := row.Scan(&rate.ID, &rate.CreatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ExchangeRate{}, ErrDuplicateKey
		}
		return ExchangeRate{}, fmt.Errorf("insert rate: %w", scanErr)
	}
	return rate, nil
}

// UpdateRate overwrites the six price fields of an existing record by id.
func (s *Store) UpdateRate(ctx context.Context, rate ExchangeRate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateRateSQL,
		rate.ID,
		rate.AverageBid.String(),
		rate.AverageAsk.String(),
		rate.HighBid.String(),
		rate.HighAsk.String(),
		rate.LowBid.String(),
		rate.LowAsk.String(),
	)
	if execErr != nil {
		return fmt.Errorf("update rate: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListByBase lists every record for a base currency.
func (s *Store) ListByBase(ctx context.Context, base string) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listByBaseSQL, base)
}

// ListByPair lists every record for a currency pair.
func (s *Store) ListByPair(ctx context.Context, base, quote string) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listByPairSQL, base, quote)
}

// FindAtTime returns the record at an exact key, or nil when absent.
func (s *Store) FindAtTime(ctx context.Context, base, quote string, at time.Time) (*ExchangeRate, error) {
	rates, err := s.queryRates(ctx, findAtTimeSQL, base, quote, at)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}
	return &rates[0], nil
}

// ListAtTime lists records for a base currency at an exact timestamp.
func (s *Store) ListAtTime(ctx context.Context, base string, at time.Time) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listAtTimeSQL, base, at)
}

// ListByQuoteAtTime lists records for a quote currency at an exact timestamp.
func (s *Store) ListByQuoteAtTime(ctx context.Context, quote string, at time.Time) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listByQuoteAtTimeSQL, quote, at)
}

// ListBetween lists records for a base currency within [from, to).
func (s *Store) ListBetween(ctx context.Context, base string, from, to time.Time) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listBetweenSQL, base, from, to)
}

// ListRecent lists the most recent records ordered by descending update time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ExchangeRate, error) {
	return s.queryRates(ctx, listRecentSQL, limit)
}

// DeleteByBase removes every record for a base currency, all timestamps.
func (s *Store) DeleteByBase(ctx context.Context, base string) error {
	return s.exec(ctx, "delete by base", deleteByBaseSQL, base)
}

// DeleteByPair removes every record for a currency pair, all timestamps.
func (s *Store) DeleteByPair(ctx context.Context, base, quote string) error {
	return s.exec(ctx, "delete by pair", deleteByPairSQL, base, quote)
}

// DeleteAtTime removes the exact-key record only.
func (s *Store) DeleteAtTime(ctx context.Context, base, quote string, at time.Time) error {
	return s.exec(ctx, "delete at time", deleteAtTimeSQL, base, quote, at)
}

// CountRates counts stored records.
func (s *Store) CountRates(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRatesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rates: %w", scanErr)
	}
	return count, nil
}

func (s *Store) exec(ctx context.Context, op, sql string, args ...any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, sql, args...); execErr != nil {
		return fmt.Errorf("%s: %w", op, execErr)
	}
	return nil
}

func (s *Store) queryRates(ctx context.Context, sql string, args ...any) ([]ExchangeRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query rates: %w", queryErr)
	}
	defer rows.Close()

	rates := make([]ExchangeRate, 0)
	for rows.Next() {
		rate, scanErr := scanExchangeRate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rates = append(rates, rate)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rates, nil
}

func scanExchangeRate(rows pgx.Rows) (ExchangeRate, error) {
	var (
		rate   ExchangeRate
		prices [6]string
	)

	if err := rows.Scan(
		&rate.ID,
		&rate.BaseCurrency,
		&rate.QuoteCurrency,
		&rate.UpdateTime,
		&prices[0],
		&prices[1],
		&prices[2],
		&prices[3],
		&prices[4],
		&prices[5],
		&rate.CreatedAt,
	); err != nil {
		return ExchangeRate{}, err
	}

	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"average_bid", &rate.AverageBid},
		{"average_ask", &rate.AverageAsk},
		{"high_bid", &rate.HighBid},
		{"high_ask", &rate.HighAsk},
		{"low_bid", &rate.LowBid},
		{"low_ask", &rate.LowAsk},
	}
	for i, field := range fields {
		value, err := decimal.NewFromString(prices[i])
		if err != nil {
			return ExchangeRate{}, fmt.Errorf("parse %s: %w", field.name, err)
		}
		*field.dst = value
	}

	return rate, nil
}

var _ ExchangeRateStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
