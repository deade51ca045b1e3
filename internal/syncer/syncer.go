// Package syncer replays the external feed into the rate store: once per
// scheduled pass it pulls yesterday's window for every watch-listed currency
// and adds each returned record through the rate service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/letrung1998vn/currency-exchange/internal/fetcher"
	"github.com/letrung1998vn/currency-exchange/internal/metrics"
	"github.com/letrung1998vn/currency-exchange/internal/scheduler"
	"github.com/letrung1998vn/currency-exchange/internal/service"
	"github.com/letrung1998vn/currency-exchange/internal/storage"
	"github.com/letrung1998vn/currency-exchange/internal/timestamp"
)

// Conflict policies for records whose exact key already exists in the store.
const (
	OnConflictSkip  = "skip"
	OnConflictAbort = "abort"
)

// Options tune a Syncer.
type Options struct {
	WatchList  []string
	OnConflict string
	LockKey    int64
}

// Syncer owns the recurring feed replay.
type Syncer struct {
	opts    Options
	feed    fetcher.RateFeed
	rates   *service.RateService
	sched   *scheduler.Scheduler
	locker  storage.AdvisoryLocker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs a Syncer. locker and m may be nil; the overlap guard and the
// counters are then skipped.
func New(opts Options, feed fetcher.RateFeed, rates *service.RateService, sched *scheduler.Scheduler, locker storage.AdvisoryLocker, m *metrics.Metrics, logger zerolog.Logger) *Syncer {
	if opts.OnConflict == "" {
		opts.OnConflict = OnConflictSkip
	}
	return &Syncer{
		opts:    opts,
		feed:    feed,
		rates:   rates,
		sched:   sched,
		locker:  locker,
		metrics: m,
		logger:  logger.With().Str("component", "syncer").Logger(),
	}
}

// Run begins the scheduled daily loop.
func (s *Syncer) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, s.runPass)
}

func (s *Syncer) runPass(ctx context.Context, day time.Time) error {
	if s.locker != nil && s.opts.LockKey != 0 {
		unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			s.logger.Debug().Time("day", day).Msg("skip pass because advisory lock held elsewhere")
			return nil
		}
		defer unlock()
	}
	return s.SyncPass(ctx, day)
}

// SyncPass ingests the one-day window [day-1, day] for every watch-listed
// currency. Records are added under their own base currency, with the feed
// close time normalized into the internal timestamp text. Duplicate keys are
// skipped or abort the pass depending on the conflict policy; other
// per-currency failures are collected and returned together.
func (s *Syncer) SyncPass(ctx context.Context, day time.Time) error {
	start := day.UTC().AddDate(0, 0, -1)
	end := day.UTC()

	var passErr *multierror.Error
	stored, skipped := 0, 0

	for _, currency := range s.opts.WatchList {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		records, err := s.feed.FetchRates(ctx, currency, start, end)
		if err != nil {
			s.countFailure()
			passErr = multierror.Append(passErr, fmt.Errorf("fetch %s window: %w", currency, err))
			continue
		}

		for _, record := range records {
			added, err := s.ingestRecord(ctx, record)
			switch {
			case err == nil && added:
				stored++
			case err == nil:
				skipped++
			case errors.Is(err, service.ErrDuplicateRate):
				// only reachable under the abort policy
				s.countFailure()
				return fmt.Errorf("sync pass aborted: %w", err)
			default:
				s.countFailure()
				passErr = multierror.Append(passErr, fmt.Errorf("ingest %s record: %w", currency, err))
			}
		}
	}

	s.logger.Info().
		Time("window_start", start).
		Time("window_end", end).
		Int("stored", stored).
		Int("skipped", skipped).
		Msg("sync pass finished")

	if s.metrics != nil {
		s.metrics.SyncPassesTotal.Inc()
		s.metrics.SyncRecordsTotal.Add(float64(stored))
		s.metrics.SyncDuplicatesTotal.Add(float64(skipped))
	}

	return passErr.ErrorOrNil()
}

// ingestRecord converts one feed record and adds it through the service.
// Returns (false, nil) when a duplicate was skipped under the skip policy.
func (s *Syncer) ingestRecord(ctx context.Context, record fetcher.FeedRate) (bool, error) {
	input, err := convertFeedRate(record)
	if err != nil {
		return false, err
	}

	updateTime, err := timestamp.FormatInstant(record.CloseTime)
	if err != nil {
		return false, err
	}

	if _, err := s.rates.Add(ctx, record.BaseCurrency, record.QuoteCurrency, updateTime, input); err != nil {
		if errors.Is(err, service.ErrDuplicateRate) && s.opts.OnConflict == OnConflictSkip {
			s.logger.Debug().
				Str("base", record.BaseCurrency).
				Str("update_time", updateTime).
				Msg("duplicate feed record skipped")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Syncer) countFailure() {
	if s.metrics != nil {
		s.metrics.SyncFailuresTotal.Inc()
	}
}

func convertFeedRate(record fetcher.FeedRate) (service.RateInput, error) {
	var input service.RateInput
	fields := []struct {
		name string
		text string
		dst  *decimal.Decimal
	}{
		{"average_bid", record.AverageBid, &input.AverageBid},
		{"average_ask", record.AverageAsk, &input.AverageAsk},
		{"high_bid", record.HighBid, &input.HighBid},
		{"high_ask", record.HighAsk, &input.HighAsk},
		{"low_bid", record.LowBid, &input.LowBid},
		{"low_ask", record.LowAsk, &input.LowAsk},
	}
	for _, field := range fields {
		value, err := decimal.NewFromString(field.text)
		if err != nil {
			return service.RateInput{}, fmt.Errorf("parse %s %q: %w", field.name, field.text, err)
		}
		*field.dst = value
	}
	return input, nil
}
