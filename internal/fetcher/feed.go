package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	feedPath       = "/cc-api/currencies"
	feedDateLayout = "2006-01-02"
)

// ErrFeedFetch wraps every failure of the external feed call: transport
// errors, non-2xx statuses, and undecodable payloads.
var ErrFeedFetch = errors.New("rate feed fetch failed")

// FeedOptions parameterise the chart feed client.
type FeedOptions struct {
	BaseURL       string
	QuoteCurrency string
	Timeout       time.Duration
	UserAgent     string
	RetryAttempts uint64
	RetryDelay    time.Duration
}

// Feed fetches historical chart data from the public fxds endpoint.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFeed constructs a feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://fxds-public-exchange-rates-api.oanda.com"
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type feedResponse struct {
	Response []FeedRate `json:"response"`
}

// FetchRates retrieves the chart series for base against the configured
// quote currency over [start, end] calendar dates. An empty body is an empty
// series, not an error.
func (f *Feed) FetchRates(ctx context.Context, base string, start, end time.Time) ([]FeedRate, error) {
	quote := f.opts.QuoteCurrency
	if quote == "" {
		quote = "USD"
	}

	query := url.Values{}
	query.Set("base", base)
	query.Set("quote", quote)
	query.Set("data_type", "chart")
	query.Set("start_date", start.Format(feedDateLayout))
	query.Set("end_date", end.Format(feedDateLayout))
	endpoint := f.baseURL + feedPath + "?" + query.Encode()

	var rates []FeedRate
	backoff, err := retry.NewConstant(f.retryDelay())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}
	backoff = retry.WithMaxRetries(f.opts.RetryAttempts, backoff)

	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, fetchErr := f.fetchOnce(ctx, endpoint)
		if fetchErr != nil {
			if retryable(fetchErr) {
				return retry.RetryableError(fetchErr)
			}
			return fetchErr
		}
		rates = fetched
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFetch, err)
	}

	f.logger.Debug().
		Str("base", base).
		Str("start_date", start.Format(feedDateLayout)).
		Str("end_date", end.Format(feedDateLayout)).
		Int("records", len(rates)).
		Msg("feed window fetched")
	return rates, nil
}

func (f *Feed) retryDelay() time.Duration {
	if f.opts.RetryDelay > 0 {
		return f.opts.RetryDelay
	}
	return 2 * time.Second
}

func (f *Feed) fetchOnce(ctx context.Context, endpoint string) ([]FeedRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{status: resp.StatusCode, payload: payload}
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var decoded feedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}
	return decoded.Response, nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	status  int
	payload []byte
}

func (e *statusError) Error() string {
	if len(e.payload) > 0 {
		return fmt.Sprintf("feed status %d: %s", e.status, strings.TrimSpace(string(e.payload)))
	}
	return fmt.Sprintf("feed status %d", e.status)
}

// Transport failures and server-side statuses are retried; client errors are not.
func retryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= http.StatusInternalServerError
	}
	return false
}

var _ RateFeed = (*Feed)(nil)
