package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testWindow() (time.Time, time.Time) {
	start := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func TestFetchRatesSuccess(t *testing.T) {
	want := []FeedRate{{
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		CloseTime:     "2025-10-31T23:59:59Z",
		AverageBid:    "1.05",
		AverageAsk:    "1.15",
		HighBid:       "1.1",
		HighAsk:       "1.2",
		LowBid:        "1.0",
		LowAsk:        "0.9",
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("base") != "EUR" || query.Get("quote") != "USD" {
			t.Errorf("unexpected currency params: %v", query)
		}
		if query.Get("data_type") != "chart" {
			t.Errorf("data_type missing: %v", query)
		}
		if query.Get("start_date") != "2025-10-31" || query.Get("end_date") != "2025-11-01" {
			t.Errorf("unexpected window params: %v", query)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": want})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, QuoteCurrency: "USD", Timeout: time.Second}, noopLogger())

	start, end := testWindow()
	got, err := feed.FetchRates(context.Background(), "EUR", start, end)
	if err != nil {
		t.Fatalf("FetchRates failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestFetchRatesEmptyBodyIsEmptySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	start, end := testWindow()
	got, err := feed.FetchRates(context.Background(), "EUR", start, end)
	if err != nil {
		t.Fatalf("empty body should not fail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty series, got %d records", len(got))
	}
}

func TestFetchRatesClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{
		BaseURL:       srv.URL,
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, noopLogger())

	start, end := testWindow()
	if _, err := feed.FetchRates(context.Background(), "EUR", start, end); !errors.Is(err, ErrFeedFetch) {
		t.Fatalf("expected ErrFeedFetch, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("client error should not be retried, got %d calls", calls.Load())
	}
}

func TestFetchRatesServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": []FeedRate{}})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{
		BaseURL:       srv.URL,
		Timeout:       time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, noopLogger())

	start, end := testWindow()
	if _, err := feed.FetchRates(context.Background(), "EUR", start, end); err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchRatesUndecodablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	start, end := testWindow()
	if _, err := feed.FetchRates(context.Background(), "EUR", start, end); !errors.Is(err, ErrFeedFetch) {
		t.Fatalf("expected ErrFeedFetch, got %v", err)
	}
}
