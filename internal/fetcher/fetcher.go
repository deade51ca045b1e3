package fetcher

import (
	"context"
	"time"
)

// FeedRate is one record of the external chart feed. All prices arrive as
// JSON strings; CloseTime is the feed's own ISO instant encoding.
type FeedRate struct {
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	CloseTime     string `json:"close_time"`
	AverageBid    string `json:"average_bid"`
	AverageAsk    string `json:"average_ask"`
	HighBid       string `json:"high_bid"`
	HighAsk       string `json:"high_ask"`
	LowBid        string `json:"low_bid"`
	LowAsk        string `json:"low_ask"`
}

// RateFeed retrieves a time-windowed rate series for a base currency. The
// window is expressed as calendar dates, start inclusive.
type RateFeed interface {
	FetchRates(ctx context.Context, base string, start, end time.Time) ([]FeedRate, error)
}
