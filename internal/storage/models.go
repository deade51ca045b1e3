package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one persisted bid/ask observation for a currency pair at an
// exact second. (BaseCurrency, QuoteCurrency, UpdateTime) is unique in the
// store; ID is assigned on insert.
type ExchangeRate struct {
	ID            int64
	BaseCurrency  string
	QuoteCurrency string
	UpdateTime    time.Time
	AverageBid    decimal.Decimal
	AverageAsk    decimal.Decimal
	HighBid       decimal.Decimal
	HighAsk       decimal.Decimal
	LowBid        decimal.Decimal
	LowAsk        decimal.Decimal
	CreatedAt     time.Time
}
