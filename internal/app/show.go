package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/letrung1998vn/currency-exchange/internal/timestamp"
)

// Show prints recent rate records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rates, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		fmt.Fprintln(os.Stdout, "no exchange rates found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Update Time\tPair\tAvg Bid\tAvg Ask\tHigh Bid\tHigh Ask\tLow Bid\tLow Ask")

	for _, rate := range rates {
		fmt.Fprintf(
			writer,
			"%s\t%s/%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			timestamp.Format(rate.UpdateTime),
			rate.BaseCurrency,
			rate.QuoteCurrency,
			formatDecimal(rate.AverageBid, 5),
			formatDecimal(rate.AverageAsk, 5),
			formatDecimal(rate.HighBid, 5),
			formatDecimal(rate.HighAsk, 5),
			formatDecimal(rate.LowBid, 5),
			formatDecimal(rate.LowAsk, 5),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
