package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/letrung1998vn/currency-exchange/internal/storage"
	"github.com/letrung1998vn/currency-exchange/internal/timestamp"
)

// Export renders stored rate history for one base currency as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Base == "" {
		return errors.New("--base is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -30)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rates, err := store.ListBetween(ctx, opts.Base, from, to)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		a.Logger.Info().Str("base", opts.Base).Msg("no rates found for export window")
		return nil
	}

	downsampled := downsampleRates(rates, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rates)).Int("exported", len(downsampled)).Msg("exporting rates")

	if opts.CSVPath != "" {
		if err := writeRatesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRatesPNG(opts.PNGPath, opts.Base, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRates(rates []storage.ExchangeRate, max int) []storage.ExchangeRate {
	if max <= 0 || len(rates) <= max {
		return rates
	}

	result := make([]storage.ExchangeRate, 0, max)
	step := float64(len(rates)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rates) {
			idx = len(rates) - 1
		}
		result = append(result, rates[idx])
	}
	return result
}

func writeRatesCSV(path string, rates []storage.ExchangeRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"update_time", "base_currency", "quote_currency", "average_bid", "average_ask", "high_bid", "high_ask", "low_bid", "low_ask"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rate := range rates {
		record := []string{
			timestamp.Format(rate.UpdateTime),
			rate.BaseCurrency,
			rate.QuoteCurrency,
			rate.AverageBid.String(),
			rate.AverageAsk.String(),
			rate.HighBid.String(),
			rate.HighAsk.String(),
			rate.LowBid.String(),
			rate.LowAsk.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRatesPNG(path, base string, rates []storage.ExchangeRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rates))
	avgBid := make([]float64, len(rates))
	avgAsk := make([]float64, len(rates))

	for i, rate := range rates {
		x[i] = rate.UpdateTime
		avgBid[i] = rate.AverageBid.InexactFloat64()
		avgAsk[i] = rate.AverageAsk.InexactFloat64()
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.5f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate (" + base + ")",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Average Bid",
				XValues: x,
				YValues: avgBid,
			},
			chart.TimeSeries{
				Name:    "Average Ask",
				XValues: x,
				YValues: avgAsk,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
