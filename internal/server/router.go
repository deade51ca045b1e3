package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/letrung1998vn/currency-exchange/internal/metrics"
)

// Router assembles the HTTP routes with logging and metrics middleware.
type Router struct {
	handler *Handler
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRouter constructs a Router.
func NewRouter(handler *Handler, logger zerolog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		handler: handler,
		logger:  logger.With().Str("component", "http_router").Logger(),
		metrics: m,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func (r *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, req)

		duration := time.Since(start)
		if r.metrics != nil && req.URL.Path != "/metrics" {
			r.metrics.HTTPRequestDuration.WithLabelValues(req.URL.Path, req.Method).Observe(duration.Seconds())
			r.metrics.HTTPRequestsTotal.WithLabelValues(req.URL.Path, req.Method, fmt.Sprintf("%dxx", rec.statusCode/100)).Inc()
		}

		r.logger.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", rec.statusCode).
			Dur("duration", duration).
			Str("remote_addr", req.RemoteAddr).
			Msg("http request")
	})
}

// Routes returns the assembled handler.
func (r *Router) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /currency/add-exchange-rate", r.handler.AddExchangeRate)
	mux.HandleFunc("GET /currency/get-exchange-rate", r.handler.GetExchangeRates)
	mux.HandleFunc("GET /currency/get-exchange-rate-at-time", r.handler.GetExchangeRatesAtTime)
	mux.HandleFunc("GET /currency/get-exchange-rate-by-base-currency-code", r.handler.GetExchangeRatesByBaseCode)
	mux.HandleFunc("GET /currency/get-exchange-rate-by-quote-currency-code", r.handler.GetExchangeRatesByQuoteCode)
	mux.HandleFunc("POST /currency/modify-exchange-rate", r.handler.ModifyExchangeRate)
	mux.HandleFunc("DELETE /currency/delete-exchange-rate", r.handler.DeleteExchangeRates)
	mux.HandleFunc("DELETE /currency/delete-exchange-rate-at-time", r.handler.DeleteExchangeRateAtTime)
	mux.HandleFunc("GET /currency/get-fxds-exchange-rate", r.handler.GetFeedExchangeRates)
	mux.HandleFunc("GET /currency/call-fxds-exchange-rate", r.handler.CallFeedExchangeRates)
	mux.HandleFunc("GET /currency/rsa/generate", r.handler.GenerateKeyPair)
	mux.HandleFunc("POST /currency/rsa/encrypt", r.handler.EncryptCurrencyCode)
	mux.HandleFunc("POST /currency/get-exchange-rate-with-encrypt-currency-code", r.handler.GetExchangeRatesWithEncryptedCode)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return r.observe(mux)
}
