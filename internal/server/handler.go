package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/letrung1998vn/currency-exchange/internal/fetcher"
	"github.com/letrung1998vn/currency-exchange/internal/secure"
	"github.com/letrung1998vn/currency-exchange/internal/service"
	"github.com/letrung1998vn/currency-exchange/internal/storage"
	"github.com/letrung1998vn/currency-exchange/internal/timestamp"
)

// Handler exposes the currency API over HTTP.
type Handler struct {
	rates   *service.RateService
	feed    fetcher.RateFeed
	keyring *secure.Keyring
	keyBits int
	logger  zerolog.Logger
}

// NewHandler constructs the API handler.
func NewHandler(rates *service.RateService, feed fetcher.RateFeed, keyring *secure.Keyring, keyBits int, logger zerolog.Logger) *Handler {
	return &Handler{
		rates:   rates,
		feed:    feed,
		keyring: keyring,
		keyBits: keyBits,
		logger:  logger.With().Str("component", "http_handler").Logger(),
	}
}

type rateInputBody struct {
	AverageBid decimal.Decimal `json:"average_bid"`
	AverageAsk decimal.Decimal `json:"average_ask"`
	HighBid    decimal.Decimal `json:"high_bid"`
	HighAsk    decimal.Decimal `json:"high_ask"`
	LowBid     decimal.Decimal `json:"low_bid"`
	LowAsk     decimal.Decimal `json:"low_ask"`
}

func (b rateInputBody) toInput() service.RateInput {
	return service.RateInput{
		AverageBid: b.AverageBid,
		AverageAsk: b.AverageAsk,
		HighBid:    b.HighBid,
		HighAsk:    b.HighAsk,
		LowBid:     b.LowBid,
		LowAsk:     b.LowAsk,
	}
}

type rateBody struct {
	ID            int64           `json:"id"`
	BaseCurrency  string          `json:"base_currency"`
	QuoteCurrency string          `json:"quote_currency"`
	UpdateTime    string          `json:"update_time"`
	AverageBid    decimal.Decimal `json:"average_bid"`
	AverageAsk    decimal.Decimal `json:"average_ask"`
	HighBid       decimal.Decimal `json:"high_bid"`
	HighAsk       decimal.Decimal `json:"high_ask"`
	LowBid        decimal.Decimal `json:"low_bid"`
	LowAsk        decimal.Decimal `json:"low_ask"`
}

func toRateBody(r storage.ExchangeRate) rateBody {
	return rateBody{
		ID:            r.ID,
		BaseCurrency:  r.BaseCurrency,
		QuoteCurrency: r.QuoteCurrency,
		UpdateTime:    timestamp.Format(r.UpdateTime),
		AverageBid:    r.AverageBid,
		AverageAsk:    r.AverageAsk,
		HighBid:       r.HighBid,
		HighAsk:       r.HighAsk,
		LowBid:        r.LowBid,
		LowAsk:        r.LowAsk,
	}
}

func toRateBodies(rates []storage.ExchangeRate) []rateBody {
	bodies := make([]rateBody, 0, len(rates))
	for _, r := range rates {
		bodies = append(bodies, toRateBody(r))
	}
	return bodies
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

const wrongDateFormatMsg = "wrong date format, expected YYYY/MM/DD hh:mm:ss"

// writeServiceError translates domain failures into rejected-request
// responses; anything unrecognised becomes a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTimestamp):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: wrongDateFormatMsg})
	case errors.Is(err, service.ErrDuplicateRate):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrRateNotFound), errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, fetcher.ErrFeedFetch):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	case errors.Is(err, secure.ErrNoSessionKey),
		errors.Is(err, secure.ErrDecryptionFailed),
		errors.Is(err, secure.ErrInvalidPublicKey):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Msg("unexpected handler failure")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func requireTimestamp(w http.ResponseWriter, value string) bool {
	if !timestamp.IsValid(value) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: wrongDateFormatMsg})
		return false
	}
	return true
}

// AddExchangeRate records a new rate for (baseCurrency, update_time).
func (h *Handler) AddExchangeRate(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("baseCurrency")
	quote := r.URL.Query().Get("quoteCurrency")
	updateTime := r.URL.Query().Get("update_time")
	if !requireTimestamp(w, updateTime) {
		return
	}

	var body rateInputBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	rate, err := h.rates.Add(r.Context(), base, quote, updateTime, body.toInput())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateBody(rate))
}

// GetExchangeRates lists every record for a base currency.
func (h *Handler) GetExchangeRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.rates.List(r.Context(), r.URL.Query().Get("baseCurrency"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBodies(rates))
}

// GetExchangeRatesAtTime lists records at an exact timestamp; an empty list
// is a valid response.
func (h *Handler) GetExchangeRatesAtTime(w http.ResponseWriter, r *http.Request) {
	at := r.URL.Query().Get("time")
	if !requireTimestamp(w, at) {
		return
	}
	rates, err := h.rates.ListAtTime(r.Context(), r.URL.Query().Get("baseCurrency"), at)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBodies(rates))
}

// GetExchangeRatesByBaseCode lists records for one base code at an exact
// timestamp, 404 when empty.
func (h *Handler) GetExchangeRatesByBaseCode(w http.ResponseWriter, r *http.Request) {
	at := r.URL.Query().Get("time")
	if !requireTimestamp(w, at) {
		return
	}
	rates, err := h.rates.ListByBaseAtTime(r.Context(), r.URL.Query().Get("baseCurrency"), at)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBodies(rates))
}

// GetExchangeRatesByQuoteCode lists records for one quote code at an exact
// timestamp, 404 when empty.
func (h *Handler) GetExchangeRatesByQuoteCode(w http.ResponseWriter, r *http.Request) {
	at := r.URL.Query().Get("time")
	if !requireTimestamp(w, at) {
		return
	}
	rates, err := h.rates.ListByQuoteAtTime(r.Context(), r.URL.Query().Get("quoteCurrency"), at)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBodies(rates))
}

// ModifyExchangeRate overwrites the price fields of an existing record.
func (h *Handler) ModifyExchangeRate(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("baseCurrency")
	quote := r.URL.Query().Get("quoteCurrency")
	updateTime := r.URL.Query().Get("update_time")
	if !requireTimestamp(w, updateTime) {
		return
	}

	var body rateInputBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	rate, err := h.rates.Update(r.Context(), base, quote, updateTime, body.toInput())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBody(rate))
}

// DeleteExchangeRates removes every record for a base currency.
func (h *Handler) DeleteExchangeRates(w http.ResponseWriter, r *http.Request) {
	if err := h.rates.Delete(r.Context(), r.URL.Query().Get("baseCurrency")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteExchangeRateAtTime removes the exact-key record only.
func (h *Handler) DeleteExchangeRateAtTime(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("baseCurrency")
	quote := r.URL.Query().Get("quoteCurrency")
	updateTime := r.URL.Query().Get("update_time")
	if !requireTimestamp(w, updateTime) {
		return
	}
	if err := h.rates.DeleteAtTime(r.Context(), base, quote, updateTime); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFeedExchangeRates proxies a one-day feed window starting at updateTime's date.
func (h *Handler) GetFeedExchangeRates(w http.ResponseWriter, r *http.Request) {
	updateTime := r.URL.Query().Get("updateTime")
	if !requireTimestamp(w, updateTime) {
		return
	}
	at, err := timestamp.Parse(updateTime)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	start := at.Truncate(24 * time.Hour)
	records, err := h.feed.FetchRates(r.Context(), r.URL.Query().Get("baseCurrency"), start, start.AddDate(0, 0, 1))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// CallFeedExchangeRates proxies an arbitrary feed window.
func (h *Handler) CallFeedExchangeRates(w http.ResponseWriter, r *http.Request) {
	startText := r.URL.Query().Get("startDate")
	endText := r.URL.Query().Get("endDate")
	if !requireTimestamp(w, startText) || !requireTimestamp(w, endText) {
		return
	}

	start, err := timestamp.Parse(startText)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	end, err := timestamp.Parse(endText)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	records, err := h.feed.FetchRates(r.Context(), r.URL.Query().Get("baseCurrency"), start, end)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type publicKeyBody struct {
	PublicKey string `json:"public_key"`
}

type encryptRequestBody struct {
	Text      string `json:"text"`
	PublicKey string `json:"public_key"`
}

type cipherBody struct {
	Cipher string `json:"cipher"`
}

// GenerateKeyPair creates a fresh keypair for the caller's session and
// returns the public half.
func (h *Handler) GenerateKeyPair(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "session is required"})
		return
	}

	publicKey, err := h.keyring.GenerateKeyPair(session, h.keyBits)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicKeyBody{PublicKey: publicKey})
}

// EncryptCurrencyCode encrypts a currency code under a supplied public key.
func (h *Handler) EncryptCurrencyCode(w http.ResponseWriter, r *http.Request) {
	var body encryptRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	cipher, err := secure.Encrypt(body.Text, body.PublicKey)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cipherBody{Cipher: cipher})
}

// GetExchangeRatesWithEncryptedCode decrypts an inbound currency code with
// the session's key and delegates to the base-currency read path.
func (h *Handler) GetExchangeRatesWithEncryptedCode(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "session is required"})
		return
	}

	var body cipherBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	code, err := h.keyring.Decrypt(session, body.Cipher)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	rates, err := h.rates.List(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRateBodies(rates))
}
