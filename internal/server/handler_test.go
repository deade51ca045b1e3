package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/letrung1998vn/currency-exchange/internal/fetcher"
	"github.com/letrung1998vn/currency-exchange/internal/secure"
	"github.com/letrung1998vn/currency-exchange/internal/service"
	"github.com/letrung1998vn/currency-exchange/internal/storage"
)

const testKeyBits = 1024

type stubFeed struct {
	records []fetcher.FeedRate
	err     error
}

func (f *stubFeed) FetchRates(context.Context, string, time.Time, time.Time) ([]fetcher.FeedRate, error) {
	return f.records, f.err
}

func newTestServer(t *testing.T, feed fetcher.RateFeed) *httptest.Server {
	t.Helper()
	if feed == nil {
		feed = &stubFeed{}
	}
	rates := service.New(storage.NewMemoryStore(), zerolog.Nop())
	handler := NewHandler(rates, feed, secure.NewKeyring(), testKeyBits, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(handler, zerolog.Nop(), nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

const samplePricesJSON = `{
	"average_bid": "1.05", "average_ask": "1.15",
	"high_bid": "1.1", "high_ask": "1.2",
	"low_bid": "1.0", "low_ask": "0.9"
}`

func addRateURL(base, quote, updateTime string) string {
	q := url.Values{}
	q.Set("baseCurrency", base)
	if quote != "" {
		q.Set("quoteCurrency", quote)
	}
	q.Set("update_time", updateTime)
	return "/currency/add-exchange-rate?" + q.Encode()
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, payload
}

func TestAddExchangeRate(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, payload := doRequest(t, srv, http.MethodPost, addRateURL("VND", "", "2025/11/01 10:30:00"), samplePricesJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, payload)
	}

	var body rateBody
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.BaseCurrency != "VND" || body.QuoteCurrency != "USD" {
		t.Fatalf("unexpected pair %s/%s", body.BaseCurrency, body.QuoteCurrency)
	}
	if body.UpdateTime != "2025/11/01 10:30:00" {
		t.Fatalf("unexpected update_time %q", body.UpdateTime)
	}
	if body.AverageBid.String() != "1.05" {
		t.Fatalf("unexpected average_bid %s", body.AverageBid)
	}
}

func TestAddExchangeRateDuplicate(t *testing.T) {
	srv := newTestServer(t, nil)

	path := addRateURL("VND", "USD", "2025/11/01 10:30:00")
	if resp, payload := doRequest(t, srv, http.MethodPost, path, samplePricesJSON); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first add: status = %d, body %s", resp.StatusCode, payload)
	}

	resp, payload := doRequest(t, srv, http.MethodPost, path, samplePricesJSON)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add: status = %d, body %s", resp.StatusCode, payload)
	}
}

func TestAddExchangeRateWrongDateFormat(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, bad := range []string{"2025-11-01 10:30:00", "2025/11/01", "2025/13/01 10:30:00", ""} {
		resp, payload := doRequest(t, srv, http.MethodPost, addRateURL("VND", "", bad), samplePricesJSON)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: status = %d", bad, resp.StatusCode)
		}
		var body errorBody
		if err := json.Unmarshal(payload, &body); err != nil {
			t.Fatalf("%q: decode: %v", bad, err)
		}
		if body.Error != wrongDateFormatMsg {
			t.Fatalf("%q: error = %q", bad, body.Error)
		}
	}
}

func TestGetExchangeRatesAtTimeEmptyList(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, payload := doRequest(t, srv, http.MethodGet,
		"/currency/get-exchange-rate-at-time?baseCurrency=VND&time="+url.QueryEscape("2025/11/01 10:30:00"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, payload)
	}
	if strings.TrimSpace(string(payload)) != "[]" {
		t.Fatalf("expected empty list, got %s", payload)
	}
}

func TestModifyExchangeRateMissing(t *testing.T) {
	srv := newTestServer(t, nil)

	q := url.Values{}
	q.Set("baseCurrency", "VND")
	q.Set("update_time", "2025/11/01 10:30:00")
	resp, payload := doRequest(t, srv, http.MethodPost, "/currency/modify-exchange-rate?"+q.Encode(), samplePricesJSON)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", resp.StatusCode, payload)
	}
}

func TestModifyExchangeRateOverwritesPrices(t *testing.T) {
	srv := newTestServer(t, nil)

	if resp, payload := doRequest(t, srv, http.MethodPost, addRateURL("VND", "", "2025/11/01 10:30:00"), samplePricesJSON); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status = %d, body %s", resp.StatusCode, payload)
	}

	q := url.Values{}
	q.Set("baseCurrency", "VND")
	q.Set("update_time", "2025/11/01 10:30:00")
	updated := `{"average_bid": "2.05", "average_ask": "2.15", "high_bid": "2.1", "high_ask": "2.2", "low_bid": "2.0", "low_ask": "1.9"}`
	resp, payload := doRequest(t, srv, http.MethodPost, "/currency/modify-exchange-rate?"+q.Encode(), updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("modify: status = %d, body %s", resp.StatusCode, payload)
	}

	var body rateBody
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.AverageBid.String() != "2.05" || body.LowAsk.String() != "1.9" {
		t.Fatalf("prices not overwritten: %s", payload)
	}
	if body.UpdateTime != "2025/11/01 10:30:00" {
		t.Fatalf("key changed: %q", body.UpdateTime)
	}
}

func TestDeleteExchangeRatesIdempotent(t *testing.T) {
	srv := newTestServer(t, nil)

	if resp, payload := doRequest(t, srv, http.MethodPost, addRateURL("VND", "", "2025/11/01 10:30:00"), samplePricesJSON); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status = %d, body %s", resp.StatusCode, payload)
	}

	for i := 0; i < 2; i++ {
		resp, payload := doRequest(t, srv, http.MethodDelete, "/currency/delete-exchange-rate?baseCurrency=VND", "")
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("delete #%d: status = %d, body %s", i+1, resp.StatusCode, payload)
		}
	}

	resp, payload := doRequest(t, srv, http.MethodGet, "/currency/get-exchange-rate?baseCurrency=VND", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found after delete, got %d %s", resp.StatusCode, payload)
	}
}

func TestFeedProxyFailure(t *testing.T) {
	srv := newTestServer(t, &stubFeed{err: fmt.Errorf("%w: status 503", fetcher.ErrFeedFetch)})

	resp, payload := doRequest(t, srv, http.MethodGet,
		"/currency/get-fxds-exchange-rate?baseCurrency=EUR&updateTime="+url.QueryEscape("2025/11/01 10:30:00"), "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", resp.StatusCode, payload)
	}
}

func TestEncryptedCodeFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	if resp, payload := doRequest(t, srv, http.MethodPost, addRateURL("VND", "", "2025/11/01 10:30:00"), samplePricesJSON); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status = %d, body %s", resp.StatusCode, payload)
	}

	resp, payload := doRequest(t, srv, http.MethodGet, "/currency/rsa/generate?session=alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: status = %d, body %s", resp.StatusCode, payload)
	}
	var keyBody publicKeyBody
	if err := json.Unmarshal(payload, &keyBody); err != nil {
		t.Fatalf("decode public key: %v", err)
	}

	encryptReq, err := json.Marshal(encryptRequestBody{Text: "VND", PublicKey: keyBody.PublicKey})
	if err != nil {
		t.Fatalf("marshal encrypt request: %v", err)
	}
	resp, payload = doRequest(t, srv, http.MethodPost, "/currency/rsa/encrypt", string(encryptReq))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("encrypt: status = %d, body %s", resp.StatusCode, payload)
	}
	var cipher cipherBody
	if err := json.Unmarshal(payload, &cipher); err != nil {
		t.Fatalf("decode cipher: %v", err)
	}

	cipherReq, err := json.Marshal(cipher)
	if err != nil {
		t.Fatalf("marshal cipher request: %v", err)
	}
	resp, payload = doRequest(t, srv, http.MethodPost,
		"/currency/get-exchange-rate-with-encrypt-currency-code?session=alice", string(cipherReq))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup: status = %d, body %s", resp.StatusCode, payload)
	}

	var rates []rateBody
	if err := json.Unmarshal(payload, &rates); err != nil {
		t.Fatalf("decode rates: %v", err)
	}
	if len(rates) != 1 || rates[0].BaseCurrency != "VND" {
		t.Fatalf("unexpected rates %s", payload)
	}
}

func TestEncryptedCodeWithoutSessionKey(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, payload := doRequest(t, srv, http.MethodPost,
		"/currency/get-exchange-rate-with-encrypt-currency-code?session=nobody", `{"cipher": "AAAA"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", resp.StatusCode, payload)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, payload := doRequest(t, srv, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || string(payload) != "OK" {
		t.Fatalf("health = %d %q", resp.StatusCode, payload)
	}
}
