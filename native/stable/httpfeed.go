package stable

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewRetryingHTTPClient builds an HTTP client with bounded retries and
// backoff suitable for polling upstream rate APIs. Logging from the retry
// machinery is silenced; failures surface through the feed error path.
func NewRetryingHTTPClient(timeout time.Duration) HTTPDoer {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return client.StandardClient()
}

// RateAPIFeed polls a JSON rate endpoint of the form
// {"rate": "<decimal>", "timestamp": <unix>} for a single asset pair. The
// adapter enforces a client-side request rate limit so a hot read path cannot
// hammer the upstream API.
type RateAPIFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
	base     string
	quote    string
	source   string
	limiter  *rate.Limiter
}

// NewRateAPIFeed constructs a rate-API feed adapter. When client is nil a
// retrying client with a five second timeout is used. The API key is optional
// and only added to the request headers when supplied.
func NewRateAPIFeed(client HTTPDoer, endpoint, apiKey, base, quote string) *RateAPIFeed {
	if client == nil {
		client = NewRetryingHTTPClient(5 * time.Second)
	}
	baseSym := normaliseSymbol(base)
	quoteSym := normaliseSymbol(quote)
	return &RateAPIFeed{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		base:     baseSym,
		quote:    quoteSym,
		source:   strings.ToLower(baseSym + "-" + quoteSym + "-rateapi"),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Read implements the PriceFeed interface.
func (f *RateAPIFeed) Read() (PriceQuote, error) {
	if f == nil || f.endpoint == "" {
		return PriceQuote{}, fmt.Errorf("stable: rate api feed not configured")
	}
	if !f.limiter.Allow() {
		return PriceQuote{}, fmt.Errorf("stable: rate api feed %s throttled", f.source)
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("from", f.base)
	values.Set("to", f.quote)
	req.URL.RawQuery = values.Encode()
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("stable: rate api feed %s: status %d: %s", f.source, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Rate      string `json:"rate"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("stable: rate api feed %s: decode: %w", f.source, err)
	}
	value, err := parseDecimalToScale(payload.Rate)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("stable: rate api feed %s: %w", f.source, err)
	}
	observed := time.Now().UTC()
	if payload.Timestamp > 0 {
		observed = time.Unix(payload.Timestamp, 0).UTC()
	}
	return PriceQuote{Value: value, Scale: stableDecimals, Source: f.source, ObservedAt: observed}, nil
}

// ConfidenceAPIFeed polls a Pyth-style endpoint that reports a fixed-point
// price with an explicit exponent and confidence interval:
// {"price": "<int>", "conf": "<int>", "expo": <int>, "publish_time": <unix>}.
type ConfidenceAPIFeed struct {
	client   HTTPDoer
	endpoint string
	feedID   string
	source   string
	limiter  *rate.Limiter
}

// NewConfidenceAPIFeed constructs the adapter for the supplied feed
// identifier.
func NewConfidenceAPIFeed(client HTTPDoer, endpoint, feedID string) *ConfidenceAPIFeed {
	if client == nil {
		client = NewRetryingHTTPClient(5 * time.Second)
	}
	trimmedID := strings.TrimSpace(feedID)
	return &ConfidenceAPIFeed{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		feedID:   trimmedID,
		source:   strings.ToLower("conf-" + trimmedID),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Read implements the PriceFeed interface.
func (f *ConfidenceAPIFeed) Read() (PriceQuote, error) {
	if f == nil || f.endpoint == "" || f.feedID == "" {
		return PriceQuote{}, fmt.Errorf("stable: confidence api feed not configured")
	}
	if !f.limiter.Allow() {
		return PriceQuote{}, fmt.Errorf("stable: confidence api feed %s throttled", f.source)
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("id", f.feedID)
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("stable: confidence api feed %s: status %d: %s", f.source, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price       string `json:"price"`
		Conf        string `json:"conf"`
		Expo        int32  `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("stable: confidence api feed %s: decode: %w", f.source, err)
	}
	value, err := rescaleExponent(payload.Price, payload.Expo)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("stable: confidence api feed %s: price: %w", f.source, err)
	}
	quote := PriceQuote{Value: value, Scale: stableDecimals, Source: f.source}
	if strings.TrimSpace(payload.Conf) != "" {
		conf, err := rescaleExponent(payload.Conf, payload.Expo)
		if err != nil {
			return PriceQuote{}, fmt.Errorf("stable: confidence api feed %s: conf: %w", f.source, err)
		}
		quote.Confidence = conf
	}
	if payload.PublishTime > 0 {
		quote.ObservedAt = time.Unix(payload.PublishTime, 0).UTC()
	} else {
		quote.ObservedAt = time.Now().UTC()
	}
	return quote, nil
}

func parseDecimalToScale(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty rate")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return nil, fmt.Errorf("invalid rate %q", raw)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scaleOne))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}

// rescaleExponent converts an integer mantissa with a base-10 exponent into
// the canonical 18-decimal representation.
func rescaleExponent(mantissa string, expo int32) (*big.Int, error) {
	trimmed := strings.TrimSpace(mantissa)
	if trimmed == "" {
		return nil, fmt.Errorf("empty value")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", mantissa)
	}
	shift := int64(stableDecimals) + int64(expo)
	switch {
	case shift > 0:
		value.Mul(value, pow10(shift))
	case shift < 0:
		value.Quo(value, pow10(-shift))
	}
	return value, nil
}
