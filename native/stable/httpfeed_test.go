package stable

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateAPIFeedRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "WBTC" {
			t.Errorf("from = %q", got)
		}
		if got := r.URL.Query().Get("to"); got != "USD" {
			t.Errorf("to = %q", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("x-api-key = %q", got)
		}
		fmt.Fprint(w, `{"rate": "50000.25", "timestamp": 1700000000}`)
	}))
	defer server.Close()

	feed := NewRateAPIFeed(server.Client(), server.URL, "secret", "wbtc", "usd")
	quote, err := feed.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := bigFromString(t, "50000250000000000000000"); quote.Value.Cmp(want) != 0 {
		t.Fatalf("value = %s, want %s", quote.Value, want)
	}
	if !quote.ObservedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("observedAt = %s", quote.ObservedAt)
	}
	if quote.Source != "wbtc-usd-rateapi" {
		t.Fatalf("source = %q", quote.Source)
	}
}

func TestRateAPIFeedNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	feed := NewRateAPIFeed(server.Client(), server.URL, "", "wbtc", "usd")
	if _, err := feed.Read(); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestRateAPIFeedRejectsBadRate(t *testing.T) {
	for _, body := range []string{`{"rate": ""}`, `{"rate": "-1"}`, `{"rate": "junk"}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		feed := NewRateAPIFeed(server.Client(), server.URL, "", "wbtc", "usd")
		if _, err := feed.Read(); err == nil {
			t.Fatalf("body %s accepted", body)
		}
		server.Close()
	}
}

func TestConfidenceAPIFeedRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "btc-usd" {
			t.Errorf("id = %q", got)
		}
		fmt.Fprint(w, `{"price": "5000012345678", "conf": "250000000", "expo": -8, "publish_time": 1700000000}`)
	}))
	defer server.Close()

	feed := NewConfidenceAPIFeed(server.Client(), server.URL, "btc-usd")
	quote, err := feed.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// Mantissa 5000012345678 at expo -8 is $50,000.12345678.
	if want := bigFromString(t, "50000123456780000000000"); quote.Value.Cmp(want) != 0 {
		t.Fatalf("value = %s, want %s", quote.Value, want)
	}
	if want := bigFromString(t, "2500000000000000000"); quote.Confidence.Cmp(want) != 0 {
		t.Fatalf("confidence = %s, want %s", quote.Confidence, want)
	}
	if !quote.ObservedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("observedAt = %s", quote.ObservedAt)
	}
}

func TestConfidenceAPIFeedPositiveExponent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"price": "5", "expo": 4, "publish_time": 1700000000}`)
	}))
	defer server.Close()

	feed := NewConfidenceAPIFeed(server.Client(), server.URL, "btc-usd")
	quote, err := feed.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if quote.Value.Cmp(usd18(50_000)) != 0 {
		t.Fatalf("value = %s, want %s", quote.Value, usd18(50_000))
	}
	if quote.Confidence != nil {
		t.Fatalf("confidence = %s, want unset", quote.Confidence)
	}
}

func TestConfidenceAPIFeedRequiresConfiguration(t *testing.T) {
	if _, err := NewConfidenceAPIFeed(nil, "", "").Read(); err == nil {
		t.Fatal("expected error for unconfigured feed")
	}
}

func TestRescaleExponent(t *testing.T) {
	cases := []struct {
		mantissa string
		expo     int32
		want     string
	}{
		{"5000000000000", -8, "50000000000000000000000"},
		{"50000", 0, "50000000000000000000000"},
		{"5", 4, "50000000000000000000000"},
		{"1", -18, "1"},
		{"123", -20, "1"},
	}
	for _, tc := range cases {
		got, err := rescaleExponent(tc.mantissa, tc.expo)
		if err != nil {
			t.Fatalf("rescaleExponent(%q, %d): %v", tc.mantissa, tc.expo, err)
		}
		if got.Cmp(bigFromString(t, tc.want)) != 0 {
			t.Fatalf("rescaleExponent(%q, %d) = %s, want %s", tc.mantissa, tc.expo, got, tc.want)
		}
	}
	if _, err := rescaleExponent("", -8); err == nil {
		t.Fatal("expected error for empty mantissa")
	}
	if _, err := rescaleExponent("1.5", -8); err == nil {
		t.Fatal("expected error for non-integer mantissa")
	}
}
