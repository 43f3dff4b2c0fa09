package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed(map[string]decimal.Decimal{"SPY": d(580)})

	price, err := feed.Quote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !price.Equal(d(580)) {
		t.Errorf("price = %s, want 580", price)
	}

	_, err = feed.Quote(context.Background(), "DOGE")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("got %v, want ErrUnknownSymbol", err)
	}

	feed.SetPrice("SPY", d(600))
	price, _ = feed.Quote(context.Background(), "SPY")
	if !price.Equal(d(600)) {
		t.Errorf("after SetPrice: %s, want 600", price)
	}
}

func TestQuotes_SkipsUnknownSymbols(t *testing.T) {
	feed := NewStaticFeed(map[string]decimal.Decimal{"SPY": d(580)})

	quotes, err := Quotes(context.Background(), feed, []string{"SPY", "DOGE"})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 1 || !quotes["SPY"].Equal(d(580)) {
		t.Errorf("quotes = %v", quotes)
	}
}

func TestQuotes_AllFailed(t *testing.T) {
	feed := NewStaticFeed(nil)
	_, err := Quotes(context.Background(), feed, []string{"DOGE"})
	if err == nil {
		t.Error("expected error when every lookup fails")
	}
}

func TestHTTPFeed_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SPY" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"symbol":"SPY","price":"580.25"}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, time.Second, 100)
	price, err := feed.Quote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("580.25")) {
		t.Errorf("price = %s, want 580.25", price)
	}

	_, err = feed.Quote(context.Background(), "DOGE")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("404 upstream: got %v, want ErrUnknownSymbol", err)
	}
}

func TestHTTPFeed_RetriesOnceThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "flapping", http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, time.Second, 100)
	_, err := feed.Quote(context.Background(), "SPY")
	if !errors.Is(err, ErrQuoteUnavailable) {
		t.Fatalf("got %v, want ErrQuoteUnavailable", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream called %d times, want 2 (one retry)", got)
	}
}

func TestHTTPFeed_RecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"symbol":"SPY","price":"580"}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, time.Second, 100)
	price, err := feed.Quote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("quote after retry: %v", err)
	}
	if !price.Equal(d(580)) {
		t.Errorf("price = %s, want 580", price)
	}
}

func TestHTTPFeed_RejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"symbol":"SPY","price":"0"}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, time.Second, 100)
	if _, err := feed.Quote(context.Background(), "SPY"); err == nil {
		t.Error("expected error for non-positive price")
	}
}
