// Package pricefeed abstracts the external quote source used by trade
// execution and mark-to-market. The HTTP client wraps the upstream with a
// rate limiter, a circuit breaker, and retry-once-then-fail semantics so a
// flapping feed surfaces as a transient infrastructure error, never as a
// hung trade.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrQuoteUnavailable is returned when no price could be obtained within
// the allowed attempts. Callers treat it as transient, distinct from
// business-rule rejections.
var ErrQuoteUnavailable = errors.New("pricefeed: quote unavailable")

// ErrUnknownSymbol is returned when the feed has no price for a symbol.
var ErrUnknownSymbol = errors.New("pricefeed: unknown symbol")

// Feed resolves current prices for instrument symbols.
type Feed interface {
	// Quote returns the current price for one symbol.
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Quotes fetches prices for a set of symbols, skipping ones the feed cannot
// price. It returns an error only when every lookup failed transiently.
func Quotes(ctx context.Context, feed Feed, symbols []string) (map[string]decimal.Decimal, error) {
	quotes := make(map[string]decimal.Decimal, len(symbols))
	var lastErr error
	for _, sym := range symbols {
		price, err := feed.Quote(ctx, sym)
		if err != nil {
			lastErr = err
			continue
		}
		quotes[sym] = price
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

// StaticFeed serves prices from an in-memory map. Used for tests and
// development, and as the scheduler's quote cache.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticFeed creates a feed pre-loaded with the given prices.
func NewStaticFeed(prices map[string]decimal.Decimal) *StaticFeed {
	p := make(map[string]decimal.Decimal, len(prices))
	for sym, price := range prices {
		p[sym] = price
	}
	return &StaticFeed{prices: p}
}

func (f *StaticFeed) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return price, nil
}

// SetPrice updates one symbol's price.
func (f *StaticFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// HTTPFeed fetches quotes from an upstream HTTP price service exposing
// GET {base}/quote?symbol=X with a JSON {"symbol": "...", "price": "..."}
// body. Outbound calls are rate limited and guarded by a circuit breaker.
type HTTPFeed struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPFeed creates an HTTP-backed feed. rps bounds outbound request
// rate; timeout bounds each attempt.
func NewHTTPFeed(baseURL string, timeout time.Duration, rps float64) *HTTPFeed {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if rps <= 0 {
		rps = 50
	}
	return &HTTPFeed{
		base:    baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "pricefeed",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (f *HTTPFeed) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	// Retry once with a short backoff, then fail.
	price, err := f.fetch(ctx, symbol)
	if err == nil {
		return price, nil
	}
	if errors.Is(err, ErrUnknownSymbol) || ctx.Err() != nil {
		return decimal.Zero, err
	}

	select {
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, ctx.Err())
	case <-time.After(200 * time.Millisecond):
	}

	price, err = f.fetch(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrUnknownSymbol) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	return price, nil
}

func (f *HTTPFeed) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		u := fmt.Sprintf("%s/quote?symbol=%s", f.base, url.QueryEscape(symbol))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("pricefeed: upstream status %d", resp.StatusCode)
		}

		var body struct {
			Symbol string          `json:"symbol"`
			Price  decimal.Decimal `json:"price"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("pricefeed: decode quote: %w", err)
		}
		if body.Price.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("pricefeed: non-positive price for %s", symbol)
		}
		return body.Price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}
