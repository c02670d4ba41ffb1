package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/levomeno/mini-market-order-service/cache"
	"github.com/levomeno/mini-market-order-service/models"
)

const priceCachePrefix = "price:"

// RetryPolicy bounds the remote fetch: up to MaxAttempts tries with
// exponential backoff between attempts (none before the first).
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

type PriceFeedConfig struct {
	BaseURL  string
	CacheTTL time.Duration
	Retry    RetryPolicy
	// FallbackEnabled controls the synthetic-price terminal recovery path.
	// With it disabled, retry exhaustion surfaces as PriceFeedUnavailable.
	FallbackEnabled bool
}

// PriceFeedService resolves a current price for a symbol: short-TTL cache,
// then a retrying remote fetch, then a deterministic fallback.
type PriceFeedService struct {
	client *http.Client
	store  cache.Store
	cfg    PriceFeedConfig
	logger *zap.Logger
}

func NewPriceFeedService(client *http.Client, store cache.Store, cfg PriceFeedConfig, logger *zap.Logger) *PriceFeedService {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &PriceFeedService{client: client, store: store, cfg: cfg, logger: logger}
}

// fetchError classifies a single failed fetch attempt. Server errors and
// connectivity problems are retryable; client-side errors are not.
type fetchError struct {
	err       error
	retryable bool
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// GetCurrentPrice returns a quote for symbol. A cache hit short-circuits
// the remote call entirely. Concurrent misses for one symbol are not
// deduplicated; the cache is a best-effort optimization.
func (s *PriceFeedService) GetCurrentPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	if quote, ok := s.cachedQuote(ctx, symbol); ok {
		s.logger.Debug("price cache hit", zap.String("symbol", symbol))
		return quote, nil
	}

	quote, fromRemote, err := s.fetchWithRetry(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// Only remote quotes are written through. Caching a synthetic price
	// would replay it for a full TTL window instead of re-attempting the
	// source on the next resolution.
	if fromRemote {
		s.cacheQuote(ctx, quote)
	}
	return quote, nil
}

// fetchWithRetry resolves a quote from the remote source, falling back to a
// synthetic price once the attempt budget is spent. The second return value
// reports whether the quote came from the remote source.
func (s *PriceFeedService) fetchWithRetry(ctx context.Context, symbol string) (*models.PriceQuote, bool, error) {
	delay := s.cfg.Retry.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= s.cfg.Retry.MaxAttempts; attempt++ {
		quote, err := s.fetchPrice(ctx, symbol)
		if err == nil {
			s.logger.Info("fetched price",
				zap.String("symbol", symbol), zap.String("price", quote.Price.String()))
			return quote, true, nil
		}

		var fe *fetchError
		if errors.As(err, &fe) && !fe.retryable {
			s.logger.Warn("non-retryable price fetch failure",
				zap.String("symbol", symbol), zap.Error(err))
			return nil, false, &models.PriceFeedUnavailableError{Symbol: symbol, Err: err}
		}

		lastErr = err
		if attempt < s.cfg.Retry.MaxAttempts {
			s.logger.Warn("price fetch attempt failed, backing off",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, false, &models.PriceFeedUnavailableError{Symbol: symbol, Err: err}
			}
			delay = nextBackoff(delay, s.cfg.Retry.Multiplier, s.cfg.Retry.MaxDelay)
		}
	}

	if s.cfg.FallbackEnabled {
		quote := s.fallbackQuote(symbol)
		s.logger.Warn("all price fetch attempts failed, using fallback price",
			zap.String("symbol", symbol),
			zap.String("price", quote.Price.String()),
			zap.Error(lastErr))
		return quote, false, nil
	}
	return nil, false, &models.PriceFeedUnavailableError{Symbol: symbol, Err: lastErr}
}

func (s *PriceFeedService) fetchPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/price?symbol=%s", s.cfg.BaseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &fetchError{err: err, retryable: false}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all transient.
		return nil, &fetchError{err: err, retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var quote models.PriceQuote
		if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
			return nil, &fetchError{
				err:       fmt.Errorf("invalid response from price feed service: %w", err),
				retryable: false,
			}
		}
		return &quote, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &fetchError{
			err:       fmt.Errorf("price feed rejected request: status %d", resp.StatusCode),
			retryable: false,
		}
	default:
		return nil, &fetchError{
			err:       fmt.Errorf("price feed server error: status %d", resp.StatusCode),
			retryable: true,
		}
	}
}

var fallbackBasePrices = map[string]decimal.Decimal{
	"AAPL":  decimal.NewFromFloat(210.55),
	"GOOGL": decimal.NewFromFloat(2800.75),
	"MSFT":  decimal.NewFromFloat(415.30),
	"TSLA":  decimal.NewFromFloat(245.80),
	"AMZN":  decimal.NewFromFloat(3200.45),
}

var defaultBasePrice = decimal.NewFromFloat(100.00)

// fallbackQuote derives a synthetic price from the symbol's base price with
// a bounded perturbation of +/-5%, rounded half-up to 6 fractional digits.
// It never fails; this is the terminal recovery path.
func (s *PriceFeedService) fallbackQuote(symbol string) *models.PriceQuote {
	base, ok := fallbackBasePrices[symbol]
	if !ok {
		base = defaultBasePrice
	}

	variation := (rand.Float64() - 0.5) * 0.1
	price := base.Mul(decimal.NewFromFloat(1 + variation)).Round(6)

	return &models.PriceQuote{Symbol: symbol, Price: price}
}

func (s *PriceFeedService) cachedQuote(ctx context.Context, symbol string) (*models.PriceQuote, bool) {
	raw, ok, err := s.store.Get(ctx, priceCachePrefix+symbol)
	if err != nil {
		s.logger.Warn("price cache read failed, treating as miss",
			zap.String("symbol", symbol), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var quote models.PriceQuote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		s.logger.Warn("cached price is unreadable, treating as miss",
			zap.String("symbol", symbol), zap.Error(err))
		return nil, false
	}
	return &quote, true
}

func (s *PriceFeedService) cacheQuote(ctx context.Context, quote *models.PriceQuote) {
	raw, err := json.Marshal(quote)
	if err != nil {
		s.logger.Warn("failed to serialize price quote for caching", zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, priceCachePrefix+quote.Symbol, string(raw), s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache price quote",
			zap.String("symbol", quote.Symbol), zap.Error(err))
	}
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
