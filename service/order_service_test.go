package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/levomeno/mini-market-order-service/cache/memory"
	"github.com/levomeno/mini-market-order-service/metrics"
	"github.com/levomeno/mini-market-order-service/models"
)

// fakeStore is an in-memory stand-in for both repositories.
type fakeStore struct {
	mu          sync.Mutex
	nextOrderID int64
	nextExecID  int64
	orders      map[int64]*models.Order
	executions  map[int64]*models.Execution // keyed by order ID
	createCalls int
	createErr   error
	updateErr   error
	execErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     make(map[int64]*models.Order),
		executions: make(map[int64]*models.Execution),
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextOrderID++
	order.ID = f.nextOrderID
	cp := *order
	f.orders[order.ID] = &cp
	return order.ID, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID int64, status models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d does not exist", orderID)
	}
	if o.Status != models.StatusPending {
		return fmt.Errorf("order %d is not pending", orderID)
	}
	o.Status = status
	return nil
}

func (f *fakeStore) GetOrderWithExecution(_ context.Context, orderID int64) (*models.OrderWithExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, &models.OrderNotFoundError{ID: orderID}
	}
	owe := &models.OrderWithExecution{Order: *o}
	if e, ok := f.executions[orderID]; ok {
		cp := *e
		owe.Execution = &cp
	}
	return owe, nil
}

func (f *fakeStore) ListOrdersWithExecution(_ context.Context, accountID string, limit, offset int) ([]models.OrderWithExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.OrderWithExecution
	for id, o := range f.orders {
		if accountID != "" && o.AccountID != accountID {
			continue
		}
		owe := models.OrderWithExecution{Order: *o}
		if e, ok := f.executions[id]; ok {
			cp := *e
			owe.Execution = &cp
		}
		all = append(all, owe)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Order.ID > all[j].Order.ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) CountOrders(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, o := range f.orders {
		if accountID == "" || o.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) RecordExecution(_ context.Context, orderID int64, price decimal.Decimal, executedAt time.Time) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d does not exist", orderID)
	}
	if o.Status != models.StatusPending {
		return nil, fmt.Errorf("order %d is not pending", orderID)
	}
	f.nextExecID++
	exec := &models.Execution{
		ID:         f.nextExecID,
		OrderID:    orderID,
		Price:      price,
		ExecutedAt: executedAt,
	}
	f.executions[orderID] = exec
	o.Status = models.StatusExecuted
	cp := *exec
	return &cp, nil
}

func (f *fakeStore) orderStatus(t *testing.T, orderID int64) models.OrderStatus {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	require.True(t, ok, "order %d should exist", orderID)
	return o.Status
}

// stubResolver serves a fixed quote, optionally failing the first N calls.
type stubResolver struct {
	mu    sync.Mutex
	calls int
	quote models.PriceQuote
	errs  []error
}

func (r *stubResolver) GetCurrentPrice(_ context.Context, symbol string) (*models.PriceQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	q := r.quote
	if q.Symbol == "" {
		q = models.PriceQuote{Symbol: symbol, Price: decimal.RequireFromString("100.00")}
	}
	return &q, nil
}

func newOrderServiceForTest(store *fakeStore, resolver PriceResolver, rlCfg RateLimitConfig) (*OrderService, *metrics.Metrics) {
	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	rateLimiter := NewRateLimitService(rlCfg, logger)
	idempotency := NewIdempotencyService(memory.NewStore(), time.Minute, logger)
	svc := NewOrderService(store, store, resolver, rateLimiter, idempotency, m, logger)
	return svc, m
}

func relaxedRateLimit() RateLimitConfig {
	return RateLimitConfig{Capacity: 1000, RefillPerSecond: 1000}
}

func buyRequest(account, symbol string, qty int64) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		AccountID: account,
		Symbol:    symbol,
		Side:      models.SideBuy,
		Quantity:  decimal.NewFromInt(qty),
	}
}

func TestCreateOrderExecutesAtFetchedPrice(t *testing.T) {
	store := newFakeStore()
	resolver := &stubResolver{quote: models.PriceQuote{Symbol: "AAPL", Price: decimal.RequireFromString("210.55")}}
	svc, m := newOrderServiceForTest(store, resolver, relaxedRateLimit())

	resp, err := svc.CreateOrder(context.Background(), buyRequest("acc-1", "AAPL", 10), "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusExecuted, resp.Status)
	assert.Equal(t, "acc-1", resp.AccountID)
	assert.True(t, resp.Quantity.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, resp.Execution)
	assert.Equal(t, resp.ID, resp.Execution.OrderID)
	assert.Equal(t, "210.550000", resp.Execution.Price.StringFixed(6))

	assert.Equal(t, models.StatusExecuted, store.orderStatus(t, resp.ID))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderRoundsPriceToSixDigits(t *testing.T) {
	store := newFakeStore()
	resolver := &stubResolver{quote: models.PriceQuote{Symbol: "TSLA", Price: decimal.RequireFromString("245.12345649")}}
	svc, _ := newOrderServiceForTest(store, resolver, relaxedRateLimit())

	resp, err := svc.CreateOrder(context.Background(), buyRequest("acc-1", "TSLA", 1), "")
	require.NoError(t, err)
	assert.Equal(t, "245.123456", resp.Execution.Price.StringFixed(6))
}

func TestCreateOrderRateLimited(t *testing.T) {
	store := newFakeStore()
	svc, m := newOrderServiceForTest(store, &stubResolver{}, RateLimitConfig{Capacity: 1, RefillPerSecond: 0.001})

	_, err := svc.CreateOrder(context.Background(), buyRequest("acc-1", "AAPL", 1), "")
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), buyRequest("acc-1", "AAPL", 1), "")
	require.Error(t, err)

	var rateLimitErr *models.RateLimitExceededError
	require.True(t, errors.As(err, &rateLimitErr))
	assert.Equal(t, "acc-1", rateLimitErr.AccountID)

	// A denied request must not leave a partial order behind.
	assert.Equal(t, 1, store.createCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderPriceFailureMarksOrderFailed(t *testing.T) {
	store := newFakeStore()
	feedErr := &models.PriceFeedUnavailableError{Symbol: "AAPL", Err: errors.New("all attempts failed")}
	resolver := &stubResolver{errs: []error{feedErr}}
	svc, m := newOrderServiceForTest(store, resolver, relaxedRateLimit())

	_, err := svc.CreateOrder(context.Background(), buyRequest("acc-1", "AAPL", 10), "")
	require.Error(t, err)

	var priceErr *models.PriceFeedUnavailableError
	assert.True(t, errors.As(err, &priceErr), "the originating error is re-signaled")

	// The PENDING row created before the fetch keeps its id, now FAILED.
	assert.Equal(t, models.StatusFailed, store.orderStatus(t, 1))
	assert.Empty(t, store.executions)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderExecutionSaveFailureMarksOrderFailed(t *testing.T) {
	store := newFakeStore()
	store.execErr = errors.New("disk full")
	svc, m := newOrderServiceForTest(store, &stubResolver{}, relaxedRateLimit())

	_, err := svc.CreateOrder(context.Background(), buyRequest("acc-1", "AAPL", 1), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record execution")

	assert.Equal(t, models.StatusFailed, store.orderStatus(t, 1))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	resolver := &stubResolver{quote: models.PriceQuote{Symbol: "AAPL", Price: decimal.RequireFromString("210.55")}}
	svc, m := newOrderServiceForTest(store, resolver, relaxedRateLimit())
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 10), "req-123")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 10), "req-123")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "replayed response must be identical")

	// Side effects happen exactly once.
	assert.Equal(t, 1, store.createCalls)
	assert.Equal(t, 1, resolver.calls)
	assert.Len(t, store.executions, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderFailedAttemptIsNotCached(t *testing.T) {
	store := newFakeStore()
	resolver := &stubResolver{
		quote: models.PriceQuote{Symbol: "AAPL", Price: decimal.RequireFromString("210.55")},
		errs:  []error{&models.PriceFeedUnavailableError{Symbol: "AAPL"}},
	}
	svc, _ := newOrderServiceForTest(store, resolver, relaxedRateLimit())
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 10), "req-123")
	require.Error(t, err)

	// The retry with the same key re-executes the full pipeline.
	resp, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 10), "req-123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, resp.Status)

	assert.Equal(t, 2, store.createCalls)
	assert.Equal(t, models.StatusFailed, store.orderStatus(t, 1))
	assert.Equal(t, models.StatusExecuted, store.orderStatus(t, 2))
}

func TestCreateOrderEmptyKeySkipsDeduplication(t *testing.T) {
	store := newFakeStore()
	svc, _ := newOrderServiceForTest(store, &stubResolver{}, relaxedRateLimit())
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 1), "")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 1), "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "without a key every request is fresh")
	assert.Equal(t, 2, store.createCalls)
}

func TestGetOrderByIDNotFound(t *testing.T) {
	store := newFakeStore()
	svc, _ := newOrderServiceForTest(store, &stubResolver{}, relaxedRateLimit())

	_, err := svc.GetOrderByID(context.Background(), "999")
	require.Error(t, err)

	var notFoundErr *models.OrderNotFoundError
	assert.True(t, errors.As(err, &notFoundErr))
	assert.Equal(t, int64(999), notFoundErr.ID)

	// A failed read mutates nothing.
	assert.Equal(t, 0, store.createCalls)
	assert.Empty(t, store.orders)
}

func TestGetOrderByIDRejectsMalformedID(t *testing.T) {
	svc, _ := newOrderServiceForTest(newFakeStore(), &stubResolver{}, relaxedRateLimit())

	_, err := svc.GetOrderByID(context.Background(), "not-a-number")
	var notFoundErr *models.OrderNotFoundError
	assert.True(t, errors.As(err, &notFoundErr))
}

func TestGetOrderByIDReturnsComposedView(t *testing.T) {
	store := newFakeStore()
	resolver := &stubResolver{quote: models.PriceQuote{Symbol: "AAPL", Price: decimal.RequireFromString("210.55")}}
	svc, _ := newOrderServiceForTest(store, resolver, relaxedRateLimit())
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 10), "")
	require.NoError(t, err)

	fetched, err := svc.GetOrderByID(ctx, fmt.Sprintf("%d", created.ID))
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	require.NotNil(t, fetched.Execution)
	assert.True(t, fetched.Execution.Price.Equal(created.Execution.Price))
}

func TestListOrdersPagination(t *testing.T) {
	store := newFakeStore()
	svc, _ := newOrderServiceForTest(store, &stubResolver{}, relaxedRateLimit())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CreateOrder(ctx, buyRequest("acc-1", "AAPL", 1), "")
		require.NoError(t, err)
	}
	_, err := svc.CreateOrder(ctx, buyRequest("acc-2", "MSFT", 1), "")
	require.NoError(t, err)

	page, err := svc.ListOrders(ctx, "acc-1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page.Content, 2)
	assert.Equal(t, int64(5), page.TotalElements)
	assert.Equal(t, int64(3), page.TotalPages)

	last, err := svc.ListOrders(ctx, "acc-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, last.Content, 1)

	all, err := svc.ListOrders(ctx, "", 0, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(6), all.TotalElements)

	count, err := svc.CountOrdersByAccount(ctx, "acc-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
