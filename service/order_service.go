package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/levomeno/mini-market-order-service/metrics"
	"github.com/levomeno/mini-market-order-service/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderRepository is the durable store for orders. The concrete
// implementation lives in the repository package.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	GetOrderWithExecution(ctx context.Context, orderID int64) (*models.OrderWithExecution, error)
	ListOrdersWithExecution(ctx context.Context, accountID string, limit, offset int) ([]models.OrderWithExecution, error)
	CountOrders(ctx context.Context, accountID string) (int64, error)
}

// ExecutionRepository records executions atomically with the EXECUTED
// transition of the owning order.
type ExecutionRepository interface {
	RecordExecution(ctx context.Context, orderID int64, price decimal.Decimal, executedAt time.Time) (*models.Execution, error)
}

// PriceResolver yields a current price for a symbol.
type PriceResolver interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*models.PriceQuote, error)
}

// OrderService drives an order through its state machine:
// PENDING -> EXECUTED on a successful price resolution and execution write,
// PENDING -> FAILED on any failure after the order row exists. Neither
// terminal state is ever left.
type OrderService struct {
	orderRepo   OrderRepository
	execRepo    ExecutionRepository
	priceFeed   PriceResolver
	rateLimiter *RateLimitService
	idempotency *IdempotencyService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewOrderService(
	orderRepo OrderRepository,
	execRepo ExecutionRepository,
	priceFeed PriceResolver,
	rateLimiter *RateLimitService,
	idempotency *IdempotencyService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		execRepo:    execRepo,
		priceFeed:   priceFeed,
		rateLimiter: rateLimiter,
		idempotency: idempotency,
		metrics:     m,
		logger:      logger,
	}
}

// CreateOrder runs the full pipeline for one order-creation request. An
// empty idempotencyKey disables deduplication for the call.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, idempotencyKey string) (*models.OrderResponse, error) {
	if idempotencyKey != "" {
		if cached, ok := s.idempotency.Lookup(ctx, idempotencyKey); ok {
			s.logger.Info("replaying idempotent order response",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", cached.ID))
			return cached, nil
		}
	}

	s.logger.Info("creating order",
		zap.String("account_id", req.AccountID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("quantity", req.Quantity.String()))

	// Admission happens before any order row exists: a denied request
	// leaves no trace.
	if err := s.rateLimiter.Check(req.AccountID); err != nil {
		return nil, err
	}

	order := &models.Order{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.orderRepo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.logger.Debug("order saved", zap.Int64("order_id", order.ID))

	quote, err := s.priceFeed.GetCurrentPrice(ctx, order.Symbol)
	if err != nil {
		s.logger.Error("failed to get price",
			zap.Int64("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.Error(err))
		s.failOrder(ctx, order.ID)
		return nil, err
	}

	execution, err := s.execRepo.RecordExecution(ctx, order.ID, quote.Price.Round(6), time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to record execution",
			zap.Int64("order_id", order.ID), zap.Error(err))
		s.failOrder(ctx, order.ID)
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}
	order.Status = models.StatusExecuted

	s.logger.Info("order executed",
		zap.Int64("order_id", order.ID),
		zap.String("price", execution.Price.String()))
	s.metrics.OrdersCreated.Inc()

	resp := composeOrderResponse(order, execution)

	if idempotencyKey != "" {
		if err := s.idempotency.Save(ctx, idempotencyKey, resp); err != nil {
			// Losing the record only costs a duplicate execution on retry.
			s.logger.Warn("failed to save idempotency record",
				zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		}
	}
	return resp, nil
}

// failOrder is the compensating transition. It runs detached from the
// request context and commits on its own: the FAILED write must survive the
// error that is about to be returned to the caller. Best effort only.
func (s *OrderService) failOrder(ctx context.Context, orderID int64) {
	detached := context.WithoutCancel(ctx)
	if err := s.orderRepo.UpdateOrderStatus(detached, orderID, models.StatusFailed); err != nil {
		s.logger.Error("failed to mark order as FAILED",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// GetOrderByID returns one order with its execution, if any.
func (s *OrderService) GetOrderByID(ctx context.Context, orderIDStr string) (*models.OrderResponse, error) {
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		return nil, &models.OrderNotFoundError{ID: -1}
	}

	owe, err := s.orderRepo.GetOrderWithExecution(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return composeOrderResponse(&owe.Order, owe.Execution), nil
}

// ListOrders returns a page of orders, newest first, optionally filtered to
// one account. page is zero-based.
func (s *OrderService) ListOrders(ctx context.Context, accountID string, page, size int) (*models.OrderPageResponse, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	rows, err := s.orderRepo.ListOrdersWithExecution(ctx, accountID, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	total, err := s.orderRepo.CountOrders(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	content := make([]models.OrderResponse, 0, len(rows))
	for i := range rows {
		content = append(content, *composeOrderResponse(&rows[i].Order, rows[i].Execution))
	}

	totalPages := total / int64(size)
	if total%int64(size) != 0 {
		totalPages++
	}

	return &models.OrderPageResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}, nil
}

// CountOrdersByAccount returns the number of orders for one account.
func (s *OrderService) CountOrdersByAccount(ctx context.Context, accountID string) (int64, error) {
	return s.orderRepo.CountOrders(ctx, accountID)
}

func composeOrderResponse(order *models.Order, execution *models.Execution) *models.OrderResponse {
	resp := &models.OrderResponse{
		ID:        order.ID,
		AccountID: order.AccountID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	}
	if execution != nil {
		resp.Execution = &models.ExecutionResponse{
			ID:         execution.ID,
			OrderID:    execution.OrderID,
			Price:      execution.Price,
			ExecutedAt: execution.ExecutedAt,
		}
	}
	return resp
}
