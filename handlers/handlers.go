package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/levomeno/mini-market-order-service/models"
	"github.com/levomeno/mini-market-order-service/service"
	"github.com/levomeno/mini-market-order-service/utils"
)

// IdempotencyKeyHeader carries the caller-supplied deduplication key on
// order creation. Absent or empty disables deduplication for the request.
const IdempotencyKeyHeader = "Idempotency-Key"

type OrderHandler struct {
	Service   *service.OrderService
	Validator *validator.Validate
}

func NewOrderHandler(s *service.OrderService) *OrderHandler {
	return &OrderHandler{
		Service:   s,
		Validator: utils.GetValidator(),
	}
}

func formatValidationError(err error) map[string]string {
	errs := make(map[string]string)
	for _, e := range err.(validator.ValidationErrors) {
		errs[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	return errs
}

// POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.Validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"validation_errors": formatValidationError(err)})
		return
	}

	if !req.Quantity.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"validation_errors": map[string]string{
			"Quantity": "must be positive",
		}})
		return
	}

	idempotencyKey := c.GetHeader(IdempotencyKeyHeader)

	resp, err := h.Service.CreateOrder(c.Request.Context(), &req, idempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GET /orders/:id
func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	resp, err := h.Service.GetOrderByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /orders?account_id=X&page=0&size=20
func (h *OrderHandler) ListOrders(c *gin.Context) {
	accountID := c.Query("account_id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	resp, err := h.Service.ListOrders(c.Request.Context(), accountID, page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps domain errors onto HTTP statuses:
// rate limit -> 429, price feed -> 422, not found -> 404, anything else -> 500.
func writeError(c *gin.Context, err error) {
	var rateLimitErr *models.RateLimitExceededError
	var priceFeedErr *models.PriceFeedUnavailableError
	var notFoundErr *models.OrderNotFoundError

	switch {
	case errors.As(err, &rateLimitErr):
		writeErrorResponse(c, http.StatusTooManyRequests, "Rate Limit Exceeded", err)
	case errors.As(err, &priceFeedErr):
		writeErrorResponse(c, http.StatusUnprocessableEntity, "Price Feed Error", err)
	case errors.As(err, &notFoundErr):
		writeErrorResponse(c, http.StatusNotFound, "Order Not Found", err)
	default:
		writeErrorResponse(c, http.StatusInternalServerError, "Internal Server Error", err)
	}
}

func writeErrorResponse(c *gin.Context, status int, title string, err error) {
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     title,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}
