package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/levomeno/mini-market-order-service/handlers"
	"github.com/levomeno/mini-market-order-service/service"
)

func RegisterRoutes(router *gin.Engine, orderService *service.OrderService) {
	orderHandler := handlers.NewOrderHandler(orderService)

	api := router.Group("/api")
	{
		api.POST("/orders", orderHandler.CreateOrder)
		api.GET("/orders/:id", orderHandler.GetOrderByID)
		api.GET("/orders", orderHandler.ListOrders)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
