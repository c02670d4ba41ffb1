package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/levomeno/mini-market-order-service/cache"
	"github.com/levomeno/mini-market-order-service/cache/memory"
	cacheRedis "github.com/levomeno/mini-market-order-service/cache/redis"
	redisProvider "github.com/levomeno/mini-market-order-service/cache/redis/providers"
	"github.com/levomeno/mini-market-order-service/db/postgres"
	providers "github.com/levomeno/mini-market-order-service/db/postgres/providers"
	"github.com/levomeno/mini-market-order-service/metrics"
	"github.com/levomeno/mini-market-order-service/repository"
	"github.com/levomeno/mini-market-order-service/routes"
	orderService "github.com/levomeno/mini-market-order-service/service"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 1. Connect PostgreSQL
	postgresClient := postgres.ConnectDB()
	defer postgresClient.Stop()

	// 1.1 Init Schema (optional — only for development)
	if err := postgresClient.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// 2. DB Helper
	dbHelper, err := providers.NewDbProvider(postgresClient.PostgresClient)
	if err != nil {
		log.Fatalf("Failed to initialize DB helper: %v", err)
	}

	// 3. Cache store: Redis when configured, in-process otherwise.
	var cacheStore cache.Store
	if os.Getenv("REDIS_HOST") != "" {
		redisClient := cacheRedis.ConnectRedis()
		defer redisClient.Stop()
		cacheStore, err = redisProvider.NewRedisProvider(redisClient.RedisClient)
		if err != nil {
			log.Fatalf("Failed to initialize Redis provider: %v", err)
		}
	} else {
		logger.Info("REDIS_HOST not set, using in-process cache")
		cacheStore = memory.NewStore()
	}

	// 4. Repos & Services
	orderRepo := repository.NewOrderRepository(dbHelper)
	execRepo := repository.NewExecutionRepository(dbHelper)

	rateLimiter := orderService.NewRateLimitService(orderService.RateLimitConfig{
		Capacity:        envInt("RATE_LIMIT_CAPACITY", 10),
		RefillPerSecond: envFloat("RATE_LIMIT_REFILL_PER_SEC", 10),
	}, logger)

	idempotency := orderService.NewIdempotencyService(
		cacheStore,
		time.Duration(envInt("IDEMPOTENCY_TTL_SECONDS", 300))*time.Second,
		logger,
	)

	priceFeed := orderService.NewPriceFeedService(
		&http.Client{Timeout: 5 * time.Second},
		cacheStore,
		orderService.PriceFeedConfig{
			BaseURL:  envString("PRICE_FEED_BASE_URL", "http://localhost:9090"),
			CacheTTL: time.Duration(envInt("PRICE_FEED_CACHE_TTL_MS", 3000)) * time.Millisecond,
			Retry: orderService.RetryPolicy{
				MaxAttempts:  envInt("PRICE_FEED_RETRY_MAX_ATTEMPTS", 4),
				InitialDelay: time.Duration(envInt("PRICE_FEED_RETRY_INITIAL_DELAY_MS", 1000)) * time.Millisecond,
				Multiplier:   envFloat("PRICE_FEED_RETRY_MULTIPLIER", 2.0),
				MaxDelay:     time.Duration(envInt("PRICE_FEED_RETRY_MAX_DELAY_MS", 8000)) * time.Millisecond,
			},
			FallbackEnabled: envBool("PRICE_FEED_FALLBACK_ENABLED", true),
		},
		logger,
	)

	m := metrics.New(prometheus.DefaultRegisterer)

	orderSrv := orderService.NewOrderService(
		orderRepo, execRepo, priceFeed, rateLimiter, idempotency, m, logger)

	// 5. Gin Router & Handlers
	router := gin.Default()
	routes.RegisterRoutes(router, orderSrv)

	// 6. Run REST API
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 7. Run server in a goroutine so the main thread stays non-blocking
	go func() {
		fmt.Printf("Order REST API running on %s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start Gin server: %v", err)
		}
	}()

	// 8. Wait for OS signal to shut down gracefully
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s. Hence Gracefully Shutdown.", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("gracefully shutdown")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("Invalid value for %s, using default %v", key, fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("Invalid value for %s, using default %v", key, fallback)
	}
	return fallback
}
