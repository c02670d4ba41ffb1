package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/levomeno/mini-market-order-service/cache"
	"github.com/levomeno/mini-market-order-service/models"
)

const idempotencyKeyPrefix = "idempotency:"

// IdempotencyService memoizes successful order-creation responses under a
// caller-supplied key so retried requests replay the original response
// instead of re-running the pipeline. Only successful responses are stored;
// a failed attempt leaves the key free for a full re-execution.
type IdempotencyService struct {
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyService(store cache.Store, ttl time.Duration, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{store: store, ttl: ttl, logger: logger}
}

// Lookup returns the stored response for key, if one exists. Store errors
// degrade to a miss: deduplication is best-effort and must not take the
// order path down with it.
func (s *IdempotencyService) Lookup(ctx context.Context, key string) (*models.OrderResponse, bool) {
	raw, ok, err := s.store.Get(ctx, idempotencyKeyPrefix+key)
	if err != nil {
		s.logger.Warn("idempotency lookup failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp models.OrderResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		s.logger.Warn("stored idempotency record is unreadable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &resp, true
}

// Save stores the serialized response under key for the configured TTL.
func (s *IdempotencyService) Save(ctx context.Context, key string, resp *models.OrderResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to serialize idempotency record: %w", err)
	}
	if err := s.store.Set(ctx, idempotencyKeyPrefix+key, string(raw), s.ttl); err != nil {
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}
	return nil
}

// Remove drops the record for key.
func (s *IdempotencyService) Remove(ctx context.Context, key string) error {
	return s.store.Delete(ctx, idempotencyKeyPrefix+key)
}
