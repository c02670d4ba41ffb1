package service

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/levomeno/mini-market-order-service/models"
)

type RateLimitConfig struct {
	// Capacity is the bucket size: the number of requests an idle account
	// can burst before refill matters.
	Capacity int
	// RefillPerSecond is the steady-state admission rate per account.
	RefillPerSecond float64
}

// RateLimitService admits or denies order-creation requests per account.
// Buckets live only in process memory; a restart resets every account to
// full capacity. That is a documented limitation, not a bug.
type RateLimitService struct {
	cfg     RateLimitConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

func NewRateLimitService(cfg RateLimitConfig, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Check consumes one token from the account's bucket. Refill is computed
// lazily inside the limiter on each call; no timers are involved.
func (s *RateLimitService) Check(accountID string) error {
	bucket := s.bucketForAccount(accountID)

	if !bucket.Allow() {
		s.logger.Warn("rate limit exceeded", zap.String("account_id", accountID))
		return &models.RateLimitExceededError{AccountID: accountID}
	}
	return nil
}

// Remaining returns the current token estimate for the account, creating
// its bucket if it has never been seen.
func (s *RateLimitService) Remaining(accountID string) int {
	return int(s.bucketForAccount(accountID).Tokens())
}

// Reset forgets the account's bucket; the next request starts a fresh one
// at full capacity.
func (s *RateLimitService) Reset(accountID string) {
	s.mu.Lock()
	delete(s.buckets, accountID)
	s.mu.Unlock()
}

// bucketForAccount returns the account's bucket, creating it on first use.
// The double-checked locking keeps creation single-winner: concurrent first
// requests for one account share the bucket the write-lock holder installs.
func (s *RateLimitService) bucketForAccount(accountID string) *rate.Limiter {
	s.mu.RLock()
	bucket, ok := s.buckets[accountID]
	s.mu.RUnlock()
	if ok {
		return bucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok = s.buckets[accountID]; ok {
		return bucket
	}
	s.logger.Debug("creating rate limit bucket", zap.String("account_id", accountID))
	bucket = rate.NewLimiter(rate.Limit(s.cfg.RefillPerSecond), s.cfg.Capacity)
	s.buckets[accountID] = bucket
	return bucket
}
