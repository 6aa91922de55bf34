package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/client"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

const (
	otpRateLimitPrefix = "otp_rl:"
)

// RateLimitCache counts OTP send requests per email address inside a
// rolling window. The counter key expires with the window, so a quiet
// hour resets the budget without any sweeper.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

func (c *RateLimitCache) IncrementSendCount(ctx context.Context, email string, window time.Duration) (int, error) {
	key := otpRateLimitPrefix + email

	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("failed to increment otp send counter",
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment otp send counter: %w", err)
	}

	util.Debug("otp send counter incremented",
		zap.Int64("count", count),
		zap.Duration("window", window))

	return int(count), nil
}

func (c *RateLimitCache) SendCount(ctx context.Context, email string) (int, error) {
	key := otpRateLimitPrefix + email

	val, err := c.client.Get(ctx, key)
	if err != nil {
		// Missing key means no sends inside the window
		exists, existsErr := c.client.Exists(ctx, key)
		if existsErr == nil && !exists {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read otp send counter: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt otp send counter value: %w", err)
	}

	return count, nil
}

func (c *RateLimitCache) ResetSendCount(ctx context.Context, email string) error {
	key := otpRateLimitPrefix + email

	if err := c.client.Del(ctx, key); err != nil {
		util.Error("failed to reset otp send counter", zap.Error(err))
		return fmt.Errorf("failed to reset otp send counter: %w", err)
	}

	return nil
}
