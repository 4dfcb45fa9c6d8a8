package counter

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/FrederikMaler/LicenseBay/internal/pkg/cache"
)

const checkoutsCompletedKey = "checkout:counters:completed"

// AddCompletedCheckout increments the completed-checkout counter in Redis.
func AddCompletedCheckout() error {
	ctx := context.Background()
	return cache.GetClient().Incr(ctx, checkoutsCompletedKey).Err()
}

// CompletedCheckouts returns the current completed-checkout count.
func CompletedCheckouts() (int64, error) {
	ctx := context.Background()
	n, err := cache.GetClient().Get(ctx, checkoutsCompletedKey).Int64()
	if err != nil {
		// Missing key just means nothing sold yet.
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
