package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	connectMaxTries    = 5
	connectMaxInterval = 10 * time.Second
)

// RetryConnect runs a connection attempt with exponential backoff.
func RetryConnect[T any](ctx context.Context, connect func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = connectMaxInterval
	return backoff.Retry(ctx, connect, backoff.WithBackOff(bo), backoff.WithMaxTries(connectMaxTries))
}
