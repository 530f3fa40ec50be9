package errx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	RedisErrorMessage    = "conversation store unavailable"
	RedisNotFoundMessage = "conversation store key not found"
	RedisTimeoutMessage  = "conversation store timed out"
)

// WrapRedis maps go-redis errors onto AppError: a missing key is 404, a
// deadline or network timeout is 504 and everything else is 502.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
