package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/logstream/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultRate is the limit applied when none is configured.
	DefaultRate = "100-S"

	rateLimitPrefix = "logstream:ratelimit"
)

// RateLimit returns ulule/limiter middleware keyed by client IP. Counters live in
// Redis when redisClient is set so every replica shares them, otherwise in memory.
// rate uses the limiter format, e.g. "100-S" or "1000-M".
func RateLimit(rate string, redisClient *redis.Client, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", rate, err)
	}

	opts := limiter.StoreOptions{Prefix: rateLimitPrefix, CleanUpInterval: limiter.DefaultCleanUpInterval}
	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, opts)
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate_limit_exceeded",
				zap.String("client_ip", request.ClientIP(r)),
				zap.String("method", r.Method),
			)
			writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded", logger)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate_limit_store_error", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "An unexpected error occurred", logger)
		}),
	)
	return mw.Handler, nil
}
