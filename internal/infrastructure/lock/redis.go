package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/config"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "kegledger:lock:keg:"
	retryInterval = 100 * time.Millisecond
	releaseWait   = 5 * time.Second
)

// obtainer is the subset of *redislock.Client used by RedisLocker
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisLocker serializes operations per keg across instances with a Redis lease.
// The lease expires after ttl even if the holder dies without releasing it.
type RedisLocker struct {
	client obtainer
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a locker over an existing client
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, log *zap.Logger) *RedisLocker {
	return newRedisLocker(redislock.New(client), ttl, wait, log)
}

func newRedisLocker(client obtainer, ttl, wait time.Duration, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger.OrNop(log).Named("lock.redis"),
	}
}

// Lock obtains the keg's lease, retrying until wait elapses
func (l *RedisLocker) Lock(ctx context.Context, kegID uuid.UUID) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	lease, err := l.client.Obtain(ctx, keyPrefix+kegID.String(), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, keg.ErrKegBusy
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, shared.WrapDomainError(keg.ErrKegBusy, err)
	case err != nil:
		return nil, fmt.Errorf("obtain keg lock: %w", err)
	}

	return func() {
		// the request context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), releaseWait)
		defer cancel()
		if err := lease.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release keg lock", logger.KegID(kegID), zap.Error(err))
		}
	}, nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// New builds the locker selected by cfg.Mode. redisClient is only used in redis mode.
func New(cfg config.LockConfig, redisClient redis.UniversalClient, log *zap.Logger) (Locker, error) {
	switch cfg.Mode {
	case config.ModeMemory:
		return NewMemoryLocker(cfg.Wait), nil
	case config.ModeRedis:
		if redisClient == nil {
			return nil, errors.New("lock: redis mode requires a redis client")
		}
		return NewRedisLocker(redisClient, cfg.TTL, cfg.Wait, log), nil
	default:
		return nil, fmt.Errorf("lock: unknown mode %q", cfg.Mode)
	}
}
