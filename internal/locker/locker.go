package locker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// Lock keys are derived from the contended account number. For transfers the
// source account is the key; only the debiting side needs serialization.
const keyPrefix = "account-lock:"

// ErrLockAcquisitionFailed is an infrastructure error, distinct from the
// domain errors: the guarded operation was never invoked and the caller may
// retry with backoff. The coordinator itself never retries past the
// configured wait window.
var ErrLockAcquisitionFailed = errors.New("account lock acquisition timed out")

// Locker wraps an operation with cross-process mutual exclusion on an
// account. At most one caller across all instances runs fn for a given
// account number at any instant; the lock is released on every exit path,
// including a panic inside fn.
type Locker interface {
	WithAccountLock(ctx context.Context, accountNumber string, fn func(ctx context.Context) error) error
}

// Config bounds lock behavior. Lease must be chosen longer than the p95
// latency of the guarded operation; a lease that expires mid-operation is a
// configuration error, not something the coordinator can recover from.
type Config struct {
	Lease      time.Duration
	Wait       time.Duration
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Lease:      5 * time.Second,
		Wait:       1 * time.Second,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker implements Locker with the RedLock algorithm (redsync) over a
// shared Redis, so the exclusion holds across process instances. Leases
// auto-expire to bound the damage from a crashed holder.
type RedisLocker struct {
	rs  *redsync.Redsync
	cfg Config
}

func NewRedisLocker(client *redis.Client, cfg Config) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("locker: redis client is required")
	}
	if cfg.Lease <= 0 {
		return nil, errors.New("locker: lease must be positive")
	}
	if cfg.Wait <= 0 {
		return nil, errors.New("locker: wait must be positive")
	}
	if cfg.RetryDelay <= 0 {
		return nil, errors.New("locker: retry delay must be positive")
	}

	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), cfg: cfg}, nil
}

// LockKey returns the Redis key guarding an account number.
func LockKey(accountNumber string) string {
	return keyPrefix + accountNumber
}

func (l *RedisLocker) WithAccountLock(ctx context.Context, accountNumber string, fn func(ctx context.Context) error) error {
	key := LockKey(accountNumber)

	// The wait window is expressed as tries x retry delay; redsync has no
	// native deadline for acquisition.
	tries := int(l.cfg.Wait/l.cfg.RetryDelay) + 1

	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.cfg.Lease),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.cfg.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			log.Printf("[LOCK] Acquisition timed out for %s after %d tries", key, tries)
			return fmt.Errorf("%w: %s", ErrLockAcquisitionFailed, key)
		}
		return fmt.Errorf("locker: acquire %s: %w", key, err)
	}

	// Release runs even when fn panics; the panic propagates after the
	// unlock. Unlock uses a fresh context so a cancelled request cannot
	// leave the lock held until lease expiry.
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			log.Printf("[LOCK] Failed to release %s (ok=%v): %v", key, ok, err)
		}
	}()

	return fn(ctx)
}
