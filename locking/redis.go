package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soc-validation/boardfarm/common/types"
)

const lockKeyPrefix = "lock:board:"

// releaseScript atomically deletes the lock only if the presented token still
// owns it, so a lock that expired and was re-acquired by a peer is never
// deleted out from under that peer.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`)

// renewScript atomically resets the TTL only if the presented token still
// owns the lock.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end`)

// RedisLockBackend implements LockBackend over a Redis instance using
// SET NX EX for acquisition and Lua check-and-act scripts for release/renew.
type RedisLockBackend struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisLockBackend(addr string, password string, database int) (*RedisLockBackend, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	backend := &RedisLockBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       database,
		}),
		logger: logger,
	}

	return backend, nil
}

// NewRedisLockBackendWithClient wraps an existing client. Used when the lock
// backend and the lease store share one connection pool.
func NewRedisLockBackendWithClient(client *redis.Client) (*RedisLockBackend, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	return &RedisLockBackend{client: client, logger: logger}, nil
}

func lockKey(boardID string) string {
	return fmt.Sprintf("%s%s", lockKeyPrefix, boardID)
}

func (b *RedisLockBackend) TryAcquire(ctx context.Context, boardID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	acquired, err := b.client.SetNX(ctx, lockKey(boardID), token, ttl).Result()
	if err != nil {
		b.logger.Error("Failed to acquire board lock.",
			zap.String("board_id", boardID),
			zap.Error(err))
		return "", errors.Wrapf(types.ErrLockBackendUnavailable, "SET NX failed: %v", err)
	}

	if !acquired {
		return "", ErrLockHeld
	}

	b.logger.Debug("Acquired board lock.",
		zap.String("board_id", boardID),
		zap.String("token", token),
		zap.Duration("ttl", ttl))

	return token, nil
}

func (b *RedisLockBackend) Renew(ctx context.Context, boardID string, token string, ttl time.Duration) error {
	result, err := renewScript.Run(ctx, b.client, []string{lockKey(boardID)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		b.logger.Error("Failed to renew board lock.",
			zap.String("board_id", boardID),
			zap.Error(err))
		return errors.Wrapf(types.ErrLockBackendUnavailable, "renew script failed: %v", err)
	}

	if result == 0 {
		return ErrNotLockOwner
	}

	return nil
}

func (b *RedisLockBackend) Release(ctx context.Context, boardID string, token string) error {
	result, err := releaseScript.Run(ctx, b.client, []string{lockKey(boardID)}, token).Int64()
	if err != nil {
		b.logger.Error("Failed to release board lock.",
			zap.String("board_id", boardID),
			zap.Error(err))
		return errors.Wrapf(types.ErrLockBackendUnavailable, "release script failed: %v", err)
	}

	if result == 0 {
		b.logger.Warn("Board lock was not released: token no longer owns it.",
			zap.String("board_id", boardID))
		return ErrNotLockOwner
	}

	b.logger.Debug("Released board lock.", zap.String("board_id", boardID))

	return nil
}

func (b *RedisLockBackend) IsLocked(ctx context.Context, boardID string) (bool, error) {
	count, err := b.client.Exists(ctx, lockKey(boardID)).Result()
	if err != nil {
		return false, errors.Wrapf(types.ErrLockBackendUnavailable, "EXISTS failed: %v", err)
	}

	return count > 0, nil
}

func (b *RedisLockBackend) ForceRelease(ctx context.Context, boardID string) error {
	deleted, err := b.client.Del(ctx, lockKey(boardID)).Result()
	if err != nil {
		return errors.Wrapf(types.ErrLockBackendUnavailable, "DEL failed: %v", err)
	}

	if deleted > 0 {
		b.logger.Warn("Force-released board lock.", zap.String("board_id", boardID))
	}

	return nil
}

func (b *RedisLockBackend) Close() error {
	if b.client == nil {
		return nil
	}

	return b.client.Close()
}
