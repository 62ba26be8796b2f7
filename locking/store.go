package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/soc-validation/boardfarm/common/types"
)

const leaseKeyPrefix = "lease:"

func leaseKey(leaseID string) string {
	return fmt.Sprintf("%s%s", leaseKeyPrefix, leaseID)
}

// RedisLeaseStore persists lease records as JSON under lease:<id> with a TTL,
// in the same Redis instance that backs the locks.
type RedisLeaseStore struct {
	client *redis.Client
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) Put(ctx context.Context, lease *types.Lease, ttl time.Duration) error {
	data, err := json.Marshal(lease)
	if err != nil {
		return err
	}

	if err = s.client.Set(ctx, leaseKey(lease.LeaseID), data, ttl).Err(); err != nil {
		return errors.Wrapf(types.ErrLockBackendUnavailable, "SET lease record failed: %v", err)
	}

	return nil
}

func (s *RedisLeaseStore) Get(ctx context.Context, leaseID string) (*types.Lease, error) {
	data, err := s.client.Get(ctx, leaseKey(leaseID)).Bytes()
	if err == redis.Nil {
		return nil, types.ErrLeaseNotFound
	} else if err != nil {
		return nil, errors.Wrapf(types.ErrLockBackendUnavailable, "GET lease record failed: %v", err)
	}

	var lease types.Lease
	if err = json.Unmarshal(data, &lease); err != nil {
		return nil, err
	}

	return &lease, nil
}

func (s *RedisLeaseStore) Delete(ctx context.Context, leaseID string) error {
	if err := s.client.Del(ctx, leaseKey(leaseID)).Err(); err != nil {
		return errors.Wrapf(types.ErrLockBackendUnavailable, "DEL lease record failed: %v", err)
	}

	return nil
}

// MemoryLeaseStore is the in-process counterpart of RedisLeaseStore, paired
// with MemoryLockBackend for single-instance deployments and tests.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]*storedLease
}

type storedLease struct {
	lease     types.Lease
	expiresAt time.Time
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]*storedLease),
	}
}

func (s *MemoryLeaseStore) Put(_ context.Context, lease *types.Lease, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leases[lease.LeaseID] = &storedLease{
		lease:     *lease,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (s *MemoryLeaseStore) Get(_ context.Context, leaseID string) (*types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leases[leaseID]
	if !ok || time.Now().After(stored.expiresAt) {
		return nil, types.ErrLeaseNotFound
	}

	lease := stored.lease

	return &lease, nil
}

func (s *MemoryLeaseStore) Delete(_ context.Context, leaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.leases, leaseID)

	return nil
}

var (
	_ LeaseStore = (*RedisLeaseStore)(nil)
	_ LeaseStore = (*MemoryLeaseStore)(nil)
)
