package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tillq/pkg/redis"
)

// Manager records which device claimed a unit of work using Redis SETNX with a TTL.
// Keys follow the `tq:idempotency:claim:<scope>:<id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a claim guard whose markers expire after ttl.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	// A claim without expiry would strand the job forever if its owner died.
	if ttl <= 0 {
		return nil, errors.New("claim ttl must be positive")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Claim returns true when owner now holds the marker for id. A false result
// with a nil error means another owner got there first.
func (m *Manager) Claim(ctx context.Context, scope string, id uuid.UUID, owner string) (bool, error) {
	key, err := m.claimKey(scope, id)
	if err != nil {
		return false, err
	}
	if owner == "" {
		owner = "1"
	}
	return m.store.SetNX(ctx, key, owner, m.ttl)
}

// Owner reports who holds the marker, or "" when unclaimed.
func (m *Manager) Owner(ctx context.Context, scope string, id uuid.UUID) (string, error) {
	key, err := m.claimKey(scope, id)
	if err != nil {
		return "", err
	}
	owner, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// Release drops the marker so the work can be claimed again.
func (m *Manager) Release(ctx context.Context, scope string, id uuid.UUID) error {
	key, err := m.claimKey(scope, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) claimKey(scope string, id uuid.UUID) (string, error) {
	if scope == "" {
		return "", errors.New("claim scope is required")
	}
	if id == uuid.Nil {
		return "", errors.New("claim id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("claim:%s", scope), id.String()), nil
}
