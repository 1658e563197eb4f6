package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GrantStore persists short-lived PIN grants. A grant disappearing from the
// store is equivalent to it having expired.
type GrantStore interface {
	Put(ctx context.Context, grant models.PinGrant, ttl time.Duration) error
	Get(ctx context.Context, accountID uuid.UUID) (models.PinGrant, bool, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
}

// RedisGrantStore keeps grants in Redis so expiry is enforced server-side via
// key TTLs.
type RedisGrantStore struct {
	client *redis.Client
}

func NewRedisGrantStore(client *redis.Client) *RedisGrantStore {
	return &RedisGrantStore{client: client}
}

func grantKey(accountID uuid.UUID) string {
	return fmt.Sprintf("pin:grant:%s", accountID)
}

func (s *RedisGrantStore) Put(ctx context.Context, grant models.PinGrant, ttl time.Duration) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return pkg.NewAppError(pkg.ErrServerCode, "failed to encode pin grant", err)
	}
	if err := s.client.Set(ctx, grantKey(grant.AccountID), payload, ttl).Err(); err != nil {
		return pkg.NewAppError(pkg.ErrServerCode, "failed to store pin grant", err)
	}
	return nil
}

func (s *RedisGrantStore) Get(ctx context.Context, accountID uuid.UUID) (models.PinGrant, bool, error) {
	payload, err := s.client.Get(ctx, grantKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PinGrant{}, false, nil
	}
	if err != nil {
		return models.PinGrant{}, false, pkg.NewAppError(pkg.ErrServerCode, "failed to read pin grant", err)
	}
	var grant models.PinGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return models.PinGrant{}, false, pkg.NewAppError(pkg.ErrServerCode, "failed to decode pin grant", err)
	}
	return grant, true, nil
}

func (s *RedisGrantStore) Delete(ctx context.Context, accountID uuid.UUID) error {
	if err := s.client.Del(ctx, grantKey(accountID)).Err(); err != nil {
		return pkg.NewAppError(pkg.ErrServerCode, "failed to revoke pin grant", err)
	}
	return nil
}
