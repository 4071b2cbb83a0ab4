package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultClaimTTL bounds how long a crashed run can hold a key. It only
// needs to outlive a single send.
const DefaultClaimTTL = 2 * time.Minute

const claimMarker = "sending"

// ClaimService marks dispatch keys as in flight so that two overlapping
// passes do not both send the same message while neither has written the
// ledger yet. The ledger remains authoritative; a claim only narrows the
// window.
type ClaimService struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewClaimService creates a claim service. A non-positive ttl uses
// DefaultClaimTTL.
func NewClaimService(client *Client, logger *zap.Logger, ttl time.Duration) *ClaimService {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &ClaimService{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func (s *ClaimService) buildKey(key string) string {
	return fmt.Sprintf("claim:%s", key)
}

// Claim acquires key using SET NX. Returns false if another run holds it.
func (s *ClaimService) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.rdb.SetNX(ctx, s.buildKey(key), claimMarker, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !ok {
		s.logger.Debug("dispatch key already claimed", zap.String("key", key))
	}
	return ok, nil
}

// Release drops a claim so the key can be retried on the next pass.
func (s *ClaimService) Release(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
