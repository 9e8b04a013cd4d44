package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/shopchat/autoreply-backend/internal/clients/redis"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

const DefaultClaimTTL = 10 * time.Minute

// DedupCache records which platform message ids have been claimed for a
// response unit. A claim is made before dispatch, never after; a concurrent
// handler that sees the claim skips the message. Entries expire with the
// store TTL, which is also how a transiently failed message becomes
// eligible for the next sweep.
type DedupCache struct {
	coord redisclient.Coordinator
	log   *logger.Logger
	ttl   time.Duration
}

func NewDedupCache(coord redisclient.Coordinator, baseLog *logger.Logger, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &DedupCache{
		coord: coord,
		log:   baseLog.With("service", "DedupCache"),
		ttl:   ttl,
	}
}

func (d *DedupCache) Claim(ctx context.Context, tenantID uuid.UUID, messageID string) (bool, error) {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	return d.coord.SetIfAbsent(ctx, claimKey(tenantID, messageID), stamp, d.ttl)
}

// ClaimAll claims every id it can and returns the subset that this caller
// now owns. Ids already claimed elsewhere are excluded, not errors.
func (d *DedupCache) ClaimAll(ctx context.Context, tenantID uuid.UUID, messageIDs []string) ([]string, error) {
	owned := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		ok, err := d.Claim(ctx, tenantID, id)
		if err != nil {
			return owned, err
		}
		if ok {
			owned = append(owned, id)
		}
	}
	return owned, nil
}

func (d *DedupCache) IsClaimed(ctx context.Context, tenantID uuid.UUID, messageID string) (bool, error) {
	return d.coord.Exists(ctx, claimKey(tenantID, messageID))
}

// FilterUnclaimed returns the ids with no live claim, preserving order.
func (d *DedupCache) FilterUnclaimed(ctx context.Context, tenantID uuid.UUID, messageIDs []string) ([]string, error) {
	unclaimed := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		claimed, err := d.IsClaimed(ctx, tenantID, id)
		if err != nil {
			return unclaimed, err
		}
		if !claimed {
			unclaimed = append(unclaimed, id)
		}
	}
	return unclaimed, nil
}
