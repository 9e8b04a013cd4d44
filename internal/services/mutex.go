package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/shopchat/autoreply-backend/internal/clients/redis"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

const DefaultMutexTTL = 2 * time.Second

// ProcessingMutex serializes concurrent handlers working on the same
// (tenant, sender) pair. The hold is a short TTL entry in the coordination
// store; release happens by expiry so a crashed holder can never wedge a
// sender. Exclusion here is best effort, the dedup claim is the real
// duplicate-send barrier.
type ProcessingMutex struct {
	coord redisclient.Coordinator
	log   *logger.Logger
	ttl   time.Duration
}

func NewProcessingMutex(coord redisclient.Coordinator, baseLog *logger.Logger, ttl time.Duration) *ProcessingMutex {
	if ttl <= 0 {
		ttl = DefaultMutexTTL
	}
	return &ProcessingMutex{
		coord: coord,
		log:   baseLog.With("service", "ProcessingMutex"),
		ttl:   ttl,
	}
}

func (m *ProcessingMutex) Acquire(ctx context.Context, tenantID uuid.UUID, sender string) (bool, error) {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	return m.coord.SetIfAbsent(ctx, mutexKey(tenantID, sender), stamp, m.ttl)
}

// Release is for operator tooling only; the pipeline never calls it.
func (m *ProcessingMutex) Release(ctx context.Context, tenantID uuid.UUID, sender string) error {
	return m.coord.Delete(ctx, mutexKey(tenantID, sender))
}
