package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/shopchat/autoreply-backend/internal/clients/redis"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

// ConversationGate is the one-shot flag per (tenant, sender). Once set by
// a successful greeting it stays set, with no expiry, until an operator
// explicitly clears it. While set, the pipeline never dispatches for that
// conversation.
type ConversationGate struct {
	coord redisclient.Coordinator
	log   *logger.Logger
}

func NewConversationGate(coord redisclient.Coordinator, baseLog *logger.Logger) *ConversationGate {
	return &ConversationGate{
		coord: coord,
		log:   baseLog.With("service", "ConversationGate"),
	}
}

func (g *ConversationGate) Has(ctx context.Context, tenantID uuid.UUID, sender string) (bool, error) {
	return g.coord.Exists(ctx, gateKey(tenantID, sender))
}

func (g *ConversationGate) Set(ctx context.Context, tenantID uuid.UUID, sender string) error {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	// TTL 0 keeps the entry until an explicit clear.
	_, err := g.coord.SetIfAbsent(ctx, gateKey(tenantID, sender), stamp, 0)
	return err
}

// Clear reopens the conversation for automation. It also drops any live
// processing mutex for the sender: a human is taking over and a stale lock
// must not block manual tooling.
func (g *ConversationGate) Clear(ctx context.Context, tenantID uuid.UUID, sender string) error {
	return g.coord.Delete(ctx, gateKey(tenantID, sender), mutexKey(tenantID, sender))
}
