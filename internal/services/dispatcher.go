package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/shopchat/autoreply-backend/internal/autoerr"
	"github.com/shopchat/autoreply-backend/internal/clients/channel"
	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/repos"
	"github.com/shopchat/autoreply-backend/internal/types"
)

// Dispatcher owns the send itself plus the bookkeeping around it: the
// batched message-log update on success, and failure classification on
// error. Credential expiry is terminal until an operator rotates
// credentials; anything else stays eligible for the sweep once its claim
// lapses.
type Dispatcher struct {
	db          *gorm.DB
	log         *logger.Logger
	channel     channel.Client
	messageRepo repos.MessageRepo
	failureRepo repos.ResponseFailureRepo
	failedQueue *queue.EventQueue
}

func NewDispatcher(
	db *gorm.DB,
	baseLog *logger.Logger,
	channelClient channel.Client,
	messageRepo repos.MessageRepo,
	failureRepo repos.ResponseFailureRepo,
	failedQueue *queue.EventQueue,
) *Dispatcher {
	return &Dispatcher{
		db:          db,
		log:         baseLog.With("service", "Dispatcher"),
		channel:     channelClient,
		messageRepo: messageRepo,
		failureRepo: failureRepo,
		failedQueue: failedQueue,
	}
}

// Dispatch sends the composed greeting and records the outcome for every
// message in the unit. The returned id is the platform id of the response
// message.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant *types.Tenant, ev queue.AutoResponseEvent, groupIDs []string, text string) (string, error) {
	responseID, sendErr := d.channel.Send(ctx, tenant.ID, ev.Sender, text)
	if sendErr == nil {
		if err := d.messageRepo.MarkResponded(ctx, nil, groupIDs, responseID); err != nil {
			// Returning the id with the error tells the caller the send
			// itself landed; the caller still closes the gate.
			d.log.Error("Dispatch succeeded but message log update failed", "tenant_id", tenant.ID, "sender", ev.Sender, "error", err)
			return responseID, fmt.Errorf("mark responded: %w", err)
		}
		return responseID, nil
	}

	if err := d.messageRepo.MarkFailed(ctx, nil, groupIDs); err != nil {
		d.log.Error("Failed to mark message group as failed", "tenant_id", tenant.ID, "sender", ev.Sender, "error", err)
	}

	if autoerr.IsCredentialExpired(sendErr) {
		// No retry path: retrying would just re-fail and burn the
		// grouping window. The failure record is the operator alert.
		d.recordFailure(ctx, tenant, ev, groupIDs, types.FailureKindCredential, sendErr)
		return "", sendErr
	}

	d.recordFailure(ctx, tenant, ev, groupIDs, types.FailureKindTransient, sendErr)
	if err := d.failedQueue.RecordFailed(ctx, ev); err != nil {
		d.log.Warn("Failed to push event onto failure side-channel", "tenant_id", tenant.ID, "sender", ev.Sender, "error", err)
	}
	return "", &autoerr.TransientDispatchError{Err: sendErr}
}

func (d *Dispatcher) recordFailure(ctx context.Context, tenant *types.Tenant, ev queue.AutoResponseEvent, groupIDs []string, kind string, cause error) {
	idsJSON, _ := json.Marshal(groupIDs)
	payloadJSON, _ := json.Marshal(ev)
	failure := &types.ResponseFailure{
		TenantID:   tenant.ID,
		Sender:     ev.Sender,
		Kind:       kind,
		MessageIDs: datatypes.JSON(idsJSON),
		ErrorText:  cause.Error(),
		Payload:    datatypes.JSON(payloadJSON),
	}
	if _, err := d.failureRepo.Create(ctx, nil, []*types.ResponseFailure{failure}); err != nil {
		d.log.Error("Failed to record response failure", "tenant_id", tenant.ID, "sender", ev.Sender, "kind", kind, "error", err)
	}
}
