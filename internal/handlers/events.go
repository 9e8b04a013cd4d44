package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/repos"
	"github.com/shopchat/autoreply-backend/internal/services"
	"github.com/shopchat/autoreply-backend/internal/types"
)

type InboundEventRequest struct {
	MessageID  string     `json:"message_id" binding:"required"`
	TenantID   uuid.UUID  `json:"tenant_id" binding:"required"`
	Sender     string     `json:"sender" binding:"required"`
	TenantName string     `json:"tenant_name"`
	Text       *string    `json:"text"`
	ReceivedAt *time.Time `json:"received_at"`
}

type EventHandler struct {
	log         *logger.Logger
	messageRepo repos.MessageRepo
	events      *queue.EventQueue
	pipeline    *services.AutoResponseService
}

func NewEventHandler(baseLog *logger.Logger, messageRepo repos.MessageRepo, events *queue.EventQueue, pipeline *services.AutoResponseService) *EventHandler {
	return &EventHandler{
		log:         baseLog.With("handler", "EventHandler"),
		messageRepo: messageRepo,
		events:      events,
		pipeline:    pipeline,
	}
}

// HandleInbound is the webhook entry point. It appends the message to the
// log, pushes the event onto the queue for the sweep, then runs the
// pipeline inline. Webhook retries re-enter here; the dedup layer absorbs
// them.
func (h *EventHandler) HandleInbound(c *gin.Context) {
	var req InboundEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_event", err)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	msg := &types.Message{
		PlatformMessageID: strings.TrimSpace(req.MessageID),
		TenantID:          req.TenantID,
		Sender:            strings.TrimSpace(req.Sender),
		Direction:         types.DirectionInbound,
		Text:              req.Text,
		ReceivedAt:        receivedAt,
	}
	if _, err := h.messageRepo.Create(c.Request.Context(), nil, []*types.Message{msg}); err != nil {
		// A webhook retry hits the unique index on the platform id; the
		// original row is already in the log, so keep going.
		h.log.Debug("Message insert skipped", "message_id", req.MessageID, "error", err)
	}

	ev := queue.AutoResponseEvent{
		MessageID:  msg.PlatformMessageID,
		TenantID:   req.TenantID,
		Sender:     msg.Sender,
		TenantName: strings.TrimSpace(req.TenantName),
		Timestamp:  receivedAt,
	}
	if err := h.events.Enqueue(c.Request.Context(), ev); err != nil {
		h.log.Warn("Failed to enqueue event, relying on inline handling and poll fallback", "message_id", ev.MessageID, "error", err)
	}

	outcome, err := h.pipeline.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		RespondOK(c, gin.H{"outcome": outcome, "error": err.Error()})
		return
	}
	RespondOK(c, gin.H{"outcome": outcome})
}

type SweepHandler struct {
	log   *logger.Logger
	sweep *services.SweepService
}

func NewSweepHandler(baseLog *logger.Logger, sweep *services.SweepService) *SweepHandler {
	return &SweepHandler{
		log:   baseLog.With("handler", "SweepHandler"),
		sweep: sweep,
	}
}

type sweepRequest struct {
	BatchSize int `json:"batch_size"`
}

// RunSweep triggers one on-demand reconciliation cycle.
func (h *SweepHandler) RunSweep(c *gin.Context) {
	var req sweepRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.sweep.RunSweep(c.Request.Context(), req.BatchSize)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "sweep_failed", err)
		return
	}
	RespondOK(c, result)
}
