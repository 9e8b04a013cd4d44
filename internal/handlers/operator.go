package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/services"
)

// OperatorHandler exposes the manual-tooling surface: reopening a gated
// conversation and force-releasing a processing mutex. The automated
// pipeline never calls these.
type OperatorHandler struct {
	log   *logger.Logger
	gate  *services.ConversationGate
	mutex *services.ProcessingMutex
}

func NewOperatorHandler(baseLog *logger.Logger, gate *services.ConversationGate, mutex *services.ProcessingMutex) *OperatorHandler {
	return &OperatorHandler{
		log:   baseLog.With("handler", "OperatorHandler"),
		gate:  gate,
		mutex: mutex,
	}
}

type conversationRequest struct {
	TenantID uuid.UUID `json:"tenant_id" binding:"required"`
	Sender   string    `json:"sender" binding:"required"`
}

func (h *OperatorHandler) ClearGate(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.gate.Clear(c.Request.Context(), req.TenantID, req.Sender); err != nil {
		RespondError(c, http.StatusInternalServerError, "gate_clear_failed", err)
		return
	}
	h.log.Info("Conversation gate cleared by operator", "tenant_id", req.TenantID, "sender", req.Sender)
	RespondOK(c, gin.H{"cleared": true})
}

func (h *OperatorHandler) ReleaseMutex(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.mutex.Release(c.Request.Context(), req.TenantID, req.Sender); err != nil {
		RespondError(c, http.StatusInternalServerError, "mutex_release_failed", err)
		return
	}
	h.log.Info("Processing mutex released by operator", "tenant_id", req.TenantID, "sender", req.Sender)
	RespondOK(c, gin.H{"released": true})
}
