package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgerapp "github.com/varejo/backend/internal/application/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/domain/shared/valueobject"
	"github.com/varejo/backend/internal/infrastructure/logger"
	"github.com/varejo/backend/internal/infrastructure/scheduler"
	"github.com/varejo/backend/internal/interfaces/http/dto"
)

// SyncHandler exposes the reconciliation engine over HTTP
type SyncHandler struct {
	processor *ledgerapp.EventProcessor
	scanner   *ledgerapp.DriftScanner
	scheduler *scheduler.ReconciliationScheduler
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	processor *ledgerapp.EventProcessor,
	scanner *ledgerapp.DriftScanner,
	sched *scheduler.ReconciliationScheduler,
) *SyncHandler {
	return &SyncHandler{
		processor: processor,
		scanner:   scanner,
		scheduler: sched,
	}
}

// RegisterRoutes registers sync routes on the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.POST("/webhook", h.HandleWebhook)
		sync.POST("/run", h.RunSync)
		sync.GET("/status", h.GetStatus)
		sync.GET("/stats", h.GetStats)
		sync.GET("/inconsistencies", h.ListInconsistencies)
	}
}

// WebhookRequest is the payload of POST /sync/webhook. Amount travels
// as a decimal string, never a float.
type WebhookRequest struct {
	Type            string `json:"type" binding:"required,oneof=order_confirmed order_cancelled credit_payment"`
	OrderID         string `json:"order_id" binding:"omitempty,uuid"`
	CreditAccountID string `json:"credit_account_id" binding:"omitempty,uuid"`
	Amount          string `json:"amount" binding:"omitempty"`
}

// WebhookResponse reports the ledger entry a webhook resolved to
type WebhookResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

// HandleWebhook receives business events from the storefront and
// dispatches them to the event processor
func (h *SyncHandler) HandleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindingErrorResponse(err))
		return
	}

	event := ledgerapp.WebhookEvent{Type: req.Type}

	switch req.Type {
	case ledgerapp.EventTypeOrderConfirmed, ledgerapp.EventTypeOrderCancelled:
		if req.OrderID == "" {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_INPUT", "order_id is required"))
			return
		}
		event.OrderID = uuid.MustParse(req.OrderID)
	case ledgerapp.EventTypeCreditPayment:
		if req.CreditAccountID == "" {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_INPUT", "credit_account_id is required"))
			return
		}
		amount, err := valueobject.NewMoneyBRLFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_INPUT", "amount must be a positive decimal string"))
			return
		}
		event.CreditAccountID = uuid.MustParse(req.CreditAccountID)
		event.Amount = amount
	}

	txID, err := h.processor.TriggerWebhook(c.Request.Context(), event)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(WebhookResponse{TransactionID: txID}))
}

// RunSync triggers a reconciliation cycle in the background and returns
// immediately. The outcome lands in the status endpoint.
func (h *SyncHandler) RunSync(c *gin.Context) {
	go h.scheduler.RunSyncJob(c.Request.Context())

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{
		"message": "sync job started",
	}))
}

// GetStatus returns the scheduler state and the most recent job result
func (h *SyncHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.scheduler.GetStatus()))
}

// GetStats returns live aggregate inconsistency counts
func (h *SyncHandler) GetStats(c *gin.Context) {
	stats, err := h.scheduler.GetDetailedStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(stats))
}

// ListInconsistencies runs a fresh drift scan and returns every finding
func (h *SyncHandler) ListInconsistencies(c *gin.Context) {
	inconsistencies, err := h.scanner.DetectInconsistencies(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
		"total":           len(inconsistencies),
		"inconsistencies": inconsistencies,
	}))
}

// respondError maps application errors to HTTP responses
func (h *SyncHandler) respondError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(shared.ErrNotFound.Code, err.Error()))
	case errors.Is(err, shared.ErrUnsupportedEventType):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(shared.ErrUnsupportedEventType.Code, err.Error()))
	case errors.As(err, &domainErr):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(domainErr.Code, domainErr.Message))
	default:
		logger.FromGin(c).Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", "An unexpected error occurred"))
	}
}
