package handlers

import (
	"context"
	"net/http"

	"github.com/upb/finance-advisor/middleware"
	"github.com/upb/finance-advisor/services/advisor"
	"github.com/upb/finance-advisor/utils"
	"go.uber.org/zap"
)

// AdviceRequest is the body of POST /api/v1/advice
type AdviceRequest struct {
	Question string                 `json:"question" validate:"required,max=2000"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Provider string                 `json:"provider,omitempty" validate:"omitempty,provider"`
}

// Advisor answers advice requests
type Advisor interface {
	Advise(ctx context.Context, req advisor.Request) (*advisor.Advice, error)
}

// AdviceHandler handles advice requests
type AdviceHandler struct {
	advisor Advisor
	logger  *zap.Logger
}

// NewAdviceHandler creates a new AdviceHandler
func NewAdviceHandler(a Advisor, logger *zap.Logger) *AdviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdviceHandler{
		advisor: a,
		logger:  logger,
	}
}

// HandleAdvise handles POST /api/v1/advice
func (h *AdviceHandler) HandleAdvise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req AdviceRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	advice, err := h.advisor.Advise(ctx, advisor.Request{
		Question: req.Question,
		Context:  req.Context,
		Provider: req.Provider,
	})
	if err != nil {
		h.logger.Warn("failed to produce advice",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, advice); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
