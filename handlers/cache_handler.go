package handlers

import (
	"context"
	"net/http"

	"github.com/upb/finance-advisor/middleware"
	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/cache"
	"github.com/upb/finance-advisor/utils"
	"go.uber.org/zap"
)

// CacheAdmin exposes cache statistics and maintenance
type CacheAdmin interface {
	Stats() cache.Stats
	Clear(ctx context.Context) error
}

// CacheHandler handles cache administration requests
type CacheHandler struct {
	cache  CacheAdmin
	logger *zap.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(c CacheAdmin, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{
		cache:  c,
		logger: logger,
	}
}

// HandleStats handles GET /api/v1/cache/stats
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.cache.Stats()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleClear handles DELETE /api/v1/cache
func (h *CacheHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if err := h.cache.Clear(ctx); err != nil {
		HandleServiceError(w, services.WrapInternal(services.ErrCacheFailed.Message, err), h.logger)
		return
	}

	h.logger.Info("cache cleared",
		zap.String("request_id", requestID))
	utils.WriteNoContent(w)
}
