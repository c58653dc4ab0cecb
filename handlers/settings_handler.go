package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/upb/finance-advisor/middleware"
	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/services/settings"
	"github.com/upb/finance-advisor/utils"
	"go.uber.org/zap"
)

// SettingsStore reads and updates orchestration settings
type SettingsStore interface {
	Get() settings.Snapshot
	Update(p settings.Partial) (settings.Snapshot, error)
}

// SettingsResponse is the wire form of a settings snapshot
type SettingsResponse struct {
	CacheEnabled    bool     `json:"cache_enabled"`
	CacheTTLSeconds int64    `json:"cache_ttl_seconds"`
	DefaultProvider string   `json:"default_provider"`
	AutoFallback    bool     `json:"auto_fallback"`
	MaxRetries      int      `json:"max_retries"`
	Providers       []string `json:"providers"`
}

// UpdateSettingsRequest is the body of PATCH /api/v1/settings. Omitted fields keep their value.
// The cache TTL is capped at one year.
type UpdateSettingsRequest struct {
	CacheEnabled    *bool   `json:"cache_enabled,omitempty"`
	CacheTTLSeconds *int64  `json:"cache_ttl_seconds,omitempty" validate:"omitempty,gt=0,lte=31536000"`
	DefaultProvider *string `json:"default_provider,omitempty" validate:"omitempty,provider"`
	AutoFallback    *bool   `json:"auto_fallback,omitempty"`
	MaxRetries      *int    `json:"max_retries,omitempty" validate:"omitempty,gte=1,lte=10"`
}

// toPartial converts the request into a settings update
func (r UpdateSettingsRequest) toPartial() (settings.Partial, error) {
	p := settings.Partial{
		CacheEnabled: r.CacheEnabled,
		AutoFallback: r.AutoFallback,
		MaxRetries:   r.MaxRetries,
	}
	if r.CacheTTLSeconds != nil {
		ttl := time.Duration(*r.CacheTTLSeconds) * time.Second
		p.CacheTTL = &ttl
	}
	if r.DefaultProvider != nil {
		id, err := providers.ParseProviderID(*r.DefaultProvider)
		if err != nil {
			return settings.Partial{}, fmt.Errorf("%w: %v", services.ErrInvalidProvider, err)
		}
		p.DefaultProvider = &id
	}
	return p, nil
}

func newSettingsResponse(s settings.Snapshot) SettingsResponse {
	names := make([]string, len(s.Providers))
	for i, id := range s.Providers {
		names[i] = id.String()
	}
	return SettingsResponse{
		CacheEnabled:    s.CacheEnabled,
		CacheTTLSeconds: int64(s.CacheTTL / time.Second),
		DefaultProvider: s.DefaultProvider.String(),
		AutoFallback:    s.AutoFallback,
		MaxRetries:      s.MaxRetries,
		Providers:       names,
	}
}

// SettingsHandler handles settings requests
type SettingsHandler struct {
	store  SettingsStore
	logger *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(store SettingsStore, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{
		store:  store,
		logger: logger,
	}
}

// HandleGet handles GET /api/v1/settings
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, newSettingsResponse(h.store.Get())); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdate handles PATCH /api/v1/settings
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req UpdateSettingsRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	partial, err := req.toPartial()
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if partial.IsEmpty() {
		_ = utils.WriteBadRequest(w, "No settings to update", nil)
		return
	}

	snapshot, err := h.store.Update(partial)
	if err != nil {
		HandleServiceError(w, fmt.Errorf("%w: %v", services.ErrInvalidSettings, err), h.logger)
		return
	}

	var sub string
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		sub = claims.Subject
	}
	h.logger.Info("settings changed via API",
		zap.String("request_id", requestID),
		zap.String("sub", sub))

	if err := utils.WriteOK(w, newSettingsResponse(snapshot)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
