package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/finance-advisor/services"
	"github.com/upb/finance-advisor/services/providers"
	"github.com/upb/finance-advisor/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain and provider errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		handleProviderError(w, provErr, logger)
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if err := utils.WriteError(w, http.StatusGatewayTimeout, "Upstream providers did not answer in time", nil); err != nil {
			logger.Error("failed to write timeout response", zap.Error(err))
		}

	case errors.Is(err, context.Canceled):
		// the client went away; nothing useful can be written
		logger.Debug("request cancelled", zap.Error(err))

	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, err.Error()); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsRateLimitError(err):
		if err := utils.WriteTooManyRequests(w, err.Error(), details); err != nil {
			logger.Error("failed to write rate limit response", zap.Error(err))
		}

	case errors.Is(err, services.ErrNoProviderAvailable):
		if err := utils.WriteError(w, http.StatusServiceUnavailable, err.Error(), details); err != nil {
			logger.Error("failed to write unavailable response", zap.Error(err))
		}

	case services.IsExternalError(err):
		if err := utils.WriteError(w, http.StatusBadGateway, err.Error(), details); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// handleProviderError reports an upstream failure. Quota exhaustion becomes
// 429, everything else 502.
func handleProviderError(w http.ResponseWriter, provErr *providers.ProviderError, logger *zap.Logger) {
	details := map[string]interface{}{
		"provider": provErr.Provider.String(),
		"code":     provErr.Code,
	}
	if provErr.StatusCode != 0 {
		details["upstream_status"] = provErr.StatusCode
	}

	if providers.IsQuotaExceeded(provErr) {
		if err := utils.WriteTooManyRequests(w, services.ErrProviderQuotaExceeded.Message, details); err != nil {
			logger.Error("failed to write quota response", zap.Error(err))
		}
		return
	}

	logger.Warn("provider failure", zap.Error(provErr))
	if err := utils.WriteError(w, http.StatusBadGateway, "Advice provider failed: "+provErr.Message, details); err != nil {
		logger.Error("failed to write bad gateway response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
