package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"membership-backend/internal/domain"
	"membership-backend/internal/idempotency"
	"membership-backend/internal/logger"
	"membership-backend/internal/security"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

// statusFor maps the error taxonomy onto HTTP. The security invariant is
// checked first because it may wrap a validation error.
func statusFor(err error) (int, errorResponse) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSecurityInvariant):
		return http.StatusInternalServerError, errorResponse{
			Error:   "security_invariant",
			Message: "The operation was refused for an integrity reason. An operator has been alerted.",
		}
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: "validation", Message: ve.Reason, Field: ve.Field}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: "validation", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: "Request not found"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorResponse{Error: "invalid_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: "conflict", Message: "The request was modified concurrently, reload and retry"}
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, errorResponse{Error: "in_flight", Message: err.Error()}
	case errors.Is(err, domain.ErrCodeIncorrect):
		return http.StatusUnprocessableEntity, errorResponse{Error: string(domain.VerifyCodeIncorrect), Message: err.Error()}
	case errors.Is(err, domain.ErrCodeExpired):
		return http.StatusUnprocessableEntity, errorResponse{Error: string(domain.VerifyCodeExpired), Message: err.Error()}
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		return http.StatusUnprocessableEntity, errorResponse{Error: string(domain.VerifyCodeAlreadyUsed), Message: err.Error()}
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorResponse{Error: "too_many_attempts", Message: "Too many failed attempts, try again later"}
	case errors.Is(err, domain.ErrApprovalFailure):
		return http.StatusBadGateway, errorResponse{Error: "approval_failed", Message: "The approval could not be completed, please retry"}
	case errors.Is(err, security.ErrExpiredToken):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "Session expired"}
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrWrongTokenType):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "Invalid or missing token"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal", Message: "Internal error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}
