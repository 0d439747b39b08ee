package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, generic.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, generic.ErrDateConflict):
		return http.StatusConflict, "date_conflict"
	case errors.Is(err, generic.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, generic.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, generic.ErrLockNotAcquired):
		return http.StatusServiceUnavailable, "busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeDomainError writes err with its mapped status. Server errors are
// logged with their cause and answered with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Details: errorDetails(err)})
}

// errorDetails exposes the structured fields of domain errors.
func errorDetails(err error) map[string]any {
	var (
		insufficient *timeoff.InsufficientBalanceError
		conflict     *timeoff.DateConflictError
		validation   *timeoff.ValidationError
		notFound     *timeoff.NotFoundError
	)
	switch {
	case errors.As(err, &insufficient):
		return map[string]any{
			"requested": insufficient.Requested.String(),
			"remaining": insufficient.Remaining.String(),
			"shortfall": insufficient.Shortfall().String(),
		}
	case errors.As(err, &conflict):
		ids := make([]string, len(conflict.Conflicts))
		for i, id := range conflict.Conflicts {
			ids[i] = string(id)
		}
		return map[string]any{"conflicting_leave_ids": ids}
	case errors.As(err, &validation):
		return map[string]any{"field": validation.Field}
	case errors.As(err, &notFound):
		return map[string]any{"entity": notFound.Entity, "id": notFound.ID}
	}
	return nil
}

// writeBadRequest reports malformed input, expanding validator errors
// into one message per field.
func writeBadRequest(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "invalid request", Code: "validation_failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		resp.Details = map[string]any{"fields": fields}
	} else if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
