// Package httpapi is the versioned `/v0` HTTP/JSON surface: a thin
// go-chi collaborator in front of the core services. It owns request
// parsing, X-Auth-Token authentication, per-user rate limiting, and the
// error envelope; every mutation is delegated straight to the
// deposit/withdrawal/invoice/payment service it wraps.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"lnledger/internal/auth"
	"lnledger/internal/invoice"
	"lnledger/internal/ledger"
	"lnledger/internal/limits"
	"lnledger/internal/payment"
	"lnledger/internal/store"
	"lnledger/internal/withdrawal"
	"lnledger/pkg/logger"

	"go.uber.org/zap"
)

// apiError is one entry of the `{error: {...}}` envelope.
type apiError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// writeError renders err as the error envelope, picking the SCREAMING_SNAKE_CASE
// status tag and HTTP status code the error maps to.
func writeError(w http.ResponseWriter, err error) {
	status, tag, description := classify(err)
	writeJSON(w, status, errorEnvelope{Error: apiError{
		Code:        status,
		Description: description,
		Reason:      err.Error(),
		Status:      tag,
	}})
}

// classify maps a service/store error to (http status, tag, human description).
// Unmapped errors are infrastructure failures: 500 INTERNAL and logged, per
// the "never let a transient DB conflict reach the client verbatim" rule —
// RetryLoop has already exhausted its attempts by the time one reaches here.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "no such resource"
	case errors.Is(err, ledger.ErrInvalidLimit):
		return http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 250"
	case errors.Is(err, ledger.ErrInvalidOffset):
		return http.StatusBadRequest, "INVALID_OFFSET", "offset must be >= 0"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusBadRequest, "INSUFFICIENT_BALANCE", "balance too low for this operation"
	case errors.Is(err, limits.ErrAmountTooLow):
		return http.StatusBadRequest, "AMOUNT_TOO_LOW", "amount below the configured minimum"
	case errors.Is(err, limits.ErrAmountTooHigh):
		return http.StatusBadRequest, "AMOUNT_TOO_HIGH", "amount above the configured maximum"
	case errors.Is(err, limits.ErrDailyLimitExceeded):
		return http.StatusBadRequest, "DAILY_LIMIT_EXCEEDED", "daily limit exceeded"
	case errors.Is(err, payment.ErrAmountSpecifiedTwice):
		return http.StatusBadRequest, "AMOUNT_SPECIFIED_TWICE", "amount given by both invoice and request"
	case errors.Is(err, payment.ErrAmountNotSpecified):
		return http.StatusBadRequest, "AMOUNT_NOT_SPECIFIED", "invoice carries no amount and none was given"
	case errors.Is(err, payment.ErrNotReady):
		return http.StatusConflict, "PAYMENT_NOT_READY", "payment has not completed a successful prepare step"
	case errors.Is(err, payment.ErrManualInterventionRequired):
		return http.StatusConflict, "MANUAL_INTERVENTION_REQUIRED", "payment outcome unknown, awaiting operator review"
	case errors.Is(err, auth.ErrTokenDisabled):
		return http.StatusUnauthorized, "TOKEN_DISABLED", "auth token disabled"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED", "token lacks required permission"
	case errors.Is(err, invoice.ErrInvalidAmount), errors.Is(err, withdrawal.ErrInvalidAmount):
		return http.StatusBadRequest, "AMOUNT_TOO_LOW", err.Error()
	case errors.Is(err, invoice.ErrMemoTooLong):
		return http.StatusBadRequest, "MEMO_TOO_LONG", err.Error()
	case errors.Is(err, invoice.ErrInvalidExpiry):
		return http.StatusBadRequest, "INVALID_EXPIRY", err.Error()
	case errors.Is(err, withdrawal.ErrInvalidAddress):
		return http.StatusBadRequest, "INVALID_ADDRESS", err.Error()
	case errors.Is(err, errInvalidAmount), errors.Is(err, errInvalidMemo), errors.Is(err, errInvalidExpiry), errors.Is(err, errInvalidAddress), errors.Is(err, errInvalidInvoice):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	default:
		logger.Error("unclassified httpapi error", zap.Error(err))
		return http.StatusInternalServerError, "INTERNAL", "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response body", zap.Error(err))
	}
}
