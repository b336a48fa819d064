package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"

	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

const (
	apiVersion      = "2.0"
	errorDomain     = "real-karma-league"
	internalMessage = "internal server error"
)

// envelope is the response body of every route: data on success, error
// otherwise.
type envelope struct {
	APIVersion string     `json:"apiVersion"`
	Data       any        `json:"data,omitempty"`
	Error      *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Errors  []errorItem `json:"errors,omitempty"`
}

type errorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type mappedError struct {
	HTTPStatus int
	Reason     string
	Status     string
}

// errorTable is matched top to bottom. ErrAlreadyExecuted wraps
// ErrFailedPrecondition, so it comes first.
var errorTable = []struct {
	target error
	mapped mappedError
}{
	{usecase.ErrInvalidInput, mappedError{http.StatusBadRequest, "invalidInput", "INVALID_ARGUMENT"}},
	{usecase.ErrNotFound, mappedError{http.StatusNotFound, "notFound", "NOT_FOUND"}},
	{usecase.ErrUnauthorized, mappedError{http.StatusUnauthorized, "unauthorized", "UNAUTHENTICATED"}},
	{usecase.ErrPermissionDenied, mappedError{http.StatusForbidden, "forbidden", "PERMISSION_DENIED"}},
	{usecase.ErrAlreadyExecuted, mappedError{http.StatusPreconditionFailed, "alreadyExecuted", "FAILED_PRECONDITION"}},
	{usecase.ErrFailedPrecondition, mappedError{http.StatusPreconditionFailed, "failedPrecondition", "FAILED_PRECONDITION"}},
	{usecase.ErrAlreadyExists, mappedError{http.StatusConflict, "alreadyExists", "ALREADY_EXISTS"}},
	{usecase.ErrDependencyUnavailable, mappedError{http.StatusServiceUnavailable, "dependencyUnavailable", "UNAVAILABLE"}},
}

var internalError = mappedError{http.StatusInternalServerError, "internalError", "INTERNAL"}

func mapError(err error) mappedError {
	for _, entry := range errorTable {
		if errors.Is(err, entry.target) {
			return entry.mapped
		}
	}
	return internalError
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(payload); err != nil {
		logging.Default().WarnContext(ctx, "encode response failed", "status", status, "error", err)
	}
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data any) {
	writeJSON(ctx, w, status, envelope{APIVersion: apiVersion, Data: data})
}

// writeError maps err onto the error envelope. Messages of unmapped errors are
// replaced so internals do not leak to callers.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	mapped := mapError(err)
	message := internalMessage
	if mapped != internalError && err != nil {
		message = err.Error()
	}

	writeJSON(ctx, w, mapped.HTTPStatus, envelope{
		APIVersion: apiVersion,
		Error: &errorBody{
			Code:    mapped.HTTPStatus,
			Message: message,
			Status:  mapped.Status,
			Errors:  []errorItem{{Domain: errorDomain, Reason: mapped.Reason, Message: message}},
		},
	})
}
