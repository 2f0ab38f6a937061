// Package response writes the JSON envelope every API route answers with.
package response

import (
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	domainerrors "libraloans/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the body of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Write encodes env with the given status.
func Write(w http.ResponseWriter, status int, env Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil && logger != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// JSON writes data with the given status; success is derived from the status.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	Write(w, status, Envelope{Success: status < http.StatusBadRequest, Data: data}, logger)
}

func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

func Created(w http.ResponseWriter, data any, message string, logger *slog.Logger) {
	Write(w, http.StatusCreated, Envelope{Success: true, Data: data, Message: message}, logger)
}

// Error writes a failure envelope carrying message.
func Error(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	Write(w, status, Envelope{Success: false, Message: message}, logger)
}

func BadRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusBadRequest, message, logger)
}

func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, message, logger)
}

func InternalError(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusInternalServerError, "internal server error", logger)
}

// HandleError maps err to a status with the kind's default mapping.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	HandleErrorWithStatus(w, err, 0, logger)
}

// HandleErrorWithStatus maps err like HandleError, except that client errors
// are answered with clientStatus when it is non-zero. Server-side failures are
// logged and answered with a generic message so driver detail never leaks.
func HandleErrorWithStatus(w http.ResponseWriter, err error, clientStatus int, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if domainerrors.IsClient(err) && domainerrors.As(err, &domainErr) {
		status := domainErr.Code.HTTPStatus()
		if clientStatus != 0 {
			status = clientStatus
		}
		Write(w, status, Envelope{Success: false, Message: domainErr.Message, Details: domainErr.Details}, logger)
		return
	}

	if logger != nil {
		logger.Error("request failed", "error", err, "code", domainerrors.CodeOf(err))
	}
	InternalError(w, logger)
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
