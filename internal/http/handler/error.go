package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"opledger/internal/http/middleware"
	"opledger/internal/ledger"
	"opledger/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "TERMINAL_STATE")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError maps service and ledger errors onto the error envelope.
// Only sentinel messages reach the client.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "operation not found")
	case errors.Is(err, service.ErrNotArchived):
		return writeError(c, fiber.StatusNotFound, "NOT_ARCHIVED", "operation has not been archived")
	case errors.Is(err, ledger.ErrTerminal):
		return writeError(c, fiber.StatusConflict, "TERMINAL_STATE", "operation is already completed")
	case errors.Is(err, service.ErrConflict):
		return writeError(c, fiber.StatusConflict, "CONFLICT", "operation was modified concurrently")
	case errors.Is(err, service.ErrNotTerminal):
		return writeError(c, fiber.StatusConflict, "NOT_TERMINAL", "operation is still in progress")
	case errors.Is(err, service.ErrArchiveDisabled):
		return writeError(c, fiber.StatusServiceUnavailable, "ARCHIVE_DISABLED", "archive storage is not configured")
	case errors.Is(err, service.ErrInvalidStatus):
		return writeError(c, fiber.StatusBadRequest, "INVALID_STATUS", "invalid status")
	}

	for _, v := range []error{
		ledger.ErrTypeRequired,
		ledger.ErrOperationIDNeeded,
		ledger.ErrInvalidMaxRetries,
		ledger.ErrNegativeDelay,
	} {
		if errors.Is(err, v) {
			return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", v.Error())
		}
	}

	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
