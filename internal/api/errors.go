package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"nosqlite/internal/engine"
	"nosqlite/internal/ledger"
	"nosqlite/internal/snapshot"
	"nosqlite/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(model, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with id %s not found", model, id),
	}
}

func UnknownFieldError(field string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_FIELD",
		Status:  fiber.StatusBadRequest,
		Message: fmt.Sprintf("Unknown field: %s", field),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  fiber.StatusUnprocessableEntity,
		Message: "Validation failed",
		Details: details,
	}
}

// toAppError maps errors from the layers below onto HTTP errors. It returns
// nil for errors that are not the client's fault.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		status := fiber.StatusBadRequest
		switch engErr.Code {
		case engine.ErrUnknownModel.Code:
			status = fiber.StatusNotFound
		case engine.ErrTransactionInProgress.Code:
			status = fiber.StatusConflict
		}
		return &AppError{Code: engErr.Code, Status: status, Message: engErr.Message}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &AppError{Code: codeForStatus(fiberErr.Code), Status: fiberErr.Code, Message: fiberErr.Message}
	}

	switch {
	case errors.Is(err, store.ErrUniqueViolation):
		return NewAppError("CONFLICT", fiber.StatusConflict, "A document with this id already exists")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, snapshot.ErrNotFound):
		return NewAppError("NOT_FOUND", fiber.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return NewAppError("INSUFFICIENT_FUNDS", fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameWallet), errors.Is(err, ledger.ErrUnknownKind):
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "INVALID_PAYLOAD"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "ERROR"
	}
}

// ErrorHandler renders every error as {"error": {...}}. Unexpected errors
// are logged and reported as INTERNAL_ERROR.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := toAppError(err); appErr != nil {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		log.Error("request failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
		})
	}
}
