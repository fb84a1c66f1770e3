package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/middleware"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/validator"
)

// StatusClientClosedRequest is returned when the caller went away mid-query
const StatusClientClosedRequest = 499

// ErrorBody is the error part of an error response
type ErrorBody struct {
	Code    string                     `json:"code"`
	Message string                     `json:"message"`
	Details map[string]string          `json:"details,omitempty"`
	Errors  validator.ValidationErrors `json:"errors,omitempty"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewErrorHandler maps handler errors onto JSON responses. Server side
// failures are logged and reported to Sentry.
func NewErrorHandler(logger *zap.Logger, sentryEnabled bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classify(err)
		if status >= fiber.StatusInternalServerError {
			middleware.RequestLogger(c, logger).Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
			if sentryEnabled {
				middleware.CaptureError(c, err)
			}
		}
		return c.Status(status).JSON(ErrorResponse{Error: body, RequestID: middleware.GetRequestID(c)})
	}
}

func classify(err error) (int, ErrorBody) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fiber.StatusBadRequest, ErrorBody{
			Code:    apperrors.CodeValidation,
			Message: "request validation failed",
			Errors:  verrs,
		}
	}

	if errors.Is(err, context.Canceled) {
		return StatusClientClosedRequest, ErrorBody{Code: "CANCELED", Message: "request canceled"}
	}

	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.StatusCode, ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperrors.CodeBadRequest
		switch fe.Code {
		case fiber.StatusNotFound:
			code = apperrors.CodeNotFound
		case fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		default:
			if fe.Code >= fiber.StatusInternalServerError {
				code = apperrors.CodeInternal
			}
		}
		return fe.Code, ErrorBody{Code: code, Message: fe.Message}
	}

	return fiber.StatusInternalServerError, ErrorBody{
		Code:    apperrors.CodeInternal,
		Message: "an unexpected error occurred",
	}
}
