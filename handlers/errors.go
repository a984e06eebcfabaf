package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/utils/response"
)

// RespondError maps service errors onto the response envelope.
func RespondError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		return response.ValidationFailed(c, validationErr.Field, validationErr.Error())
	case errors.As(err, &notFoundErr):
		return response.NotFound(c, notFoundErr.Error())
	case errors.Is(err, services.ErrOperationInProgress):
		return response.Conflict(c, err.Error())
	case services.IsExternalStore(err):
		return response.ServiceUnavailable(c, "Backing store unavailable")
	default:
		return response.InternalServerError(c, "")
	}
}
