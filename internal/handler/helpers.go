package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/utils"
)

func localString(c *fiber.Ctx, key string) string {
	if value := c.Locals(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

func username(c *fiber.Ctx) string {
	return localString(c, "username")
}

// studentID returns the caller's anonymized per-course identifier. A missing
// identity on a student route is a host misconfiguration, surfaced as 401.
func studentID(c *fiber.Ctx) string {
	return localString(c, "student_id")
}

func actorFrom(c *fiber.Ctx) service.Actor {
	return service.Actor{
		Username: username(c),
		Role:     localString(c, "user_role"),
	}
}

func isStaffViewer(c *fiber.Ctx) bool {
	role := localString(c, "user_role")
	return role == service.RoleStaff || role == service.RoleInstructor
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := c.Params(key)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

// handleServiceError maps service failures onto the response envelope. Grade
// validation is deliberately absent: it is answered with an error JSON body,
// not an HTTP error, and handled at the call site.
func handleServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var tooLarge service.FileTooLargeError
	var blobMissing service.BlobNotFoundError
	var validationErrors validator.ValidationErrors

	switch {
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrNotAllowed):
		return utils.SendError(c, fiber.StatusForbidden, "action not allowed")
	case errors.Is(err, service.ErrPointsNotInteger),
		errors.Is(err, service.ErrPointsNegative),
		errors.Is(err, service.ErrWeightNotDecimal),
		errors.Is(err, service.ErrWeightNegative):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, tooLarge.Error())
	case errors.As(err, &blobMissing):
		return utils.SendError(c, fiber.StatusNotFound, blobMissing.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func streamDownload(c *fiber.Ctx, download service.Download) error {
	if download.Mimetype != "" {
		c.Set(fiber.HeaderContentType, download.Mimetype)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+download.Filename+`"`)
	return c.SendStream(download.Content)
}
