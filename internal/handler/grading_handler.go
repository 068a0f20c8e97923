package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/utils"
)

// GradingHandler serves the staff grading surface: the roster, grade entry
// and removal, annotated uploads, and staff-side downloads.
type GradingHandler struct {
	grading   service.GradingService
	lifecycle service.LifecycleService
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewGradingHandler(grading service.GradingService, lifecycle service.LifecycleService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		lifecycle: lifecycle,
		validator: validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// StaffGradingData returns the full grading roster for a block.
func (h *GradingHandler) StaffGradingData(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	data, err := h.grading.StaffGradingData(c.UserContext(), blockID, actorFrom(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "grading data retrieved", data)
}

// EnterGrade records a score and comment for one student. Grade validation
// failures answer 200 with an error body so the grading UI can surface the
// message inline.
func (h *GradingHandler) EnterGrade(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	var req dto.EnterGradeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return handleServiceError(c, h.logger, err)
	}

	data, err := h.grading.EnterGrade(c.UserContext(), blockID, actorFrom(c), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrade) {
			return c.Status(fiber.StatusOK).JSON(dto.GradeErrorResponse{Error: err.Error()})
		}
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "grade entered", data)
}

// RemoveGrade clears a student's score, comment and annotated file.
func (h *GradingHandler) RemoveGrade(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	var req dto.RemoveGradeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return handleServiceError(c, h.logger, err)
	}

	data, err := h.grading.RemoveGrade(c.UserContext(), blockID, actorFrom(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "grade removed", data)
}

// AnnotateUpload attaches a grader's annotated file to one roster row.
func (h *GradingHandler) AnnotateUpload(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	moduleID, err := parseUintParam(c, "module_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("annotated")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "missing annotated file")
	}

	data, err := h.grading.AnnotateUpload(c.UserContext(), blockID, moduleID, file)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "annotated file uploaded", data)
}

// AnnotatedDownload streams the annotated file for one roster row back to
// the grader.
func (h *GradingHandler) AnnotatedDownload(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	moduleID, err := parseUintParam(c, "module_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	download, err := h.grading.AnnotatedDownload(c.UserContext(), blockID, moduleID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}

// StudentSubmissionDownload streams a named student's upload to staff.
func (h *GradingHandler) StudentSubmissionDownload(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := c.Params("student_id")

	download, err := h.lifecycle.DownloadSubmission(c.UserContext(), blockID, sid, true)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}

// StudentAnnotatedDownload streams a named student's annotated file to staff.
func (h *GradingHandler) StudentAnnotatedDownload(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := c.Params("student_id")

	download, err := h.lifecycle.DownloadAnnotated(c.UserContext(), blockID, sid, true)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}
