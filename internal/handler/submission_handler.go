package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/utils"
)

// SubmissionHandler serves the student-facing submission lifecycle: upload,
// finalize and the two student downloads.
type SubmissionHandler struct {
	lifecycle service.LifecycleService
	logger    zerolog.Logger
}

func NewSubmissionHandler(lifecycle service.LifecycleService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Upload stores a new draft submission for the calling student.
func (h *SubmissionHandler) Upload(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := studentID(c)
	if sid == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing student identity")
	}

	file, err := c.FormFile("assignment")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "missing assignment file")
	}

	state, err := h.lifecycle.Upload(c.UserContext(), blockID, sid, file)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "file uploaded", state)
}

// Finalize marks the student's latest submission as submitted for grading.
func (h *SubmissionHandler) Finalize(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := studentID(c)
	if sid == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing student identity")
	}

	state, err := h.lifecycle.Finalize(c.UserContext(), blockID, sid)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission finalized", state)
}

// DownloadOwn streams the calling student's uploaded file back to them.
func (h *SubmissionHandler) DownloadOwn(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := studentID(c)
	if sid == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing student identity")
	}

	download, err := h.lifecycle.DownloadSubmission(c.UserContext(), blockID, sid, false)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}

// DownloadOwnAnnotated streams the grader's annotated file to the student.
func (h *SubmissionHandler) DownloadOwnAnnotated(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := studentID(c)
	if sid == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing student identity")
	}

	download, err := h.lifecycle.DownloadAnnotated(c.UserContext(), blockID, sid, false)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}
