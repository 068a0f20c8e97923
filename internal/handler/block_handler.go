package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/dto"
	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/utils"
)

// BlockHandler serves per-block student state and staff settings.
type BlockHandler struct {
	lifecycle service.LifecycleService
	logger    zerolog.Logger
}

func NewBlockHandler(lifecycle service.LifecycleService, logger zerolog.Logger) *BlockHandler {
	return &BlockHandler{
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "block_handler").Logger(),
	}
}

// GetStudentState returns the rendering payload for the calling student,
// including the answer-visibility decision and, for staff, debug fields.
func (h *BlockHandler) GetStudentState(c *fiber.Ctx) error {
	blockID := c.Params("block_id")
	sid := studentID(c)
	if sid == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing student identity")
	}

	state, err := h.lifecycle.StudentState(c.UserContext(), blockID, sid, isStaffViewer(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "student state retrieved", state)
}

// SaveSettings validates and persists studio-editable block settings.
func (h *BlockHandler) SaveSettings(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	var req dto.SaveSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.lifecycle.SaveSettings(c.UserContext(), blockID, req); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "settings saved", nil)
}
