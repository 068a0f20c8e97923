package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/utils"
)

// ExportHandler serves the bulk submissions export surface.
type ExportHandler struct {
	exports service.ExportService
	logger  zerolog.Logger
}

func NewExportHandler(exports service.ExportService, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		logger:  logger.With().Str("component", "export_handler").Logger(),
	}
}

// Prepare enqueues an archive build unless a fresh one already exists.
func (h *ExportHandler) Prepare(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	resp, err := h.exports.Prepare(c.UserContext(), blockID, username(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "export requested", resp)
}

// Status reports whether the requester's archive is ready for download.
func (h *ExportHandler) Status(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	resp, err := h.exports.Status(c.UserContext(), blockID, username(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "export status retrieved", resp)
}

// DownloadArchive streams the requester's finished zip archive.
func (h *ExportHandler) DownloadArchive(c *fiber.Ctx) error {
	blockID := c.Params("block_id")

	download, err := h.exports.DownloadArchive(c.UserContext(), blockID, username(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return streamDownload(c, download)
}
