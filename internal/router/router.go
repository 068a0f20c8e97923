package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/open-craft/sga-api/internal/config"
	"github.com/open-craft/sga-api/internal/handler"
	"github.com/open-craft/sga-api/internal/middleware"
	"github.com/open-craft/sga-api/internal/observability"
	"github.com/open-craft/sga-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BlockHandler      *handler.BlockHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	ExportHandler     *handler.ExportHandler
	JWTMiddleware     fiber.Handler
	UploadLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	uploadLimiter := deps.UploadLimiter
	if uploadLimiter == nil {
		uploadLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	blocks := api.Group("/blocks/:block_id", jwtMiddleware)

	// Student surface
	blocks.Get("/state", deps.BlockHandler.GetStudentState)
	blocks.Post("/submission", uploadLimiter, deps.SubmissionHandler.Upload)
	blocks.Post("/submission/finalize", deps.SubmissionHandler.Finalize)
	blocks.Get("/submission/file", deps.SubmissionHandler.DownloadOwn)
	blocks.Get("/submission/annotated", deps.SubmissionHandler.DownloadOwnAnnotated)

	// Staff surface
	staff := blocks.Group("/staff", middleware.RequireRole(service.RoleStaff, service.RoleInstructor))
	staff.Put("/settings", deps.BlockHandler.SaveSettings)
	staff.Get("/grading", deps.GradingHandler.StaffGradingData)
	staff.Post("/grade", deps.GradingHandler.EnterGrade)
	staff.Post("/grade/remove", deps.GradingHandler.RemoveGrade)
	staff.Post("/annotated/:module_id", uploadLimiter, deps.GradingHandler.AnnotateUpload)
	staff.Get("/annotated/:module_id", deps.GradingHandler.AnnotatedDownload)
	staff.Get("/students/:student_id/file", deps.GradingHandler.StudentSubmissionDownload)
	staff.Get("/students/:student_id/annotated", deps.GradingHandler.StudentAnnotatedDownload)
	staff.Post("/export", deps.ExportHandler.Prepare)
	staff.Get("/export/status", deps.ExportHandler.Status)
	staff.Get("/export/download", deps.ExportHandler.DownloadArchive)
}
