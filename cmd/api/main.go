package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/open-craft/sga-api/internal/config"
	"github.com/open-craft/sga-api/internal/database"
	"github.com/open-craft/sga-api/internal/handler"
	"github.com/open-craft/sga-api/internal/middleware"
	"github.com/open-craft/sga-api/internal/models"
	"github.com/open-craft/sga-api/internal/repository"
	"github.com/open-craft/sga-api/internal/router"
	"github.com/open-craft/sga-api/internal/service"
	"github.com/open-craft/sga-api/internal/storage"
	"github.com/open-craft/sga-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Block{}, &models.Student{}, &models.Submission{}, &models.Score{}, &models.GradingState{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	store, err := storage.NewFSStore(cfg.StorageRoot, logger)
	if err != nil {
		log.Fatalf("failed to open blob store: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	blockRepo := repository.NewBlockRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	stateRepo := repository.NewGradingStateRepository(db)

	lifecycleService := service.NewLifecycleService(blockRepo, submissionRepo, scoreRepo, stateRepo, store, cfg.MaxFileSize, cfg.SupportEmail, logger)
	gradingService := service.NewGradingService(blockRepo, submissionRepo, scoreRepo, stateRepo, studentRepo, store, redisClient, cfg.RosterCacheTTL, cfg.MaxFileSize, cfg.SupportEmail, logger)
	exportService := service.NewExportService(blockRepo, submissionRepo, studentRepo, store, natsConn, cfg.ExportSubject, cfg.SupportEmail, logger)

	exportWorker := worker.NewExportWorker(natsConn, cfg.ExportSubject, exportService, logger)
	if err := exportWorker.Start(); err != nil {
		log.Fatalf("failed to start export worker: %v", err)
	}
	defer exportWorker.Stop()

	blockHandler := handler.NewBlockHandler(lifecycleService, logger)
	submissionHandler := handler.NewSubmissionHandler(lifecycleService, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, lifecycleService, validate, logger)
	exportHandler := handler.NewExportHandler(exportService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxFileSize) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		BlockHandler:      blockHandler,
		SubmissionHandler: submissionHandler,
		GradingHandler:    gradingHandler,
		ExportHandler:     exportHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		UploadLimiter:     middleware.RateLimit("uploads", 30, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
