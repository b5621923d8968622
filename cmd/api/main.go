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
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/config"
	"github.com/lumen-edu/lumen-quiz-api/internal/database"
	"github.com/lumen-edu/lumen-quiz-api/internal/handler"
	"github.com/lumen-edu/lumen-quiz-api/internal/middleware"
	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/observability"
	"github.com/lumen-edu/lumen-quiz-api/internal/repository"
	"github.com/lumen-edu/lumen-quiz-api/internal/router"
	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/pkg/ai"
	"github.com/lumen-edu/lumen-quiz-api/pkg/blobstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.QuizAttempt{}, &models.Enrollment{}, &models.ActivityLog{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	store, err := blobstore.New(blobstore.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create blob store: %v", err)
	}

	var chatClient *ai.ChatClient
	if cfg.OpenAIAPIKey != "" {
		chatClient, err = ai.NewChatClient(ai.ChatConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.TutorModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create tutor client: %v", err)
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	attemptRepo := repository.NewAttemptRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	definitionService := service.NewDefinitionService(store, redisClient, cfg.DefinitionCacheTTL, logger)
	activityRecorder := service.NewActivityService(activityRepo, natsConn, cfg.ActivitySubject, logger)
	attemptService := service.NewAttemptService(attemptRepo, enrollmentRepo, definitionService, activityRecorder, service.AttemptPolicy{
		EnforceTimeLimit: cfg.EnforceTimeLimit,
		SubmitGrace:      cfg.SubmitGracePeriod,
	}, logger)
	tutorService := service.NewTutorService(chatClient, validate, logger)

	attemptHandler := handler.NewAttemptHandler(attemptService, validate, logger)
	quizHandler := handler.NewQuizHandler(definitionService, logger)
	tutorHandler := handler.NewTutorHandler(tutorService, validate, logger)
	activityHandler := handler.NewActivityHandler(activityRecorder, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AttemptHandler:  attemptHandler,
		QuizHandler:     quizHandler,
		TutorHandler:    tutorHandler,
		ActivityHandler: activityHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		AutosaveLimiter: middleware.RateLimit("autosave", cfg.AutosaveRateLimit, cfg.AutosaveRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Msg("quiz api listening")

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
