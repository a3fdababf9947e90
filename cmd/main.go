package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/db"
	"github.com/normgate/normgate-backend/internal/handlers"
	"github.com/normgate/normgate-backend/internal/middleware"
	"github.com/normgate/normgate-backend/internal/observability"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/platform/cache"
	"github.com/normgate/normgate-backend/internal/platform/mailer"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/server"
	"github.com/normgate/normgate-backend/internal/services"
	"github.com/normgate/normgate-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	policyFile := utils.GetEnv("ACCESS_POLICY_FILE", "", log)

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "normgate-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(ctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Access policy
	policy := access.NewPolicy()
	if err := policy.LoadOverlay(policyFile); err != nil {
		log.Error("Could not load access policy overlay", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	requirementRepo := repos.NewRequirementRepo(thePG, log)
	releaseRepo := repos.NewReleaseRepo(thePG, log)
	snapshotRepo := repos.NewSnapshotRepo(thePG, log)
	sessionRepo := repos.NewAlignmentSessionRepo(thePG, log)
	reviewerRepo := repos.NewAlignmentReviewerRepo(thePG, log)
	reviewRepo := repos.NewRequirementReviewRepo(thePG, log)

	// Cache (optional)
	dashboardCache := cache.NewFromEnv(log)

	// Notifier: mail-backed when the mailer is configured, log-only otherwise.
	var notifier services.ReviewNotifier
	mailClient, err := mailer.New(log, mailer.ConfigFromEnv(log))
	if err != nil {
		log.Warn("Mailer not configured, review notifications go to the log only", "error", err)
		notifier = services.NewLogNotifier(log)
	} else {
		notifier = services.NewMailNotifier(log, mailClient)
	}

	// Services
	log.Info("Setting up Services from main...")
	releaseService := services.NewReleaseService(thePG, log, policy, releaseRepo, snapshotRepo, requirementRepo, sessionRepo)
	alignmentService := services.NewAlignmentService(thePG, log, policy, dashboardCache, releaseRepo, snapshotRepo, sessionRepo, reviewerRepo, reviewRepo, userRepo, notifier)
	requirementService := services.NewRequirementService(thePG, log, policy, requirementRepo, releaseService)
	userService := services.NewUserService(thePG, log, policy, userRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	releaseHandler := handlers.NewReleaseHandler(releaseService)
	alignmentHandler := handlers.NewAlignmentHandler(alignmentService)
	requirementHandler := handlers.NewRequirementHandler(requirementService, releaseService)
	userHandler := handlers.NewUserHandler(userService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	var allowOrigins []string
	if raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowOrigins = append(allowOrigins, origin)
			}
		}
	}
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:     authMiddleware,
		ReleaseHandler:     releaseHandler,
		AlignmentHandler:   alignmentHandler,
		RequirementHandler: requirementHandler,
		UserHandler:        userHandler,
		AllowOrigins:       allowOrigins,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
