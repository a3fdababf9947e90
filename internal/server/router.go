package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/normgate/normgate-backend/internal/handlers"
	"github.com/normgate/normgate-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware     *middleware.AuthMiddleware
	ReleaseHandler     *handlers.ReleaseHandler
	AlignmentHandler   *handlers.AlignmentHandler
	RequirementHandler *handlers.RequirementHandler
	UserHandler        *handlers.UserHandler
	AllowOrigins       []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("normgate-backend"))

	// Cors
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Releases
	api.POST("/releases", cfg.ReleaseHandler.Create)
	api.GET("/releases", cfg.ReleaseHandler.List)
	api.GET("/releases/stats", cfg.ReleaseHandler.Stats)
	api.GET("/releases/compare", cfg.ReleaseHandler.Compare)
	api.GET("/releases/export", cfg.ReleaseHandler.Export)
	api.GET("/releases/version/:version", cfg.ReleaseHandler.GetByVersion)
	api.GET("/releases/:id", cfg.ReleaseHandler.Get)
	api.DELETE("/releases/:id", cfg.ReleaseHandler.Delete)
	api.POST("/releases/:id/archive", cfg.ReleaseHandler.Archive)
	api.POST("/releases/:id/alignment", cfg.AlignmentHandler.Start)

	// Alignment sessions
	api.GET("/alignment/:id/dashboard", cfg.AlignmentHandler.Dashboard)
	api.POST("/alignment/:id/cancel", cfg.AlignmentHandler.Cancel)
	api.POST("/alignment/:id/finalize", cfg.AlignmentHandler.Finalize)
	api.POST("/alignment/:id/reviews", cfg.AlignmentHandler.SubmitReview)
	api.POST("/alignment/:id/complete", cfg.AlignmentHandler.CompleteReview)
	api.POST("/alignment/:id/remind", cfg.AlignmentHandler.Remind)

	// Requirements
	api.POST("/requirements", cfg.RequirementHandler.Create)
	api.GET("/requirements", cfg.RequirementHandler.List)
	api.GET("/requirements/:id", cfg.RequirementHandler.Get)
	api.PUT("/requirements/:id", cfg.RequirementHandler.Update)
	api.DELETE("/requirements/:id", cfg.RequirementHandler.Delete)
	api.GET("/requirements/:id/can-delete", cfg.RequirementHandler.CanDelete)

	// Users
	api.POST("/users", cfg.UserHandler.Provision)
	api.GET("/users/reviewers", cfg.UserHandler.ListReviewers)
	api.GET("/users/:id", cfg.UserHandler.Get)

	return router
}
