package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/prodpulse/prodpulse-backend/internal/http/handlers"
	"github.com/prodpulse/prodpulse-backend/internal/http/middleware"
)

type RouterConfig struct {
	ServiceName         string
	AllowOrigins        []string
	HealthHandler       *handlers.HealthHandler
	JobHandler          *handlers.JobHandler
	DashboardHandler    *handlers.DashboardHandler
	PrincipalMiddleware *middleware.PrincipalMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Public
	router.GET("/healthz", cfg.HealthHandler.HealthCheck)

	// Everything under /api carries a principal
	api := router.Group("/api")
	api.Use(cfg.PrincipalMiddleware.RequirePrincipal())
	{
		api.POST("/jobs", cfg.JobHandler.SubmitJob)
		api.GET("/jobs", cfg.JobHandler.ListJobs)
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		api.DELETE("/jobs/:id", cfg.JobHandler.DeleteJob)
		api.GET("/jobs/:id/preview", cfg.JobHandler.PreviewJob)
		api.GET("/jobs/:id/validate", cfg.JobHandler.ValidateJob)
		api.GET("/jobs/:id/schema", cfg.JobHandler.JobSchema)

		api.GET("/dashboard", cfg.DashboardHandler.GetDashboard)
		api.GET("/dashboard/decomposition", cfg.DashboardHandler.GetDecomposition)
		api.GET("/dashboard/comparison", cfg.DashboardHandler.GetComparison)
		api.GET("/dashboard/failure-trend", cfg.DashboardHandler.GetFailureTrend)
		api.GET("/dashboard/drilldown", cfg.DashboardHandler.GetDrilldown)
	}

	return router
}
