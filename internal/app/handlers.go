package app

import (
	"github.com/prodpulse/prodpulse-backend/internal/http/handlers"
	"github.com/prodpulse/prodpulse-backend/internal/http/middleware"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
)

type Handlers struct {
	Health    *handlers.HealthHandler
	Job       *handlers.JobHandler
	Dashboard *handlers.DashboardHandler
}

type Middleware struct {
	Principal *middleware.PrincipalMiddleware
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    handlers.NewHealthHandler(),
		Job:       handlers.NewJobHandler(serviceset.Ingestion),
		Dashboard: handlers.NewDashboardHandler(serviceset.Dashboard),
	}
}

func wireMiddleware(log *logger.Logger) Middleware {
	return Middleware{
		Principal: middleware.NewPrincipalMiddleware(log),
	}
}
