package app

import (
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/jobs/worker"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/services"
)

type Services struct {
	Ingestion services.IngestionService
	Dashboard services.DashboardService
	Workers   *worker.Pool
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, c cache.Cache) Services {
	log.Info("Wiring services...")
	ingestion := services.NewIngestionService(db, log, reposet.IngestionJob, reposet.AnalyticalRecord, c, cfg.UploadDir)
	dashboard := services.NewDashboardService(db, log, reposet.AnalyticalRecord, c, cfg.CacheTTL)
	pool := worker.NewPool(db, log, reposet.IngestionJob, ingestion, cfg.WorkerConcurrency)
	return Services{
		Ingestion: ingestion,
		Dashboard: dashboard,
		Workers:   pool,
	}
}
