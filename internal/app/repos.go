package app

import (
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
)

type Repos struct {
	IngestionJob     repos.IngestionJobRepo
	AnalyticalRecord repos.AnalyticalRecordRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		IngestionJob:     repos.NewIngestionJobRepo(db, log),
		AnalyticalRecord: repos.NewAnalyticalRecordRepo(db, log),
	}
}
