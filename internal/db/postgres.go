package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/types"
	"github.com/prodpulse/prodpulse-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPostgresService opens the relational store. DB_DRIVER=sqlite switches to
// a local file database for development; everything else goes through
// Postgres.
func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "postgres", log))
	if driver == "sqlite" {
		path := utils.GetEnv("SQLITE_PATH", "prodpulse.db", log)
		log.Info("Connecting to sqlite...", "path", path)
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("Failed to open sqlite database: %w", err)
		}
		return &PostgresService{db: db, log: serviceLog}, nil
	}

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "prodpulse", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.IngestionJob{},
		&types.AnalyticalRecord{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.db.Dialector.Name() == "postgres" {
		// Records are deleted before their job in application code as well;
		// the constraint is the backstop.
		if err := s.db.Exec(`
			ALTER TABLE "analytical_record"
			DROP CONSTRAINT IF EXISTS "fk_analytical_record_job_id";
		`).Error; err != nil {
			return fmt.Errorf("Failed to reset fk_analytical_record_job_id: %w", err)
		}
		if err := s.db.Exec(`
			ALTER TABLE "analytical_record"
			ADD CONSTRAINT "fk_analytical_record_job_id"
			FOREIGN KEY ("job_id")
			REFERENCES "ingestion_job"("id")
			ON DELETE CASCADE
		`).Error; err != nil {
			return fmt.Errorf("Failed to add fk_analytical_record_job_id: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
