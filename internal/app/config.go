package app

import (
	"strings"
	"time"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/utils"
)

type Config struct {
	Port              string
	UploadDir         string
	WorkerConcurrency int
	CacheTTL          time.Duration
	AllowOrigins      []string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	uploadDir := utils.GetEnv("UPLOAD_DIR", "./uploads", log)
	workerConcurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log)
	cacheTTLSeconds := utils.GetEnvAsInt("CACHE_TTL_SECONDS", 300, log)
	rawOrigins := utils.GetEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173", log)

	origins := []string{}
	for _, o := range strings.Split(rawOrigins, ",") {
		if t := strings.TrimSpace(o); t != "" {
			origins = append(origins, t)
		}
	}

	return Config{
		Port:              port,
		UploadDir:         uploadDir,
		WorkerConcurrency: workerConcurrency,
		CacheTTL:          time.Duration(cacheTTLSeconds) * time.Second,
		AllowOrigins:      origins,
	}
}
