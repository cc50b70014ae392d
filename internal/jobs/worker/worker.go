package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
	"github.com/prodpulse/prodpulse-backend/internal/services"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

const (
	pollInterval = 1 * time.Second
	// A claim older than this is considered abandoned (worker crash) and
	// becomes claimable again.
	staleLock = 10 * time.Minute
)

// Pool runs N goroutines that each claim pending ingestion jobs and drive
// them to a terminal status. Claims use row locking, so pools in separate
// processes cooperate safely.
type Pool struct {
	db          *gorm.DB
	log         *logger.Logger
	jobRepo     repos.IngestionJobRepo
	ingestion   services.IngestionService
	concurrency int
	wg          sync.WaitGroup
}

func NewPool(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.IngestionJobRepo,
	ingestion services.IngestionService,
	concurrency int,
) *Pool {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Pool{
		db:          db,
		log:         baseLog.With("component", "IngestionWorkerPool"),
		jobRepo:     jobRepo,
		ingestion:   ingestion,
		concurrency: concurrency,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info("starting", "concurrency", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited after the Start
// context is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.jobRepo.ClaimNextPending(ctx, nil, staleLock)
			if err != nil {
				log.Warn("ClaimNextPending failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			p.process(ctx, log, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, log *logger.Logger, job *types.IngestionJob) {
	// A handler panic must not take the worker down; the job ends as error.
	defer func() {
		if r := recover(); r != nil {
			log.Error("ingestion panic", "job_id", job.ID, "panic", r)
			_, markErr := p.jobRepo.MarkTerminal(ctx, nil, job.ID, map[string]interface{}{
				"status":        types.JobStatusError,
				"error_message": fmt.Sprintf("internal error: %v", r),
			})
			if markErr != nil {
				log.Error("mark error after panic failed", "job_id", job.ID, "error", markErr)
			}
		}
	}()

	if err := p.ingestion.Process(ctx, job); err != nil {
		log.Error("Process failed", "job_id", job.ID, "error", err)
	}
}
