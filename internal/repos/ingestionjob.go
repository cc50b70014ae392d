package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

type IngestionJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.IngestionJob) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IngestionJob, error)
	GetForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*types.IngestionJob, error)
	List(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, pageSize int, search string) ([]*types.IngestionJob, int64, error)
	// MarkTerminal moves a pending job to ready or error. It reports false
	// when the job was already terminal; terminal statuses are one-shot.
	MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error)
	// ClaimNextPending picks the oldest unclaimed pending job, stamping
	// locked_at so concurrent workers skip it. Returns nil when idle.
	ClaimNextPending(ctx context.Context, tx *gorm.DB, staleLock time.Duration) (*types.IngestionJob, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type ingestionJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestionJobRepo(db *gorm.DB, baseLog *logger.Logger) IngestionJobRepo {
	return &ingestionJobRepo{
		db:  db,
		log: baseLog.With("repo", "IngestionJobRepo"),
	}
}

func (r *ingestionJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.IngestionJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(job).Error
}

func (r *ingestionJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IngestionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.IngestionJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *ingestionJobRepo) GetForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*types.IngestionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var job types.IngestionJob
	err := transaction.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *ingestionJobRepo) List(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, pageSize int, search string) ([]*types.IngestionJob, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	q := transaction.WithContext(ctx).Model(&types.IngestionJob{}).
		Where("owner_user_id = ?", ownerUserID)
	if s := strings.TrimSpace(search); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*types.IngestionJob
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *ingestionJobRepo) MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["locked_at"] = nil
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.IngestionJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ingestionJobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB, staleLock time.Duration) (*types.IngestionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleLock)

	var claimed *types.IngestionJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.IngestionJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (locked_at IS NULL OR locked_at < ?)", types.JobStatusPending, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.IngestionJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *ingestionJobRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.IngestionJob{}).Error
}
