package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
	"github.com/prodpulse/prodpulse-backend/internal/tabular"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

const (
	insertBatchSize     = 1000
	dashboardKeyPattern = "dashboard:*"
	defaultPreviewRows  = 10
	maxPreviewRows      = 200
	defaultJobPageSize  = 20
)

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

var supportedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
	".json": true,
}

type SubmitInput struct {
	Name       string
	SizeBytes  int64
	TargetKind string
	Reader     io.Reader
}

// PreviewResult is the first page of a stored file re-parsed on demand.
type PreviewResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int              `json:"total_rows"`
}

type IngestionService interface {
	Submit(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, input SubmitInput) (*types.IngestionJob, error)
	// Process runs a claimed job to a terminal status. It never returns an
	// error for job-content problems (those end the job as status=error);
	// only infrastructure failures surface.
	Process(ctx context.Context, job *types.IngestionJob) error
	GetJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) (*types.IngestionJob, error)
	ListJobs(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, pageSize int, search string) ([]*types.IngestionJob, int64, error)
	DeleteJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) error
	Preview(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID, rows int) (*PreviewResult, error)
	ValidateJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) (*tabular.ValidationResult, error)
	SchemaForJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) ([]tabular.ColumnSchema, error)
}

type ingestionService struct {
	db        *gorm.DB
	log       *logger.Logger
	jobRepo   repos.IngestionJobRepo
	recRepo   repos.AnalyticalRecordRepo
	cache     cache.Cache
	uploadDir string
}

func NewIngestionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.IngestionJobRepo,
	recRepo repos.AnalyticalRecordRepo,
	c cache.Cache,
	uploadDir string,
) IngestionService {
	return &ingestionService{
		db:        db,
		log:       baseLog.With("service", "IngestionService"),
		jobRepo:   jobRepo,
		recRepo:   recRepo,
		cache:     c,
		uploadDir: uploadDir,
	}
}

func (s *ingestionService) Submit(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, input SubmitInput) (*types.IngestionJob, error) {
	ext := strings.ToLower(filepath.Ext(input.Name))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
	target := input.TargetKind
	if target == "" {
		target = types.TargetAnalytical
	}
	if target != types.TargetAnalytical && target != types.TargetConsumption {
		return nil, fmt.Errorf("unknown target kind %q", target)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	job := &types.IngestionJob{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Name:        input.Name,
		FileType:    strings.TrimPrefix(ext, "."),
		TargetKind:  target,
		Status:      types.JobStatusPending,
	}
	job.FilePath = filepath.Join(s.uploadDir, job.ID.String()+ext)

	dst, err := os.Create(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	written, err := io.Copy(dst, input.Reader)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(job.FilePath)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	job.FileSize = written
	if input.SizeBytes > 0 {
		job.FileSize = input.SizeBytes
	}

	if err := s.jobRepo.Create(ctx, tx, job); err != nil {
		_ = os.Remove(job.FilePath)
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Submit", "job_id", job.ID, "user_id", ownerUserID, "file_type", job.FileType, "target_kind", target)
	return job, nil
}

func (s *ingestionService) Process(ctx context.Context, job *types.IngestionJob) error {
	if job == nil {
		return nil
	}
	log := s.log.With("job_id", job.ID)

	ds, err := tabular.Parse(job.FilePath)
	if err != nil {
		return s.failJob(ctx, job, fmt.Sprintf("parse: %v", err))
	}

	var (
		normalized *tabular.Dataset
		records    []*types.AnalyticalRecord
	)
	switch job.TargetKind {
	case types.TargetConsumption:
		normalized, err = tabular.NormalizeConsumption(ds)
		if err != nil {
			return s.failJob(ctx, job, fmt.Sprintf("normalize: %v", err))
		}
	default:
		normalized = tabular.NormalizeAnalytical(ds)
		records = buildAnalyticalRecords(job.ID, normalized)
	}

	schema := tabular.DetectSchema(normalized)
	columnsMeta, err := json.Marshal(schema)
	if err != nil {
		return s.failJob(ctx, job, fmt.Sprintf("encode schema: %v", err))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(records) > 0 {
			if err := s.recRepo.CreateInBatches(ctx, tx, records, insertBatchSize); err != nil {
				return fmt.Errorf("insert records: %w", err)
			}
		}
		done, err := s.jobRepo.MarkTerminal(ctx, tx, job.ID, map[string]interface{}{
			"status":       types.JobStatusReady,
			"row_count":    normalized.RowCount(),
			"column_count": normalized.ColumnCount(),
			"columns_meta": datatypes.JSON(columnsMeta),
		})
		if err != nil {
			return fmt.Errorf("mark ready: %w", err)
		}
		if !done {
			return fmt.Errorf("job %s no longer pending", job.ID)
		}
		return nil
	})
	if err != nil {
		return s.failJob(ctx, job, err.Error())
	}

	// Ready is terminal; a failed invalidation only delays freshness by the
	// cache TTL.
	s.cache.DeleteByPattern(ctx, dashboardKeyPattern)
	log.Info("Process complete", "rows", normalized.RowCount(), "records", len(records))
	return nil
}

// failJob ends the job as status=error and cleans up the upload. Returns nil:
// a content failure is an outcome, not an error for the worker.
func (s *ingestionService) failJob(ctx context.Context, job *types.IngestionJob, message string) error {
	s.log.Warn("Process failed", "job_id", job.ID, "error", message)
	if len(message) > 2000 {
		message = message[:2000]
	}
	_, err := s.jobRepo.MarkTerminal(ctx, nil, job.ID, map[string]interface{}{
		"status":        types.JobStatusError,
		"error_message": message,
	})
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if job.FilePath != "" {
		if rmErr := os.Remove(job.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("upload cleanup failed", "job_id", job.ID, "error", rmErr)
		}
	}
	return nil
}

func (s *ingestionService) GetJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) (*types.IngestionJob, error) {
	job, err := s.jobRepo.GetForOwner(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *ingestionService) ListJobs(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, pageSize int, search string) ([]*types.IngestionJob, int64, error) {
	if pageSize < 1 {
		pageSize = defaultJobPageSize
	}
	jobs, total, err := s.jobRepo.List(ctx, tx, ownerUserID, page, pageSize, search)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *ingestionService) DeleteJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := s.recRepo.DeleteByJobID(ctx, txx, job.ID); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		if err := s.jobRepo.Delete(ctx, txx, job.ID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if job.FilePath != "" {
		if rmErr := os.Remove(job.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("upload cleanup failed", "job_id", job.ID, "error", rmErr)
		}
	}
	s.cache.DeleteByPattern(ctx, dashboardKeyPattern)
	s.log.Info("DeleteJob", "job_id", job.ID, "user_id", ownerUserID)
	return nil
}

func (s *ingestionService) Preview(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID, rows int) (*PreviewResult, error) {
	ds, err := s.reparse(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return nil, err
	}
	if rows < 1 {
		rows = defaultPreviewRows
	}
	if rows > maxPreviewRows {
		rows = maxPreviewRows
	}

	out := &PreviewResult{
		Columns: make([]string, 0, ds.ColumnCount()),
		Rows:    make([]map[string]any, 0, rows),
		Total:   ds.RowCount(),
	}
	for i := range ds.Columns {
		out.Columns = append(out.Columns, ds.Columns[i].Name)
	}
	for i := 0; i < ds.RowCount() && i < rows; i++ {
		row := make(map[string]any, ds.ColumnCount())
		for c := range ds.Columns {
			row[ds.Columns[c].Name] = ds.Columns[c].Cells[i].JSONValue()
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (s *ingestionService) ValidateJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) (*tabular.ValidationResult, error) {
	ds, err := s.reparse(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return nil, err
	}
	result := tabular.Validate(ds)
	return &result, nil
}

func (s *ingestionService) SchemaForJob(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) ([]tabular.ColumnSchema, error) {
	ds, err := s.reparse(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return nil, err
	}
	return tabular.DetectSchema(ds), nil
}

func (s *ingestionService) reparse(ctx context.Context, tx *gorm.DB, ownerUserID, jobID uuid.UUID) (*tabular.Dataset, error) {
	job, err := s.GetJob(ctx, tx, ownerUserID, jobID)
	if err != nil {
		return nil, err
	}
	if job.FilePath == "" {
		return nil, ErrJobNotFound
	}
	ds, err := tabular.Parse(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("parse stored file: %w", err)
	}
	return ds, nil
}

// buildAnalyticalRecords maps dataset columns onto record fields through the
// canonical header table. Coercion failures null a field, never a row.
func buildAnalyticalRecords(jobID uuid.UUID, ds *tabular.Dataset) []*types.AnalyticalRecord {
	cfg := tabular.Config()

	// canonical field -> column, honoring header aliases (first match wins)
	fields := make(map[string]*tabular.Column)
	for i := range ds.Columns {
		canonical, ok := cfg.CanonicalFields[ds.Columns[i].Name]
		if !ok {
			continue
		}
		if _, seen := fields[canonical]; !seen {
			fields[canonical] = &ds.Columns[i]
		}
	}

	records := make([]*types.AnalyticalRecord, 0, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		rec := &types.AnalyticalRecord{ID: uuid.New(), JobID: jobID}
		if col, ok := fields["reporting_day"]; ok {
			if t, ok := col.Cells[i].Date(); ok {
				day := t
				rec.ReportingDay = &day
				month := day.Format("2006-01")
				rec.ReportMonth = &month
			}
		}
		if col, ok := fields["quantity"]; ok {
			if f, ok := col.Cells[i].Number(); ok {
				rec.Quantity = int(f)
			}
		}
		rec.Customer = cellString(fields["customer"], i)
		rec.Category = cellString(fields["category"], i)
		rec.Product = cellString(fields["product"], i)
		rec.Status = cellString(fields["status"], i)
		rec.CurrentStatus = cellString(fields["current_status"], i)
		rec.RootCause = cellString(fields["root_cause"], i)
		rec.ImprovementPlan = cellString(fields["improvement_plan"], i)
		records = append(records, rec)
	}
	return records
}

func cellString(col *tabular.Column, row int) *string {
	if col == nil || row >= len(col.Cells) {
		return nil
	}
	v := col.Cells[row]
	if v.IsNull() {
		return nil
	}
	s := strings.TrimSpace(v.Raw())
	if s == "" {
		return nil
	}
	return &s
}
