package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
	"github.com/prodpulse/prodpulse-backend/internal/tabular"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

type fakeJobRepo struct {
	created []*types.IngestionJob
	updates map[uuid.UUID]map[string]interface{}
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{updates: map[uuid.UUID]map[string]interface{}{}}
}

func (f *fakeJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.IngestionJob) error {
	f.created = append(f.created, job)
	return nil
}
func (f *fakeJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IngestionJob, error) {
	for _, j := range f.created {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}
func (f *fakeJobRepo) GetForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*types.IngestionJob, error) {
	for _, j := range f.created {
		if j.ID == id && j.OwnerUserID == ownerUserID {
			return j, nil
		}
	}
	return nil, nil
}
func (f *fakeJobRepo) List(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, page, pageSize int, search string) ([]*types.IngestionJob, int64, error) {
	return f.created, int64(len(f.created)), nil
}
func (f *fakeJobRepo) MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	f.updates[id] = updates
	return true, nil
}
func (f *fakeJobRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB, staleLock time.Duration) (*types.IngestionJob, error) {
	return nil, nil
}
func (f *fakeJobRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func newIngestionForTest(t *testing.T, jobRepo *fakeJobRepo) (IngestionService, string) {
	t.Helper()
	dir := t.TempDir()
	svc := NewIngestionService(nil, testLogger(t), jobRepo, &fakeRecordRepo{}, cache.NewMemoryCache(), dir)
	return svc, dir
}

func TestSubmitStoresFileAndCreatesPendingJob(t *testing.T) {
	jobRepo := newFakeJobRepo()
	svc, dir := newIngestionForTest(t, jobRepo)
	owner := uuid.New()

	job, err := svc.Submit(context.Background(), nil, owner, SubmitInput{
		Name:   "orders.csv",
		Reader: strings.NewReader("Customer,Production No\nAcme,5\n"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != types.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.TargetKind != types.TargetAnalytical {
		t.Fatalf("target defaults to analytical, got %s", job.TargetKind)
	}
	if job.FileType != "csv" {
		t.Fatalf("file type = %s", job.FileType)
	}
	if !strings.HasPrefix(job.FilePath, dir) {
		t.Fatalf("file stored outside upload dir: %s", job.FilePath)
	}
	raw, err := os.ReadFile(job.FilePath)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if !strings.Contains(string(raw), "Acme") {
		t.Fatalf("stored content wrong: %q", raw)
	}
	if len(jobRepo.created) != 1 {
		t.Fatalf("job row not created")
	}
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	svc, _ := newIngestionForTest(t, newFakeJobRepo())
	_, err := svc.Submit(context.Background(), nil, uuid.New(), SubmitInput{
		Name:   "report.pdf",
		Reader: strings.NewReader("x"),
	})
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("want ErrUnsupportedFileType, got %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc, _ := newIngestionForTest(t, newFakeJobRepo())
	_, err := svc.GetJob(context.Background(), nil, uuid.New(), uuid.New())
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func analyticalDataset(t *testing.T, csv string) *tabular.Dataset {
	t.Helper()
	path := t.TempDir() + "/data.csv"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ds, err := tabular.Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tabular.NormalizeAnalytical(ds)
}

func TestBuildAnalyticalRecordsMapping(t *testing.T) {
	ds := analyticalDataset(t,
		"Reporting day,Customer,Category,Status,Currrent status,Production No,Root cause\n"+
			"2024-01-15,Acme,Mechanical,LOCK,CANCELED,7,Wear\n"+
			"garbage,,,HOLD,,notanumber,\n")
	jobID := uuid.New()
	records := buildAnalyticalRecords(jobID, ds)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	r0 := records[0]
	if r0.JobID != jobID {
		t.Fatalf("job id not propagated")
	}
	if r0.ReportingDay == nil || !r0.ReportingDay.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("reporting day = %v", r0.ReportingDay)
	}
	if r0.ReportMonth == nil || *r0.ReportMonth != "2024-01" {
		t.Fatalf("report month = %v", r0.ReportMonth)
	}
	if r0.Quantity != 7 {
		t.Fatalf("quantity = %d, want 7", r0.Quantity)
	}
	// The misspelled header maps onto the same field as the correct one.
	if r0.CurrentStatus == nil || *r0.CurrentStatus != "CANCELED" {
		t.Fatalf("current status = %v", r0.CurrentStatus)
	}
	if r0.RootCause == nil || *r0.RootCause != "Wear" {
		t.Fatalf("root cause = %v", r0.RootCause)
	}

	r1 := records[1]
	if r1.ReportingDay != nil || r1.ReportMonth != nil {
		t.Fatalf("unparseable date must stay null: %v %v", r1.ReportingDay, r1.ReportMonth)
	}
	if r1.Quantity != 0 {
		t.Fatalf("unparseable quantity must fall back to 0, got %d", r1.Quantity)
	}
	if r1.Customer != nil {
		t.Fatalf("blank customer must be nil")
	}
	if r1.Status == nil || *r1.Status != "HOLD" {
		t.Fatalf("status = %v", r1.Status)
	}
}

func TestBuildAnalyticalRecordsCanonicalHeaderWins(t *testing.T) {
	ds := analyticalDataset(t,
		"Current status,Currrent status\nGOOD,BAD\n")
	records := buildAnalyticalRecords(uuid.New(), ds)
	if records[0].CurrentStatus == nil || *records[0].CurrentStatus != "GOOD" {
		t.Fatalf("first matching header should win, got %v", records[0].CurrentStatus)
	}
}

func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.IngestionJob{}, &types.AnalyticalRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// abortingRecRepo writes the first two batches through the real repo, then
// fails, simulating a persistence fault in the middle of a bulk insert.
type abortingRecRepo struct {
	repos.AnalyticalRecordRepo
}

func (r *abortingRecRepo) CreateInBatches(ctx context.Context, tx *gorm.DB, records []*types.AnalyticalRecord, batchSize int) error {
	if len(records) > 2*batchSize {
		if err := r.AnalyticalRecordRepo.CreateInBatches(ctx, tx, records[:2*batchSize], batchSize); err != nil {
			return err
		}
		return errors.New("write aborted")
	}
	return r.AnalyticalRecordRepo.CreateInBatches(ctx, tx, records, batchSize)
}

func TestProcessRoundTrip(t *testing.T) {
	db := newServicesDB(t)
	log := testLogger(t)
	jobRepo := repos.NewIngestionJobRepo(db, log)
	recRepo := repos.NewAnalyticalRecordRepo(db, log)
	mem := cache.NewMemoryCache()
	ctx := context.Background()

	staleKey := "dashboard:summary:v1:2024-01:-:-:-:-"
	mem.Set(ctx, staleKey, 1, time.Minute)

	svc := NewIngestionService(db, log, jobRepo, recRepo, mem, t.TempDir())
	job, err := svc.Submit(ctx, nil, uuid.New(), SubmitInput{
		Name:   "orders.csv",
		Reader: strings.NewReader("Reporting day,Customer,Production No\n2024-01-15,Acme,7\n"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := svc.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	stored, err := jobRepo.GetByID(ctx, nil, job.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload job: %v", err)
	}
	if stored.Status != types.JobStatusReady {
		t.Fatalf("status = %s, want ready (%s)", stored.Status, stored.ErrorMessage)
	}
	if stored.RowCount != 1 || stored.ColumnCount != 3 {
		t.Fatalf("dims %dx%d, want 1x3", stored.RowCount, stored.ColumnCount)
	}
	if len(stored.ColumnsMeta) == 0 {
		t.Fatalf("schema metadata not persisted")
	}

	var recs []*types.AnalyticalRecord
	if err := db.Where("job_id = ?", job.ID).Find(&recs).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.ReportingDay == nil || r.ReportingDay.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("reporting day = %v", r.ReportingDay)
	}
	if r.ReportMonth == nil || *r.ReportMonth != "2024-01" {
		t.Fatalf("report month = %v", r.ReportMonth)
	}
	if r.Quantity != 7 {
		t.Fatalf("quantity = %d, want 7", r.Quantity)
	}
	if r.Customer == nil || *r.Customer != "Acme" {
		t.Fatalf("customer = %v", r.Customer)
	}

	var sink int
	if mem.Get(ctx, staleKey, &sink) {
		t.Fatalf("dashboard cache should be invalidated after a successful ingest")
	}
}

func TestProcessPersistFailureLeavesNoRecords(t *testing.T) {
	db := newServicesDB(t)
	log := testLogger(t)
	jobRepo := repos.NewIngestionJobRepo(db, log)
	recRepo := &abortingRecRepo{AnalyticalRecordRepo: repos.NewAnalyticalRecordRepo(db, log)}
	ctx := context.Background()
	svc := NewIngestionService(db, log, jobRepo, recRepo, cache.NewMemoryCache(), t.TempDir())

	// Three insert batches; the fault lands after the second one.
	var sb strings.Builder
	sb.WriteString("Reporting day,Customer,Production No\n")
	for i := 0; i < 2500; i++ {
		fmt.Fprintf(&sb, "2024-01-%02d,Acme,%d\n", i%28+1, i)
	}
	job, err := svc.Submit(ctx, nil, uuid.New(), SubmitInput{
		Name:   "big.csv",
		Reader: strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := svc.Process(ctx, job); err != nil {
		t.Fatalf("a failed job is an outcome, not a Process error: %v", err)
	}

	stored, err := jobRepo.GetByID(ctx, nil, job.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload job: %v", err)
	}
	if stored.Status != types.JobStatusError {
		t.Fatalf("status = %s, want error", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "write aborted") {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}

	count, err := recRepo.CountByJobID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rollback must leave zero records for the job, got %d", count)
	}

	if _, err := os.Stat(job.FilePath); !os.IsNotExist(err) {
		t.Fatalf("failed job should remove the stored upload")
	}
}

func TestProcessTerminalStatusIsOneShot(t *testing.T) {
	db := newServicesDB(t)
	log := testLogger(t)
	jobRepo := repos.NewIngestionJobRepo(db, log)
	recRepo := repos.NewAnalyticalRecordRepo(db, log)
	ctx := context.Background()
	svc := NewIngestionService(db, log, jobRepo, recRepo, cache.NewMemoryCache(), t.TempDir())

	job, err := svc.Submit(ctx, nil, uuid.New(), SubmitInput{
		Name:   "orders.csv",
		Reader: strings.NewReader("Reporting day,Customer,Production No\n2024-01-15,Acme,7\n"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := svc.Process(ctx, job); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// A duplicate run must not flip the terminal status or duplicate rows.
	if err := svc.Process(ctx, job); err != nil {
		t.Fatalf("second Process errored: %v", err)
	}

	stored, err := jobRepo.GetByID(ctx, nil, job.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload job: %v", err)
	}
	if stored.Status != types.JobStatusReady {
		t.Fatalf("terminal status changed to %s", stored.Status)
	}
	count, err := recRepo.CountByJobID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("records = %d, want 1 after duplicate run", count)
	}
}
