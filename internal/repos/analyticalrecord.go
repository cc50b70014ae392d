package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

// RecordFilter narrows aggregate queries. Empty slices mean "no restriction".
// A "Blank" entry in Categories additionally matches NULL and empty-string
// categories, mirroring how uncategorized rows are presented.
type RecordFilter struct {
	Month      string
	Customers  []string
	Categories []string
	Statuses   []string
	Products   []string
}

// KPITotals is one row of status roll-ups over the filtered set. Quantity
// sums and row counts are both carried so callers can fall back to counts
// when every quantity is zero.
type KPITotals struct {
	TotalQty      int64 `gorm:"column:total_qty"`
	TotalCount    int64 `gorm:"column:total_count"`
	LockQty       int64 `gorm:"column:lock_qty"`
	LockCount     int64 `gorm:"column:lock_count"`
	HoldQty       int64 `gorm:"column:hold_qty"`
	HoldCount     int64 `gorm:"column:hold_count"`
	FailureQty    int64 `gorm:"column:failure_qty"`
	FailureCount  int64 `gorm:"column:failure_count"`
	CanceledQty   int64 `gorm:"column:canceled_qty"`
	CanceledCount int64 `gorm:"column:canceled_count"`
}

type GroupCount struct {
	Value    *string `gorm:"column:value"`
	Count    int64   `gorm:"column:cnt"`
	Quantity int64   `gorm:"column:qty"`
}

type DailyStatusCount struct {
	Day    time.Time `gorm:"column:day"`
	Status *string   `gorm:"column:status"`
	Count  int64     `gorm:"column:cnt"`
}

type RootCauseCount struct {
	RootCause       string  `gorm:"column:root_cause"`
	Count           int64   `gorm:"column:cnt"`
	ImprovementPlan *string `gorm:"column:improvement_plan"`
}

// DecompositionRow is one leaf of the status/customer/category/root-cause
// grouping; the service folds rows into the tree.
type DecompositionRow struct {
	Status    *string `gorm:"column:status"`
	Customer  *string `gorm:"column:customer"`
	Category  *string `gorm:"column:category"`
	RootCause *string `gorm:"column:root_cause"`
	Count     int64   `gorm:"column:cnt"`
}

// MonthlyRollup is one month's status counts for comparison views.
type MonthlyRollup struct {
	Month    string `gorm:"column:report_month"`
	Total    int64  `gorm:"column:total"`
	Lock     int64  `gorm:"column:lock_cnt"`
	Hold     int64  `gorm:"column:hold_cnt"`
	Failure  int64  `gorm:"column:failure_cnt"`
	Canceled int64  `gorm:"column:canceled_cnt"`
}

// dimensionColumns whitelists group-by targets; anything else is rejected
// before it reaches SQL.
var dimensionColumns = map[string]string{
	"customer":   "customer",
	"category":   "category",
	"status":     "status",
	"product":    "product",
	"root_cause": "root_cause",
}

// DimensionColumn resolves an API-facing dimension name to its column,
// reporting false for anything outside the whitelist.
func DimensionColumn(dimension string) (string, bool) {
	col, ok := dimensionColumns[dimension]
	return col, ok
}

type AnalyticalRecordRepo interface {
	CreateInBatches(ctx context.Context, tx *gorm.DB, records []*types.AnalyticalRecord, batchSize int) error
	DeleteByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error
	CountByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error)
	// Months lists distinct report months, newest first.
	Months(ctx context.Context, tx *gorm.DB) ([]string, error)
	KPITotals(ctx context.Context, tx *gorm.DB, filter RecordFilter) (*KPITotals, error)
	GroupCounts(ctx context.Context, tx *gorm.DB, filter RecordFilter, dimension string, limit int) ([]GroupCount, error)
	DailyStatusCounts(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]DailyStatusCount, error)
	RootCauses(ctx context.Context, tx *gorm.DB, filter RecordFilter, limit int) ([]RootCauseCount, error)
	DistinctValues(ctx context.Context, tx *gorm.DB, dimension, month string) ([]string, error)
	DecompositionRows(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]DecompositionRow, error)
	MonthlyRollups(ctx context.Context, tx *gorm.DB, months []string) ([]MonthlyRollup, error)
	Drilldown(ctx context.Context, tx *gorm.DB, filter RecordFilter, dimension, value string, offset, limit int) ([]*types.AnalyticalRecord, int64, error)
}

type analyticalRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalyticalRecordRepo(db *gorm.DB, baseLog *logger.Logger) AnalyticalRecordRepo {
	return &analyticalRecordRepo{
		db:  db,
		log: baseLog.With("repo", "AnalyticalRecordRepo"),
	}
}

func (r *analyticalRecordRepo) base(tx *gorm.DB) *gorm.DB {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction
}

func applyFilter(q *gorm.DB, f RecordFilter) *gorm.DB {
	if f.Month != "" {
		q = q.Where("report_month = ?", f.Month)
	}
	if len(f.Customers) > 0 {
		q = q.Where("customer IN ?", f.Customers)
	}
	if len(f.Categories) > 0 {
		hasBlank := false
		for _, c := range f.Categories {
			if c == "Blank" {
				hasBlank = true
				break
			}
		}
		if hasBlank {
			q = q.Where("(category IN ? OR category IS NULL OR category = '')", f.Categories)
		} else {
			q = q.Where("category IN ?", f.Categories)
		}
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.Products) > 0 {
		q = q.Where("product IN ?", f.Products)
	}
	return q
}

func (r *analyticalRecordRepo) CreateInBatches(ctx context.Context, tx *gorm.DB, records []*types.AnalyticalRecord, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	return r.base(tx).WithContext(ctx).CreateInBatches(records, batchSize).Error
}

func (r *analyticalRecordRepo) DeleteByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return nil
	}
	return r.base(tx).WithContext(ctx).
		Where("job_id = ?", jobID).
		Delete(&types.AnalyticalRecord{}).Error
}

func (r *analyticalRecordRepo) CountByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error) {
	var total int64
	err := r.base(tx).WithContext(ctx).
		Model(&types.AnalyticalRecord{}).
		Where("job_id = ?", jobID).
		Count(&total).Error
	return total, err
}

func (r *analyticalRecordRepo) Months(ctx context.Context, tx *gorm.DB) ([]string, error) {
	var months []string
	err := r.base(tx).WithContext(ctx).
		Model(&types.AnalyticalRecord{}).
		Where("report_month IS NOT NULL").
		Distinct("report_month").
		Order("report_month DESC").
		Pluck("report_month", &months).Error
	if err != nil {
		return nil, err
	}
	return months, nil
}

func (r *analyticalRecordRepo) KPITotals(ctx context.Context, tx *gorm.DB, filter RecordFilter) (*KPITotals, error) {
	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)

	var totals KPITotals
	err := q.Select(`
		COALESCE(SUM(quantity), 0) AS total_qty,
		COUNT(*) AS total_count,
		COALESCE(SUM(CASE WHEN status = 'LOCK' THEN quantity ELSE 0 END), 0) AS lock_qty,
		COALESCE(SUM(CASE WHEN status = 'LOCK' THEN 1 ELSE 0 END), 0) AS lock_count,
		COALESCE(SUM(CASE WHEN status = 'HOLD' THEN quantity ELSE 0 END), 0) AS hold_qty,
		COALESCE(SUM(CASE WHEN status = 'HOLD' THEN 1 ELSE 0 END), 0) AS hold_count,
		COALESCE(SUM(CASE WHEN status = 'FAILURE' THEN quantity ELSE 0 END), 0) AS failure_qty,
		COALESCE(SUM(CASE WHEN status = 'FAILURE' THEN 1 ELSE 0 END), 0) AS failure_count,
		COALESCE(SUM(CASE WHEN current_status = 'CANCELED' THEN quantity ELSE 0 END), 0) AS canceled_qty,
		COALESCE(SUM(CASE WHEN current_status = 'CANCELED' THEN 1 ELSE 0 END), 0) AS canceled_count
	`).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *analyticalRecordRepo) GroupCounts(ctx context.Context, tx *gorm.DB, filter RecordFilter, dimension string, limit int) ([]GroupCount, error) {
	col, ok := DimensionColumn(dimension)
	if !ok {
		return nil, gorm.ErrInvalidField
	}
	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)
	q = q.Select(col+" AS value, COUNT(*) AS cnt, COALESCE(SUM(quantity), 0) AS qty").
		Group(col).
		Order("cnt DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []GroupCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticalRecordRepo) DailyStatusCounts(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]DailyStatusCount, error) {
	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)
	var rows []DailyStatusCount
	err := q.Where("reporting_day IS NOT NULL").
		Select("reporting_day AS day, status, COUNT(*) AS cnt").
		Group("reporting_day").
		Group("status").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticalRecordRepo) RootCauses(ctx context.Context, tx *gorm.DB, filter RecordFilter, limit int) ([]RootCauseCount, error) {
	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)
	q = q.Where("root_cause IS NOT NULL AND root_cause <> ''").
		Select("root_cause, COUNT(*) AS cnt, MAX(improvement_plan) AS improvement_plan").
		Group("root_cause").
		Order("cnt DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []RootCauseCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticalRecordRepo) DistinctValues(ctx context.Context, tx *gorm.DB, dimension, month string) ([]string, error) {
	col, ok := DimensionColumn(dimension)
	if !ok {
		return nil, gorm.ErrInvalidField
	}
	q := r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}).
		Where(col + " IS NOT NULL AND " + col + " <> ''")
	if month != "" {
		q = q.Where("report_month = ?", month)
	}
	var values []string
	err := q.Distinct(col).
		Order(col + " ASC").
		Pluck(col, &values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (r *analyticalRecordRepo) DecompositionRows(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]DecompositionRow, error) {
	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)
	var rows []DecompositionRow
	err := q.Select("status, customer, category, root_cause, COUNT(*) AS cnt").
		Group("status").
		Group("customer").
		Group("category").
		Group("root_cause").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticalRecordRepo) MonthlyRollups(ctx context.Context, tx *gorm.DB, months []string) ([]MonthlyRollup, error) {
	if len(months) == 0 {
		return nil, nil
	}
	var rows []MonthlyRollup
	err := r.base(tx).WithContext(ctx).
		Model(&types.AnalyticalRecord{}).
		Where("report_month IN ?", months).
		Select(`
			report_month,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'LOCK' THEN 1 ELSE 0 END), 0) AS lock_cnt,
			COALESCE(SUM(CASE WHEN status = 'HOLD' THEN 1 ELSE 0 END), 0) AS hold_cnt,
			COALESCE(SUM(CASE WHEN status = 'FAILURE' THEN 1 ELSE 0 END), 0) AS failure_cnt,
			COALESCE(SUM(CASE WHEN current_status = 'CANCELED' THEN 1 ELSE 0 END), 0) AS canceled_cnt
		`).
		Group("report_month").
		Order("report_month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticalRecordRepo) Drilldown(ctx context.Context, tx *gorm.DB, filter RecordFilter, dimension, value string, offset, limit int) ([]*types.AnalyticalRecord, int64, error) {
	col, ok := DimensionColumn(dimension)
	if !ok {
		return nil, 0, gorm.ErrInvalidField
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 50
	}

	q := applyFilter(r.base(tx).WithContext(ctx).Model(&types.AnalyticalRecord{}), filter)
	if value == "Blank" {
		q = q.Where("(" + col + " IS NULL OR " + col + " = '')")
	} else {
		q = q.Where(col+" = ?", value)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*types.AnalyticalRecord
	err := q.Order("reporting_day DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
