package services

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
	"github.com/prodpulse/prodpulse-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func strp(s string) *string { return &s }

// fakeRecordRepo serves canned aggregates and counts repo hits so cache
// behavior is observable.
type fakeRecordRepo struct {
	months    []string
	totals    map[string]*repos.KPITotals
	groups    map[string][]repos.GroupCount
	daily     []repos.DailyStatusCount
	causes    []repos.RootCauseCount
	decomp    []repos.DecompositionRow
	rollups   []repos.MonthlyRollup
	drillRows []*types.AnalyticalRecord
	drillN    int64

	mu           sync.Mutex
	calls        int
	lastDrillOff int
	lastDrillLim int
}

func (f *fakeRecordRepo) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeRecordRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRecordRepo) CreateInBatches(ctx context.Context, tx *gorm.DB, records []*types.AnalyticalRecord, batchSize int) error {
	return nil
}
func (f *fakeRecordRepo) DeleteByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) error {
	return nil
}
func (f *fakeRecordRepo) CountByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (int64, error) {
	return 0, nil
}
func (f *fakeRecordRepo) Months(ctx context.Context, tx *gorm.DB) ([]string, error) {
	f.hit()
	return f.months, nil
}
func (f *fakeRecordRepo) KPITotals(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter) (*repos.KPITotals, error) {
	f.hit()
	if t, ok := f.totals[filter.Month]; ok {
		return t, nil
	}
	return &repos.KPITotals{}, nil
}
func (f *fakeRecordRepo) GroupCounts(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter, dimension string, limit int) ([]repos.GroupCount, error) {
	f.hit()
	return f.groups[dimension], nil
}
func (f *fakeRecordRepo) DailyStatusCounts(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter) ([]repos.DailyStatusCount, error) {
	f.hit()
	return f.daily, nil
}
func (f *fakeRecordRepo) RootCauses(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter, limit int) ([]repos.RootCauseCount, error) {
	f.hit()
	return f.causes, nil
}
func (f *fakeRecordRepo) DistinctValues(ctx context.Context, tx *gorm.DB, dimension, month string) ([]string, error) {
	f.hit()
	return []string{}, nil
}
func (f *fakeRecordRepo) DecompositionRows(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter) ([]repos.DecompositionRow, error) {
	f.hit()
	return f.decomp, nil
}
func (f *fakeRecordRepo) MonthlyRollups(ctx context.Context, tx *gorm.DB, months []string) ([]repos.MonthlyRollup, error) {
	f.hit()
	return f.rollups, nil
}
func (f *fakeRecordRepo) Drilldown(ctx context.Context, tx *gorm.DB, filter repos.RecordFilter, dimension, value string, offset, limit int) ([]*types.AnalyticalRecord, int64, error) {
	f.hit()
	f.lastDrillOff = offset
	f.lastDrillLim = limit
	return f.drillRows, f.drillN, nil
}

func newDashboardForTest(t *testing.T, repo *fakeRecordRepo) DashboardService {
	t.Helper()
	return NewDashboardService(nil, testLogger(t), repo, cache.NewMemoryCache(), 300*time.Second)
}

func TestCalcMetricsQuantityDriven(t *testing.T) {
	m := calcMetrics(&repos.KPITotals{
		TotalQty: 100, TotalCount: 10,
		HoldQty: 20, HoldCount: 2,
		CanceledQty: 10, CanceledCount: 1,
	})
	if m.TotalOrders != 100 || m.HoldCount != 20 {
		t.Fatalf("quantity sums should drive KPIs: %+v", m)
	}
	if m.ResumeSuccessRate != 90.0 || m.HoldRate != 20.0 || m.FailureRate != 10.0 {
		t.Fatalf("rates: %+v", m)
	}
}

func TestCalcMetricsCountFallback(t *testing.T) {
	m := calcMetrics(&repos.KPITotals{
		TotalQty: 0, TotalCount: 50,
		LockCount: 5, CanceledCount: 10,
	})
	if m.TotalOrders != 50 || m.LockCount != 5 {
		t.Fatalf("row counts should stand in when all quantities are zero: %+v", m)
	}
	if m.FailureRate != 20.0 {
		t.Fatalf("failure rate = %v, want 20.0", m.FailureRate)
	}
}

func TestCalcMetricsEmpty(t *testing.T) {
	m := calcMetrics(&repos.KPITotals{})
	if m.TotalOrders != 0 || m.ResumeSuccessRate != 0 || m.HoldRate != 0 || m.FailureRate != 0 {
		t.Fatalf("empty set should yield zeros, got %+v", m)
	}
}

func TestCalcMoMChange(t *testing.T) {
	curr := Metrics{TotalOrders: 120, LockCount: 10, FailureRate: 12.5}
	prev := Metrics{TotalOrders: 100, LockCount: 0, FailureRate: 10.0}
	mom := calcMoMChange(curr, prev)
	if mom.TotalOrders == nil || *mom.TotalOrders != 20.0 {
		t.Fatalf("total change = %v, want 20.0", mom.TotalOrders)
	}
	if mom.LockCount != nil {
		t.Fatalf("zero previous count must yield nil, got %v", *mom.LockCount)
	}
	if mom.FailureRate == nil || *mom.FailureRate != 2.5 {
		t.Fatalf("rate change = %v, want 2.5 points", mom.FailureRate)
	}
}

func TestSummaryCacheKeyDeterministic(t *testing.T) {
	f := Filters{Customers: []string{"Acme", "Globex"}, Statuses: []string{"LOCK"}}
	k1 := summaryCacheKey(f, "2024-01")
	k2 := summaryCacheKey(f, "2024-01")
	if k1 != k2 {
		t.Fatalf("same filters must produce the same key: %q vs %q", k1, k2)
	}
	if k1 != "dashboard:summary:v1:2024-01:Acme,Globex:-:LOCK:-" {
		t.Fatalf("unexpected key layout: %q", k1)
	}
	if k1 == summaryCacheKey(f, "2024-02") {
		t.Fatalf("different month must change the key")
	}
}

func TestSummarySecondCallServedFromCache(t *testing.T) {
	repo := &fakeRecordRepo{
		months: []string{"2024-02", "2024-01"},
		totals: map[string]*repos.KPITotals{
			"2024-02": {TotalQty: 10, TotalCount: 2},
			"2024-01": {TotalQty: 5, TotalCount: 1},
		},
		groups: map[string][]repos.GroupCount{
			"customer": {{Value: strp("Acme"), Count: 2}},
		},
	}
	svc := newDashboardForTest(t, repo)

	first := svc.Summary(context.Background(), Filters{})
	if first.Error != "" {
		t.Fatalf("summary degraded: %s", first.Error)
	}
	if first.SelectedMonth == nil || *first.SelectedMonth != "2024-02" {
		t.Fatalf("selected month = %v", first.SelectedMonth)
	}
	if first.PrevMonth == nil || *first.PrevMonth != "2024-01" {
		t.Fatalf("prev month = %v", first.PrevMonth)
	}
	callsAfterFirst := repo.callCount()

	second := svc.Summary(context.Background(), Filters{})
	// resolveMonths always runs; everything else must come from cache.
	if repo.callCount() != callsAfterFirst+1 {
		t.Fatalf("cache miss on second call: %d -> %d repo calls", callsAfterFirst, repo.callCount())
	}
	if second.KPIs.TotalOrders != first.KPIs.TotalOrders {
		t.Fatalf("cached summary differs")
	}
}

func TestSummaryMoMWiring(t *testing.T) {
	repo := &fakeRecordRepo{
		months: []string{"2024-02", "2024-01"},
		totals: map[string]*repos.KPITotals{
			"2024-02": {TotalQty: 120, TotalCount: 12},
			"2024-01": {TotalQty: 100, TotalCount: 10},
		},
	}
	svc := newDashboardForTest(t, repo)
	resp := svc.Summary(context.Background(), Filters{})
	mom, ok := resp.MoMChange.(*MoMChange)
	if !ok || mom.TotalOrders == nil {
		t.Fatalf("expected MoM change, got %+v", resp.MoMChange)
	}
	if *mom.TotalOrders != 20.0 {
		t.Fatalf("MoM total = %v, want 20.0", *mom.TotalOrders)
	}
	if _, ok := resp.PrevMonthKPIs.(*Metrics); !ok {
		t.Fatalf("expected previous-month KPIs, got %+v", resp.PrevMonthKPIs)
	}
}

func TestSummaryEmptyObjectsWithoutPreviousMonth(t *testing.T) {
	repo := &fakeRecordRepo{
		months: []string{"2024-01"},
		totals: map[string]*repos.KPITotals{
			"2024-01": {TotalQty: 10, TotalCount: 2},
		},
	}
	svc := newDashboardForTest(t, repo)
	resp := svc.Summary(context.Background(), Filters{})
	if resp.Error != "" {
		t.Fatalf("summary degraded: %s", resp.Error)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(raw)
	if !strings.Contains(payload, `"prev_month_kpis":{}`) {
		t.Fatalf("prev_month_kpis must be an empty object, payload: %s", payload)
	}
	if !strings.Contains(payload, `"mom_change":{}`) {
		t.Fatalf("mom_change must be an empty object, payload: %s", payload)
	}
}

func TestBuildDecompositionTree(t *testing.T) {
	rows := []repos.DecompositionRow{}
	// 12 customers under LOCK so the top-10 truncation bites.
	for i := 0; i < 12; i++ {
		rows = append(rows, repos.DecompositionRow{
			Status:    strp("LOCK"),
			Customer:  strp(string(rune('A' + i))),
			Category:  strp("Mechanical"),
			RootCause: strp("Wear"),
			Count:     int64(i + 1),
		})
	}
	rows = append(rows, repos.DecompositionRow{Status: nil, Count: 7}) // counted in total only

	tree := buildDecompositionTree(rows)
	var wantTotal int64 = 7
	for i := 0; i < 12; i++ {
		wantTotal += int64(i + 1)
	}
	if tree.Value != wantTotal {
		t.Fatalf("root value = %d, want %d", tree.Value, wantTotal)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("statuses = %d, want 1", len(tree.Children))
	}
	lock := tree.Children[0]
	if len(lock.Children) != 10 {
		t.Fatalf("customers = %d, want top 10", len(lock.Children))
	}
	// Truncation happens after aggregation: the biggest customers survive.
	if lock.Children[0].Name != "L" || lock.Children[0].Value != 12 {
		t.Fatalf("top customer = %s/%d", lock.Children[0].Name, lock.Children[0].Value)
	}
	for _, cn := range lock.Children {
		if cn.Percent == nil || *cn.Percent < 0 || *cn.Percent > 100 {
			t.Fatalf("customer percent out of bounds: %v", cn.Percent)
		}
	}
	if lock.Percent == nil || *lock.Percent > 100 {
		t.Fatalf("status percent = %v", lock.Percent)
	}
}

func TestBuildDecompositionTreeRootCauseTruncation(t *testing.T) {
	rows := []repos.DecompositionRow{}
	for i := 0; i < 8; i++ {
		rows = append(rows, repos.DecompositionRow{
			Status:    strp("HOLD"),
			Customer:  strp("Acme"),
			Category:  strp("Electrical"),
			RootCause: strp(string(rune('a' + i))),
			Count:     int64(i + 1),
		})
	}
	tree := buildDecompositionTree(rows)
	cat := tree.Children[0].Children[0].Children[0]
	if len(cat.Children) != 5 {
		t.Fatalf("root causes = %d, want top 5", len(cat.Children))
	}
	if cat.Children[0].Value != 8 {
		t.Fatalf("largest root cause should survive truncation")
	}
}

func TestBuildDecompositionTreeEmpty(t *testing.T) {
	tree := buildDecompositionTree(nil)
	if tree.Value != 0 || len(tree.Children) != 0 {
		t.Fatalf("empty input should yield empty root, got %+v", tree)
	}
}

func TestComparisonChronologicalWithAggregate(t *testing.T) {
	repo := &fakeRecordRepo{
		months: []string{"2024-03", "2024-02", "2024-01"},
		rollups: []repos.MonthlyRollup{
			{Month: "2024-01", Total: 100, Canceled: 10},
			{Month: "2024-02", Total: 100, Canceled: 20},
			{Month: "2024-03", Total: 100, Canceled: 30},
		},
	}
	svc := newDashboardForTest(t, repo)
	resp, err := svc.Comparison(context.Background(), 3)
	if err != nil {
		t.Fatalf("Comparison failed: %v", err)
	}
	if len(resp.MonthlyData) != 3 || resp.MonthlyData[0].Month != "2024-01" {
		t.Fatalf("months must read chronologically: %+v", resp.MonthlyData)
	}
	agg := resp.Aggregated
	if agg == nil {
		t.Fatalf("aggregate missing")
	}
	if agg.TotalOrders != 300 || agg.OverallFailureRate != 20.0 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if agg.TrendChange != 20.0 {
		t.Fatalf("trend change = %v, want 30-10 points", agg.TrendChange)
	}
}

func TestDrilldownPaging(t *testing.T) {
	repo := &fakeRecordRepo{
		months: []string{"2024-01"},
		drillRows: []*types.AnalyticalRecord{
			{Customer: strp("Acme"), Quantity: 3},
		},
		drillN: 120,
	}
	svc := newDashboardForTest(t, repo)
	resp, err := svc.Drilldown(context.Background(), "customer", "Acme", "", 2, 50)
	if err != nil {
		t.Fatalf("Drilldown failed: %v", err)
	}
	if repo.lastDrillOff != 50 || repo.lastDrillLim != 50 {
		t.Fatalf("page 2 should request offset 50 limit 50, got %d/%d", repo.lastDrillOff, repo.lastDrillLim)
	}
	if resp.Total != 120 || resp.Page != 2 {
		t.Fatalf("total/page = %d/%d", resp.Total, resp.Page)
	}
	if len(resp.Data) != 1 || resp.Data[0]["Customer"].(*string) == nil {
		t.Fatalf("row mapping broken: %+v", resp.Data)
	}
}

func TestDrilldownRejectsUnknownDimension(t *testing.T) {
	svc := newDashboardForTest(t, &fakeRecordRepo{})
	if _, err := svc.Drilldown(context.Background(), "job_id; DROP TABLE", "x", "", 1, 10); err == nil {
		t.Fatalf("unknown dimension must be rejected")
	}
}

func TestRound1Scrubbing(t *testing.T) {
	if round1(12.34) != 12.3 {
		t.Fatalf("rounding broken")
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if round1(bad) != 0 {
			t.Fatalf("non-finite values must scrub to 0")
		}
	}
}

func TestFoldTrend(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	points := foldTrend([]repos.DailyStatusCount{
		{Day: day1, Status: strp("LOCK"), Count: 3},
		{Day: day1, Status: strp("HOLD"), Count: 1},
		{Day: day2, Status: strp("LOCK"), Count: 2},
	})
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if points[0]["date"] != "2024-01-01" || points[0]["LOCK"] != int64(3) || points[0]["HOLD"] != int64(1) {
		t.Fatalf("day 1 = %v", points[0])
	}
}
