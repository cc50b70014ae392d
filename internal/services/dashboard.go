package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/repos"
)

const defaultCacheTTL = 300 * time.Second

// Filters scope dashboard reads. Values within a list are OR'd, dimensions
// AND'd; the "Blank" category sentinel matches NULL and empty categories.
type Filters struct {
	Month      string
	Customers  []string
	Categories []string
	Statuses   []string
	Products   []string
}

func (f Filters) toRecordFilter(month string) repos.RecordFilter {
	return repos.RecordFilter{
		Month:      month,
		Customers:  f.Customers,
		Categories: f.Categories,
		Statuses:   f.Statuses,
		Products:   f.Products,
	}
}

type Metrics struct {
	TotalOrders       int64   `json:"total_orders"`
	LockCount         int64   `json:"lock_count"`
	HoldCount         int64   `json:"hold_count"`
	FailureCount      int64   `json:"failure_count"`
	CanceledCount     int64   `json:"canceled_count"`
	ResumeSuccessRate float64 `json:"resume_success_rate"`
	HoldRate          float64 `json:"hold_rate"`
	FailureRate       float64 `json:"failure_rate"`
}

type TopItem struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

type KPIBlock struct {
	Metrics
	TopCustomer *TopItem `json:"top_customer"`
	TopCategory *TopItem `json:"top_category"`
}

// MoMChange holds month-over-month deltas: percent change for counts (nil
// when the previous month had none), point difference for rates.
type MoMChange struct {
	TotalOrders       *float64 `json:"total_orders"`
	LockCount         *float64 `json:"lock_count"`
	HoldCount         *float64 `json:"hold_count"`
	FailureCount      *float64 `json:"failure_count"`
	ResumeSuccessRate *float64 `json:"resume_success_rate"`
	HoldRate          *float64 `json:"hold_rate"`
	FailureRate       *float64 `json:"failure_rate"`
}

type ChartSlice struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// TrendPoint is one day of the trend chart: a "date" key plus one key per
// status seen that day.
type TrendPoint map[string]any

type ChartSet struct {
	ByCustomer []ChartSlice `json:"by_customer"`
	ByCategory []ChartSlice `json:"by_category"`
	ByStatus   []ChartSlice `json:"by_status"`
	Trend      []TrendPoint `json:"trend"`
}

type RootCauseItem struct {
	RootCause       string  `json:"root_cause"`
	Count           int64   `json:"count"`
	ImprovementPlan *string `json:"improvement_plan"`
	Percent         float64 `json:"percent"`
}

type FilterOptions struct {
	Months     []string `json:"months"`
	Customers  []string `json:"customers"`
	Categories []string `json:"categories"`
	Statuses   []string `json:"statuses"`
	Products   []string `json:"products"`
}

type SummaryResponse struct {
	KPIs KPIBlock `json:"kpis"`
	// PrevMonthKPIs and MoMChange hold *Metrics / *MoMChange when a previous
	// month exists and an empty object otherwise; the payload contract never
	// emits null for these blocks.
	PrevMonthKPIs any             `json:"prev_month_kpis"`
	MoMChange     any             `json:"mom_change"`
	Charts        ChartSet        `json:"charts"`
	RootCauses    []RootCauseItem `json:"root_causes"`
	Filters       FilterOptions   `json:"filters"`
	SelectedMonth *string         `json:"selected_month"`
	PrevMonth     *string         `json:"prev_month"`
	Error         string          `json:"error,omitempty"`
}

// TreeNode is one level of the decomposition tree. Percent is relative to
// the parent node; the root carries none.
type TreeNode struct {
	Name     string      `json:"name"`
	Value    int64       `json:"value"`
	Percent  *float64    `json:"percent,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

type DecompositionResponse struct {
	Data *TreeNode `json:"data"`
}

type ComparisonMonth struct {
	Month       string  `json:"month"`
	Label       string  `json:"label"`
	Total       int64   `json:"total"`
	Lock        int64   `json:"lock"`
	Hold        int64   `json:"hold"`
	Failure     int64   `json:"failure"`
	Canceled    int64   `json:"canceled"`
	LockRate    float64 `json:"lock_rate"`
	HoldRate    float64 `json:"hold_rate"`
	FailureRate float64 `json:"failure_rate"`
}

type ComparisonAggregate struct {
	TotalOrders        int64   `json:"total_orders"`
	OverallFailureRate float64 `json:"overall_failure_rate"`
	AvgMonthlyRate     float64 `json:"avg_monthly_rate"`
	TrendChange        float64 `json:"trend_change"`
}

type ComparisonResponse struct {
	MonthlyData []ComparisonMonth    `json:"monthly_data"`
	Aggregated  *ComparisonAggregate `json:"aggregated"`
}

type FailureTrendPoint struct {
	Month       string  `json:"month"`
	Label       string  `json:"label"`
	Total       int64   `json:"total"`
	Canceled    int64   `json:"canceled"`
	FailureRate float64 `json:"failure_rate"`
}

type FailureTrendResponse struct {
	Data []FailureTrendPoint `json:"data"`
}

type DrilldownResponse struct {
	Data      []map[string]any `json:"data"`
	Total     int64            `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	Columns   []string         `json:"columns"`
	Dimension string           `json:"dimension"`
	Value     string           `json:"value"`
}

type DashboardService interface {
	// Summary never fails: query errors degrade to an Error field with
	// whatever partial structures were assembled.
	Summary(ctx context.Context, f Filters) *SummaryResponse
	Decomposition(ctx context.Context, month string) (*DecompositionResponse, error)
	Comparison(ctx context.Context, months int) (*ComparisonResponse, error)
	FailureTrend(ctx context.Context, months int) (*FailureTrendResponse, error)
	Drilldown(ctx context.Context, dimension, value, month string, page, pageSize int) (*DrilldownResponse, error)
}

type dashboardService struct {
	db      *gorm.DB
	log     *logger.Logger
	recRepo repos.AnalyticalRecordRepo
	cache   cache.Cache
	ttl     time.Duration
}

func NewDashboardService(
	db *gorm.DB,
	baseLog *logger.Logger,
	recRepo repos.AnalyticalRecordRepo,
	c cache.Cache,
	ttl time.Duration,
) DashboardService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &dashboardService{
		db:      db,
		log:     baseLog.With("service", "DashboardService"),
		recRepo: recRepo,
		cache:   c,
		ttl:     ttl,
	}
}

// round1 rounds to one decimal, scrubbing non-finite inputs to 0 so every
// emitted float is JSON-safe.
func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

func pctOf(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

// keyPart normalizes one cache key segment; "-" stands in for absence so
// keys stay fixed-arity.
func keyPart(values ...string) string {
	joined := strings.Join(values, ",")
	if joined == "" {
		return "-"
	}
	return joined
}

func summaryCacheKey(f Filters, month string) string {
	return fmt.Sprintf("dashboard:summary:v1:%s:%s:%s:%s:%s",
		keyPart(month),
		keyPart(f.Customers...),
		keyPart(f.Categories...),
		keyPart(f.Statuses...),
		keyPart(f.Products...),
	)
}

func calcMetrics(t *repos.KPITotals) Metrics {
	total := t.TotalQty
	lock, hold, failure, canceled := t.LockQty, t.HoldQty, t.FailureQty, t.CanceledQty
	// Quantity sums drive the KPIs unless every quantity is zero while rows
	// exist, in which case row counts stand in.
	if total == 0 && t.TotalCount > 0 {
		total = t.TotalCount
		lock, hold, failure, canceled = t.LockCount, t.HoldCount, t.FailureCount, t.CanceledCount
	}

	m := Metrics{
		TotalOrders:   total,
		LockCount:     lock,
		HoldCount:     hold,
		FailureCount:  failure,
		CanceledCount: canceled,
	}
	if total > 0 {
		m.ResumeSuccessRate = pctOf(total-canceled, total)
		m.HoldRate = pctOf(hold, total)
		m.FailureRate = pctOf(canceled, total)
	}
	return m
}

func calcMoMChange(current, prev Metrics) *MoMChange {
	pct := func(curr, prv int64) *float64 {
		if prv == 0 {
			return nil
		}
		v := round1(float64(curr-prv) / float64(prv) * 100)
		return &v
	}
	pts := func(curr, prv float64) *float64 {
		v := round1(curr - prv)
		return &v
	}
	return &MoMChange{
		TotalOrders:       pct(current.TotalOrders, prev.TotalOrders),
		LockCount:         pct(current.LockCount, prev.LockCount),
		HoldCount:         pct(current.HoldCount, prev.HoldCount),
		FailureCount:      pct(current.FailureCount, prev.FailureCount),
		ResumeSuccessRate: pts(current.ResumeSuccessRate, prev.ResumeSuccessRate),
		HoldRate:          pts(current.HoldRate, prev.HoldRate),
		FailureRate:       pts(current.FailureRate, prev.FailureRate),
	}
}

func groupName(v *string) string {
	if v == nil || *v == "" {
		return "Blank"
	}
	return *v
}

func chartFromGroups(groups []repos.GroupCount) []ChartSlice {
	var total int64
	for _, g := range groups {
		total += g.Count
	}
	out := make([]ChartSlice, 0, len(groups))
	for _, g := range groups {
		out = append(out, ChartSlice{
			Name:    groupName(g.Value),
			Count:   g.Count,
			Percent: pctOf(g.Count, total),
		})
	}
	return out
}

func topItemFromGroups(groups []repos.GroupCount) *TopItem {
	var total int64
	for _, g := range groups {
		total += g.Count
	}
	if len(groups) == 0 || total == 0 {
		return nil
	}
	return &TopItem{
		Name:    groupName(groups[0].Value),
		Percent: pctOf(groups[0].Count, total),
	}
}

// resolveMonths returns (available, selected, previous). Previous is the
// next-older available month after the selected one.
func (s *dashboardService) resolveMonths(ctx context.Context, requested string) ([]string, string, string, error) {
	months, err := s.recRepo.Months(ctx, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("available months: %w", err)
	}
	selected := requested
	if selected == "" && len(months) > 0 {
		selected = months[0]
	}
	prev := ""
	for i, m := range months {
		if m == selected && i+1 < len(months) {
			prev = months[i+1]
			break
		}
	}
	return months, selected, prev, nil
}

func (s *dashboardService) Summary(ctx context.Context, f Filters) *SummaryResponse {
	resp := &SummaryResponse{
		PrevMonthKPIs: map[string]any{},
		MoMChange:     map[string]any{},
		Charts:        ChartSet{ByCustomer: []ChartSlice{}, ByCategory: []ChartSlice{}, ByStatus: []ChartSlice{}, Trend: []TrendPoint{}},
		RootCauses:    []RootCauseItem{},
		Filters:       FilterOptions{Months: []string{}, Customers: []string{}, Categories: []string{}, Statuses: []string{}, Products: []string{}},
	}

	months, selected, prev, err := s.resolveMonths(ctx, f.Month)
	if err != nil {
		s.log.Error("Summary degraded", "error", err)
		resp.Error = err.Error()
		return resp
	}

	key := summaryCacheKey(f, selected)
	var cached SummaryResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached
	}

	if selected != "" {
		resp.SelectedMonth = &selected
	}
	if prev != "" {
		resp.PrevMonth = &prev
	}
	resp.Filters.Months = months

	current := f.toRecordFilter(selected)

	var (
		currentTotals *repos.KPITotals
		prevTotals    *repos.KPITotals
		customers     []repos.GroupCount
		categories    []repos.GroupCount
		statuses      []repos.GroupCount
		daily         []repos.DailyStatusCount
		rootCauses    []repos.RootCauseCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		currentTotals, err = s.recRepo.KPITotals(gctx, nil, current)
		return err
	})
	if prev != "" {
		g.Go(func() error {
			var err error
			prevTotals, err = s.recRepo.KPITotals(gctx, nil, f.toRecordFilter(prev))
			return err
		})
	}
	g.Go(func() error {
		var err error
		customers, err = s.recRepo.GroupCounts(gctx, nil, current, "customer", 0)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.recRepo.GroupCounts(gctx, nil, current, "category", 0)
		return err
	})
	g.Go(func() error {
		var err error
		statuses, err = s.recRepo.GroupCounts(gctx, nil, current, "status", 0)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.recRepo.DailyStatusCounts(gctx, nil, current)
		return err
	})
	g.Go(func() error {
		var err error
		rootCauses, err = s.recRepo.RootCauses(gctx, nil, current, 20)
		return err
	})
	for _, dim := range []string{"customer", "category", "status", "product"} {
		dim := dim
		g.Go(func() error {
			values, err := s.recRepo.DistinctValues(gctx, nil, dim, selected)
			if err != nil {
				return err
			}
			switch dim {
			case "customer":
				resp.Filters.Customers = values
			case "category":
				resp.Filters.Categories = values
			case "status":
				resp.Filters.Statuses = values
			case "product":
				resp.Filters.Products = values
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("Summary degraded", "error", err)
		resp.Error = err.Error()
		return resp
	}

	kpis := calcMetrics(currentTotals)
	resp.KPIs = KPIBlock{
		Metrics:     kpis,
		TopCustomer: topItemFromGroups(customers),
		TopCategory: topItemFromGroups(categories),
	}
	if prevTotals != nil {
		prevKPIs := calcMetrics(prevTotals)
		resp.PrevMonthKPIs = &prevKPIs
		resp.MoMChange = calcMoMChange(kpis, prevKPIs)
	}

	resp.Charts.ByCustomer = chartFromGroups(customers)
	resp.Charts.ByCategory = chartFromGroups(categories)
	resp.Charts.ByStatus = chartFromGroups(statuses)
	resp.Charts.Trend = foldTrend(daily)

	for _, rc := range rootCauses {
		resp.RootCauses = append(resp.RootCauses, RootCauseItem{
			RootCause:       rc.RootCause,
			Count:           rc.Count,
			ImprovementPlan: rc.ImprovementPlan,
			Percent:         pctOf(rc.Count, kpis.TotalOrders),
		})
	}

	s.cache.Set(ctx, key, resp, s.ttl)
	return resp
}

// foldTrend pivots (day, status, count) rows into one point per day keyed
// by status, preserving day order.
func foldTrend(daily []repos.DailyStatusCount) []TrendPoint {
	points := []TrendPoint{}
	index := map[string]TrendPoint{}
	for _, row := range daily {
		day := row.Day.Format("2006-01-02")
		point, ok := index[day]
		if !ok {
			point = TrendPoint{"date": day}
			index[day] = point
			points = append(points, point)
		}
		if row.Status != nil {
			point[*row.Status] = row.Count
		}
	}
	return points
}

func (s *dashboardService) Decomposition(ctx context.Context, month string) (*DecompositionResponse, error) {
	_, selected, _, err := s.resolveMonths(ctx, month)
	if err != nil {
		return nil, err
	}
	if selected == "" {
		return &DecompositionResponse{Data: &TreeNode{Name: "Total", Children: []*TreeNode{}}}, nil
	}

	key := fmt.Sprintf("dashboard:decomposition:v1:%s", keyPart(selected))
	var cached DecompositionResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.recRepo.DecompositionRows(ctx, nil, repos.RecordFilter{Month: selected})
	if err != nil {
		return nil, fmt.Errorf("decomposition rows: %w", err)
	}

	resp := &DecompositionResponse{Data: buildDecompositionTree(rows)}
	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, nil
}

// buildDecompositionTree folds grouped rows into the four-level
// status -> customer -> category -> root-cause tree. Truncation to the top
// 10 customers per status and top 5 root causes per category happens after
// the full tree is aggregated, so percentages reflect complete totals.
func buildDecompositionTree(rows []repos.DecompositionRow) *TreeNode {
	type leafKey struct{ status, customer, category, rootCause string }
	counts := map[leafKey]int64{}
	var total int64
	for _, row := range rows {
		total += row.Count
		if row.Status == nil || *row.Status == "" {
			continue
		}
		k := leafKey{
			status:    *row.Status,
			customer:  orLabel(row.Customer, "Blank"),
			category:  orLabel(row.Category, "Unknown"),
			rootCause: orLabel(row.RootCause, "Unknown"),
		}
		counts[k] += row.Count
	}

	root := &TreeNode{Name: "Total", Value: total, Children: []*TreeNode{}}
	statusNodes := map[string]*TreeNode{}
	customerNodes := map[[2]string]*TreeNode{}
	categoryNodes := map[[3]string]*TreeNode{}

	keys := make([]leafKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.status != b.status {
			return a.status < b.status
		}
		if a.customer != b.customer {
			return a.customer < b.customer
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.rootCause < b.rootCause
	})

	for _, k := range keys {
		count := counts[k]

		sn, ok := statusNodes[k.status]
		if !ok {
			sn = &TreeNode{Name: k.status, Children: []*TreeNode{}}
			statusNodes[k.status] = sn
			root.Children = append(root.Children, sn)
		}
		sn.Value += count

		ck := [2]string{k.status, k.customer}
		cn, ok := customerNodes[ck]
		if !ok {
			cn = &TreeNode{Name: k.customer, Children: []*TreeNode{}}
			customerNodes[ck] = cn
			sn.Children = append(sn.Children, cn)
		}
		cn.Value += count

		gk := [3]string{k.status, k.customer, k.category}
		gn, ok := categoryNodes[gk]
		if !ok {
			gn = &TreeNode{Name: k.category, Children: []*TreeNode{}}
			categoryNodes[gk] = gn
			cn.Children = append(cn.Children, gn)
		}
		gn.Value += count

		gn.Children = append(gn.Children, &TreeNode{Name: k.rootCause, Value: count})
	}

	for _, sn := range root.Children {
		setPercent(sn, root.Value)
		for _, cn := range sn.Children {
			setPercent(cn, sn.Value)
			for _, gn := range cn.Children {
				setPercent(gn, cn.Value)
				sortByValueDesc(gn.Children)
				if len(gn.Children) > 5 {
					gn.Children = gn.Children[:5]
				}
				for _, rn := range gn.Children {
					setPercent(rn, gn.Value)
				}
			}
		}
		sortByValueDesc(sn.Children)
		if len(sn.Children) > 10 {
			sn.Children = sn.Children[:10]
		}
	}
	return root
}

func orLabel(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func setPercent(node *TreeNode, parentTotal int64) {
	p := pctOf(node.Value, parentTotal)
	node.Percent = &p
}

func sortByValueDesc(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Value > nodes[j].Value })
}

func (s *dashboardService) Comparison(ctx context.Context, months int) (*ComparisonResponse, error) {
	if months < 2 {
		months = 6
	}
	if months > 12 {
		months = 12
	}

	key := fmt.Sprintf("dashboard:comparison:v1:%d", months)
	var cached ComparisonResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	available, err := s.recRepo.Months(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("available months: %w", err)
	}
	if len(available) > months {
		available = available[:months]
	}
	// Months arrive newest-first; the response reads chronologically.
	targets := make([]string, len(available))
	for i, m := range available {
		targets[len(available)-1-i] = m
	}

	resp := &ComparisonResponse{MonthlyData: []ComparisonMonth{}}
	if len(targets) == 0 {
		return resp, nil
	}

	rollups, err := s.recRepo.MonthlyRollups(ctx, nil, targets)
	if err != nil {
		return nil, fmt.Errorf("monthly rollups: %w", err)
	}
	for _, r := range rollups {
		resp.MonthlyData = append(resp.MonthlyData, ComparisonMonth{
			Month:       r.Month,
			Label:       r.Month,
			Total:       r.Total,
			Lock:        r.Lock,
			Hold:        r.Hold,
			Failure:     r.Failure,
			Canceled:    r.Canceled,
			LockRate:    pctOf(r.Lock, r.Total),
			HoldRate:    pctOf(r.Hold, r.Total),
			FailureRate: pctOf(r.Canceled, r.Total),
		})
	}

	if len(resp.MonthlyData) > 0 {
		var totalOrders, totalCanceled int64
		var rateSum float64
		for _, m := range resp.MonthlyData {
			totalOrders += m.Total
			totalCanceled += m.Canceled
			rateSum += m.FailureRate
		}
		first := resp.MonthlyData[0]
		last := resp.MonthlyData[len(resp.MonthlyData)-1]
		resp.Aggregated = &ComparisonAggregate{
			TotalOrders:        totalOrders,
			OverallFailureRate: pctOf(totalCanceled, totalOrders),
			AvgMonthlyRate:     round1(rateSum / float64(len(resp.MonthlyData))),
			TrendChange:        round1(last.FailureRate - first.FailureRate),
		}
	}

	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, nil
}

func (s *dashboardService) FailureTrend(ctx context.Context, months int) (*FailureTrendResponse, error) {
	if months < 1 {
		months = 6
	}
	if months > 12 {
		months = 12
	}

	key := fmt.Sprintf("dashboard:failure_trend:v1:%d", months)
	var cached FailureTrendResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	available, err := s.recRepo.Months(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("available months: %w", err)
	}
	if len(available) > months {
		available = available[:months]
	}
	targets := make([]string, len(available))
	for i, m := range available {
		targets[len(available)-1-i] = m
	}

	resp := &FailureTrendResponse{Data: []FailureTrendPoint{}}
	if len(targets) == 0 {
		return resp, nil
	}

	rollups, err := s.recRepo.MonthlyRollups(ctx, nil, targets)
	if err != nil {
		return nil, fmt.Errorf("monthly rollups: %w", err)
	}
	for _, r := range rollups {
		resp.Data = append(resp.Data, FailureTrendPoint{
			Month:       r.Month,
			Label:       r.Month,
			Total:       r.Total,
			Canceled:    r.Canceled,
			FailureRate: pctOf(r.Canceled, r.Total),
		})
	}

	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, nil
}

func (s *dashboardService) Drilldown(ctx context.Context, dimension, value, month string, page, pageSize int) (*DrilldownResponse, error) {
	if _, ok := repos.DimensionColumn(dimension); !ok {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	_, selected, _, err := s.resolveMonths(ctx, month)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("dashboard:drilldown:v1:%s:%s:%s:%d:%d",
		keyPart(dimension), keyPart(value), keyPart(selected), page, pageSize)
	var cached DrilldownResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	records, total, err := s.recRepo.Drilldown(ctx, nil, repos.RecordFilter{Month: selected},
		dimension, value, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("drilldown: %w", err)
	}

	resp := &DrilldownResponse{
		Data:      make([]map[string]any, 0, len(records)),
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Columns:   []string{},
		Dimension: dimension,
		Value:     value,
	}
	for _, rec := range records {
		var day any
		if rec.ReportingDay != nil {
			day = rec.ReportingDay.Format("2006-01-02")
		}
		resp.Data = append(resp.Data, map[string]any{
			"Production Order No.": rec.Quantity,
			"Customer":             rec.Customer,
			"Category":             rec.Category,
			"Product":              rec.Product,
			"Status":               rec.Status,
			"Current status":       rec.CurrentStatus,
			"Root cause":           rec.RootCause,
			"Reporting day":        day,
		})
	}
	if len(resp.Data) > 0 {
		resp.Columns = []string{
			"Production Order No.", "Customer", "Category", "Product",
			"Status", "Current status", "Root cause", "Reporting day",
		}
	}

	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, nil
}
