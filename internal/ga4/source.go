package ga4

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/SergeiKhy/site-analytics/internal/config"
	"github.com/SergeiKhy/site-analytics/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

// earliestDate первая дата, за которую GA4 хранит данные
const earliestDate = "2015-08-14"

// reportRunner выполняет один отчёт Data API
type reportRunner interface {
	RunReport(ctx context.Context, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

type serviceRunner struct {
	svc      *analyticsdata.Service
	property string
}

func (r *serviceRunner) RunReport(ctx context.Context, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	return r.svc.Properties.RunReport(r.property, req).Context(ctx).Do()
}

// Source метрики из Google Analytics 4 для части метрик собственного агрегатора
type Source struct {
	runner reportRunner
	logger *zap.Logger
}

// New без идентификатора ресурса или ключа сервисного аккаунта источник отвечает ErrUpstreamUnavailable
func New(ctx context.Context, cfg config.GA4Config, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PropertyID == "" || cfg.CredentialsJSON == "" {
		logger.Warn("GA4 source is not configured")
		return &Source{logger: logger}, nil
	}

	svc, err := analyticsdata.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to create GA4 client: %w", err)
	}
	return newSource(&serviceRunner{svc: svc, property: "properties/" + cfg.PropertyID}, logger), nil
}

func newSource(runner reportRunner, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{runner: runner, logger: logger}
}

// Compute поддерживает pageviews, visitors, devices, geography, timeonpage и hourly
func (s *Source) Compute(ctx context.Context, q metrics.Query) (any, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("%w: GA4 property or credentials not configured", metrics.ErrUpstreamUnavailable)
	}
	if q.Request == nil {
		return nil, fmt.Errorf("%w: metric is required", metrics.ErrUnknownMetric)
	}

	r := &reports{source: s, dates: dateRange(q.Period)}
	var res any
	switch req := q.Request.(type) {
	case metrics.PageviewsRequest:
		res = r.pageviews(ctx)
	case metrics.VisitorsRequest:
		res = r.visitors(ctx)
	case metrics.DevicesRequest:
		res = r.devices(ctx)
	case metrics.GeographyRequest:
		res = r.geography(ctx)
	case metrics.TimeOnPageRequest:
		res = r.timeOnPage(ctx)
	case metrics.HourlyRequest:
		res = r.hourly(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q is not available from GA4", metrics.ErrUnknownMetric, q.Request.Metric())
	}

	if r.ok.Load() == 0 {
		return nil, fmt.Errorf("%w: all GA4 reports failed", metrics.ErrUpstreamUnavailable)
	}
	return res, nil
}

func dateRange(p metrics.Period) []*analyticsdata.DateRange {
	start := earliestDate
	switch p {
	case metrics.Period7d, "":
		start = "7daysAgo"
	case metrics.Period30d:
		start = "30daysAgo"
	}
	return []*analyticsdata.DateRange{{StartDate: start, EndDate: "today"}}
}

// reports выполнение подотчётов одного запроса. Упавший подотчёт даёт пустую секцию.
type reports struct {
	source *Source
	dates  []*analyticsdata.DateRange
	ok     atomic.Int32
}

func (r *reports) run(ctx context.Context, req *analyticsdata.RunReportRequest) []*analyticsdata.Row {
	req.DateRanges = r.dates
	resp, err := r.source.runner.RunReport(ctx, req)
	if err != nil {
		r.source.logger.Warn("GA4 report failed", zap.Error(err))
		return nil
	}
	r.ok.Add(1)
	return resp.Rows
}

func dims(names ...string) []*analyticsdata.Dimension {
	out := make([]*analyticsdata.Dimension, len(names))
	for i, n := range names {
		out[i] = &analyticsdata.Dimension{Name: n}
	}
	return out
}

func mets(names ...string) []*analyticsdata.Metric {
	out := make([]*analyticsdata.Metric, len(names))
	for i, n := range names {
		out[i] = &analyticsdata.Metric{Name: n}
	}
	return out
}

func byMetricDesc(name string) []*analyticsdata.OrderBy {
	return []*analyticsdata.OrderBy{{Metric: &analyticsdata.MetricOrderBy{MetricName: name}, Desc: true}}
}

func byDimension(name string) []*analyticsdata.OrderBy {
	return []*analyticsdata.OrderBy{{Dimension: &analyticsdata.DimensionOrderBy{DimensionName: name}}}
}

func dimension(row *analyticsdata.Row, i int) string {
	if row == nil || i >= len(row.DimensionValues) || row.DimensionValues[i] == nil {
		return ""
	}
	return row.DimensionValues[i].Value
}

func metricValue(row *analyticsdata.Row, i int) float64 {
	if row == nil || i >= len(row.MetricValues) || row.MetricValues[i] == nil {
		return 0
	}
	v, err := strconv.ParseFloat(row.MetricValues[i].Value, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstRow(rows []*analyticsdata.Row) *analyticsdata.Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func roundInt(v float64) int {
	return int(v + 0.5)
}

func (r *reports) pageviews(ctx context.Context) metrics.PageviewsResult {
	var total, top, daily []*analyticsdata.Row
	var g errgroup.Group
	g.Go(func() error {
		total = r.run(ctx, &analyticsdata.RunReportRequest{Metrics: mets("screenPageViews")})
		return nil
	})
	g.Go(func() error {
		top = r.run(ctx, &analyticsdata.RunReportRequest{
			Dimensions: dims("pagePath"),
			Metrics:    mets("screenPageViews"),
			OrderBys:   byMetricDesc("screenPageViews"),
			Limit:      10,
		})
		return nil
	})
	g.Go(func() error {
		daily = r.run(ctx, &analyticsdata.RunReportRequest{
			Dimensions: dims("date"),
			Metrics:    mets("screenPageViews"),
			OrderBys:   byDimension("date"),
		})
		return nil
	})
	_ = g.Wait()

	res := metrics.PageviewsResult{
		Total:    roundInt(metricValue(firstRow(total), 0)),
		TopPages: make([]metrics.PathCount, 0, len(top)),
		Daily:    make([]metrics.DateCount, 0, len(daily)),
	}
	for _, row := range top {
		res.TopPages = append(res.TopPages, metrics.PathCount{Path: dimension(row, 0), Count: roundInt(metricValue(row, 0))})
	}
	for _, row := range daily {
		res.Daily = append(res.Daily, metrics.DateCount{Date: isoDate(dimension(row, 0)), Count: roundInt(metricValue(row, 0))})
	}
	return res
}

// isoDate YYYYMMDD в YYYY-MM-DD
func isoDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

func (r *reports) visitors(ctx context.Context) metrics.VisitorsResult {
	row := firstRow(r.run(ctx, &analyticsdata.RunReportRequest{Metrics: mets("totalUsers", "newUsers", "sessions")}))
	return metrics.VisitorsResult{
		UniqueVisitors: roundInt(metricValue(row, 0)),
		NewVisitors:    roundInt(metricValue(row, 1)),
		TotalSessions:  roundInt(metricValue(row, 2)),
	}
}

func (r *reports) devices(ctx context.Context) metrics.DevicesResult {
	rows := r.run(ctx, &analyticsdata.RunReportRequest{
		Dimensions: dims("deviceCategory"),
		Metrics:    mets("screenPageViews"),
		OrderBys:   byMetricDesc("screenPageViews"),
	})
	res := metrics.DevicesResult{Devices: make([]metrics.DeviceCount, 0, len(rows))}
	for _, row := range rows {
		res.Devices = append(res.Devices, metrics.DeviceCount{Type: dimension(row, 0), Count: roundInt(metricValue(row, 0))})
	}
	return res
}

func (r *reports) geography(ctx context.Context) metrics.GeographyResult {
	rows := r.run(ctx, &analyticsdata.RunReportRequest{
		Dimensions: dims("countryId"),
		Metrics:    mets("screenPageViews"),
		OrderBys:   byMetricDesc("screenPageViews"),
		Limit:      20,
	})
	res := metrics.GeographyResult{Countries: make([]metrics.CountryCount, 0, len(rows))}
	for _, row := range rows {
		country := dimension(row, 0)
		if country == "" || country == "(not set)" {
			country = "Unknown"
		}
		res.Countries = append(res.Countries, metrics.CountryCount{Country: country, Count: roundInt(metricValue(row, 0))})
	}
	return res
}

// timeOnPage среднее время - userEngagementDuration на просмотр
func (r *reports) timeOnPage(ctx context.Context) metrics.TimeOnPageResult {
	var overall, pages []*analyticsdata.Row
	var g errgroup.Group
	g.Go(func() error {
		overall = r.run(ctx, &analyticsdata.RunReportRequest{Metrics: mets("userEngagementDuration", "screenPageViews")})
		return nil
	})
	g.Go(func() error {
		pages = r.run(ctx, &analyticsdata.RunReportRequest{
			Dimensions: dims("pagePath"),
			Metrics:    mets("userEngagementDuration", "screenPageViews"),
			OrderBys:   byMetricDesc("userEngagementDuration"),
			Limit:      50,
		})
		return nil
	})
	_ = g.Wait()

	average := func(row *analyticsdata.Row) int {
		views := metricValue(row, 1)
		if views == 0 {
			return 0
		}
		return roundInt(metricValue(row, 0) / views)
	}

	res := metrics.TimeOnPageResult{
		OverallAverage: average(firstRow(overall)),
		ByPage:         make([]metrics.PathAverage, 0, 10),
	}
	for _, row := range pages {
		res.ByPage = append(res.ByPage, metrics.PathAverage{Path: dimension(row, 0), Average: average(row)})
	}
	sort.SliceStable(res.ByPage, func(i, j int) bool {
		return res.ByPage[i].Average > res.ByPage[j].Average
	})
	if len(res.ByPage) > 10 {
		res.ByPage = res.ByPage[:10]
	}
	return res
}

func (r *reports) hourly(ctx context.Context, req metrics.HourlyRequest) metrics.HourlyResult {
	report := &analyticsdata.RunReportRequest{
		Dimensions: dims("hour"),
		Metrics:    mets("screenPageViews"),
	}
	if req.PagePath != "" {
		report.DimensionFilter = &analyticsdata.FilterExpression{
			Filter: &analyticsdata.Filter{
				FieldName:    "pagePath",
				StringFilter: &analyticsdata.StringFilter{MatchType: "EXACT", Value: req.PagePath},
			},
		}
	}

	res := metrics.HourlyResult{PagePath: req.PagePath, Hours: make([]metrics.HourCount, 24)}
	for h := range res.Hours {
		res.Hours[h].Hour = h
	}
	for _, row := range r.run(ctx, report) {
		h, err := strconv.Atoi(dimension(row, 0))
		if err != nil || h < 0 || h > 23 {
			continue
		}
		n := roundInt(metricValue(row, 0))
		res.Hours[h].Count += n
		res.Total += n
	}
	return res
}
