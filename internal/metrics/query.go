package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownMetric       = errors.New("unknown metric")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrUpstreamUnavailable = errors.New("metrics source unavailable")
)

// Name имя метрики
type Name string

const (
	Pageviews  Name = "pageviews"
	Visitors   Name = "visitors"
	Devices    Name = "devices"
	Geography  Name = "geography"
	TimeOnPage Name = "timeonpage"
	Visits     Name = "visits"
	Hourly     Name = "hourly"
	Timeline   Name = "timeline"
	Growth     Name = "growth"
	Engagement Name = "engagement"
	Sources    Name = "sources"
	Content    Name = "content"
	Journey    Name = "journey"
)

// Period окно запроса, отсчитывается от текущего момента
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	PeriodAll Period = "all"
)

const day = 24 * time.Hour

// ParsePeriod пустое значение - 7d
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return Period7d, nil
	case Period7d, Period30d, PeriodAll:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w: period must be one of 7d, 30d, all", ErrInvalidFilter)
}

// Length длина окна, 0 для all
func (p Period) Length() time.Duration {
	switch p {
	case Period7d:
		return 7 * day
	case Period30d:
		return 30 * day
	}
	return 0
}

// Since нижняя граница окна, нулевое время - без ограничения
func (p Period) Since(now time.Time) time.Time {
	if l := p.Length(); l > 0 {
		return now.Add(-l)
	}
	return time.Time{}
}

// Request запрос конкретной метрики со своими фильтрами
type Request interface {
	Metric() Name
}

type (
	PageviewsRequest  struct{}
	VisitorsRequest   struct{}
	DevicesRequest    struct{}
	GeographyRequest  struct{}
	TimeOnPageRequest struct{}
	GrowthRequest     struct{}
	EngagementRequest struct{}
	SourcesRequest    struct{}
	ContentRequest    struct{}
	JourneyRequest    struct{}

	VisitsRequest struct {
		Limit int
	}
	HourlyRequest struct {
		PagePath string
	}
	// TimelineRequest Month в формате 2006-01, Day в формате 2006-01-02
	TimelineRequest struct {
		Month string
		Day   string
	}
)

func (PageviewsRequest) Metric() Name  { return Pageviews }
func (VisitorsRequest) Metric() Name   { return Visitors }
func (DevicesRequest) Metric() Name    { return Devices }
func (GeographyRequest) Metric() Name  { return Geography }
func (TimeOnPageRequest) Metric() Name { return TimeOnPage }
func (VisitsRequest) Metric() Name     { return Visits }
func (HourlyRequest) Metric() Name     { return Hourly }
func (TimelineRequest) Metric() Name   { return Timeline }
func (GrowthRequest) Metric() Name     { return Growth }
func (EngagementRequest) Metric() Name { return Engagement }
func (SourcesRequest) Metric() Name    { return Sources }
func (ContentRequest) Metric() Name    { return Content }
func (JourneyRequest) Metric() Name    { return Journey }

// Query запрос метрики за период
type Query struct {
	Request Request
	Period  Period
}

// Source вычисляет метрики: по собственному хранилищу или внешнему сервису аналитики
type Source interface {
	Compute(ctx context.Context, q Query) (any, error)
}

// Params доступ к параметрам запроса, url.Values подходит
type Params interface {
	Get(key string) string
}

const (
	DefaultVisitsLimit = 50
	MaxVisitsLimit     = 500
)

func noFilters(r Request) func(Params) (Request, error) {
	return func(Params) (Request, error) { return r, nil }
}

var requestParsers = map[Name]func(Params) (Request, error){
	Pageviews:  noFilters(PageviewsRequest{}),
	Visitors:   noFilters(VisitorsRequest{}),
	Devices:    noFilters(DevicesRequest{}),
	Geography:  noFilters(GeographyRequest{}),
	TimeOnPage: noFilters(TimeOnPageRequest{}),
	Growth:     noFilters(GrowthRequest{}),
	Engagement: noFilters(EngagementRequest{}),
	Sources:    noFilters(SourcesRequest{}),
	Content:    noFilters(ContentRequest{}),
	Journey:    noFilters(JourneyRequest{}),
	Visits:     parseVisits,
	Hourly:     parseHourly,
	Timeline:   parseTimeline,
}

// ParseRequest строит типизированный запрос по имени метрики и параметрам
func ParseRequest(name string, params Params) (Request, error) {
	parse, ok := requestParsers[Name(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return parse(params)
}

// ParseQuery разбирает метрику, период и фильтры
func ParseQuery(name string, params Params) (Query, error) {
	req, err := ParseRequest(name, params)
	if err != nil {
		return Query{}, err
	}
	period, err := ParsePeriod(params.Get("period"))
	if err != nil {
		return Query{}, err
	}
	return Query{Request: req, Period: period}, nil
}

func parseVisits(p Params) (Request, error) {
	req := VisitsRequest{Limit: DefaultVisitsLimit}
	if raw := p.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxVisitsLimit {
			return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidFilter, MaxVisitsLimit)
		}
		req.Limit = n
	}
	return req, nil
}

func parseHourly(p Params) (Request, error) {
	return HourlyRequest{PagePath: strings.TrimSpace(p.Get("page_path"))}, nil
}

func parseTimeline(p Params) (Request, error) {
	req := TimelineRequest{
		Month: strings.TrimSpace(p.Get("month")),
		Day:   strings.TrimSpace(p.Get("day")),
	}
	if req.Month != "" {
		if _, err := time.Parse("2006-01", req.Month); err != nil {
			return nil, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidFilter)
		}
	}
	if req.Day != "" {
		if _, err := time.Parse("2006-01-02", req.Day); err != nil {
			return nil, fmt.Errorf("%w: day must be YYYY-MM-DD", ErrInvalidFilter)
		}
		// День однозначно задаёт месяц
		if req.Month == "" {
			req.Month = req.Day[:7]
		}
		if req.Month != req.Day[:7] {
			return nil, fmt.Errorf("%w: day is outside of month", ErrInvalidFilter)
		}
	}
	return req, nil
}
