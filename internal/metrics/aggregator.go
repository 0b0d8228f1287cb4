package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageViewLister выборка просмотров не раньше since, нулевое since - все
type PageViewLister interface {
	List(ctx context.Context, since time.Time) ([]models.PageView, error)
}

// SessionLister выборка сессий по first_visit_at не раньше since
type SessionLister interface {
	List(ctx context.Context, since time.Time) ([]models.VisitorSession, error)
}

// AggregatorConfig параметры агрегатора
type AggregatorConfig struct {
	Zone               *CivilZone
	SiteDomain         string
	ExcludedIdentities []string
}

// Aggregator считает метрики в памяти по данным собственного хранилища
type Aggregator struct {
	views      PageViewLister
	sessions   SessionLister
	zone       *CivilZone
	siteDomain string
	excluded   map[string]struct{}
	now        func() time.Time
	logger     *zap.Logger
}

// NewAggregator создаёт агрегатор
func NewAggregator(views PageViewLister, sessions SessionLister, cfg AggregatorConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	zone := cfg.Zone
	if zone == nil {
		zone = MustLoadCivilZone(DefaultCivilTimezone)
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedIdentities))
	for _, id := range cfg.ExcludedIdentities {
		excluded[strings.TrimSpace(id)] = struct{}{}
	}
	return &Aggregator{
		views:      views,
		sessions:   sessions,
		zone:       zone,
		siteDomain: strings.ToLower(strings.TrimPrefix(cfg.SiteDomain, "www.")),
		excluded:   excluded,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock подменяет часы, используется в тестах
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// dataset входные данные одной метрики после исключения идентичностей
type dataset struct {
	now      time.Time
	since    time.Time
	views    []models.PageView // по убыванию created_at
	sessions []models.VisitorSession
}

// needs что и за какой период нужно выбрать для метрики
type needs struct {
	views         bool
	sessions      bool
	viewsSince    time.Time
	sessionsSince time.Time
}

func (a *Aggregator) needsFor(req Request, since, now time.Time, period Period) needs {
	switch req.(type) {
	case VisitorsRequest:
		return needs{sessions: true, sessionsSince: since}
	case EngagementRequest:
		return needs{views: true, sessions: true, viewsSince: since, sessionsSince: since}
	case VisitsRequest:
		// Признак возврата нужен и для сессий, начатых до периода
		return needs{views: true, sessions: true, viewsSince: since}
	case GrowthRequest:
		return needs{views: true, viewsSince: now.Add(-2 * growthWindow(period))}
	default:
		return needs{views: true, viewsSince: since}
	}
}

// Compute вычисляет метрику
func (a *Aggregator) Compute(ctx context.Context, q Query) (any, error) {
	if q.Request == nil {
		return nil, fmt.Errorf("%w: metric is required", ErrUnknownMetric)
	}
	if q.Period == "" {
		q.Period = Period7d
	}

	now := a.now().UTC()
	since := q.Period.Since(now)

	data, err := a.load(ctx, a.needsFor(q.Request, since, now, q.Period))
	if err != nil {
		return nil, err
	}
	data.now = now
	data.since = since

	switch r := q.Request.(type) {
	case PageviewsRequest:
		return a.pageviews(data), nil
	case VisitorsRequest:
		return a.visitors(data), nil
	case DevicesRequest:
		return a.devices(data), nil
	case GeographyRequest:
		return a.geography(data), nil
	case TimeOnPageRequest:
		return a.timeOnPage(data), nil
	case VisitsRequest:
		return a.visits(data, r), nil
	case HourlyRequest:
		return a.hourly(data, r), nil
	case TimelineRequest:
		return a.timeline(data, r), nil
	case GrowthRequest:
		return a.growth(data, q.Period), nil
	case EngagementRequest:
		return a.engagement(data), nil
	case SourcesRequest:
		return a.sources(data), nil
	case ContentRequest:
		return a.content(data), nil
	case JourneyRequest:
		return a.journey(data), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, q.Request.Metric())
}

// load выбирает просмотры и сессии параллельно
func (a *Aggregator) load(ctx context.Context, n needs) (*dataset, error) {
	data := &dataset{}
	g, gctx := errgroup.WithContext(ctx)

	if n.views {
		g.Go(func() error {
			views, err := a.views.List(gctx, n.viewsSince)
			if err != nil {
				return fmt.Errorf("page views: %w", err)
			}
			data.views = a.excludeViews(views)
			return nil
		})
	}
	if n.sessions {
		g.Go(func() error {
			sessions, err := a.sessions.List(gctx, n.sessionsSince)
			if err != nil {
				return fmt.Errorf("visitor sessions: %w", err)
			}
			data.sessions = a.excludeSessions(sessions)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Error("Failed to load metrics input", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	sort.SliceStable(data.views, func(i, j int) bool {
		return data.views[i].CreatedAt.After(data.views[j].CreatedAt)
	})
	return data, nil
}

func (a *Aggregator) excludeViews(views []models.PageView) []models.PageView {
	if len(a.excluded) == 0 {
		return views
	}
	kept := views[:0]
	for _, v := range views {
		if _, skip := a.excluded[v.HashedIP]; !skip {
			kept = append(kept, v)
		}
	}
	return kept
}

func (a *Aggregator) excludeSessions(sessions []models.VisitorSession) []models.VisitorSession {
	if len(a.excluded) == 0 {
		return sessions
	}
	kept := sessions[:0]
	for _, s := range sessions {
		if _, skip := a.excluded[s.HashedIP]; !skip {
			kept = append(kept, s)
		}
	}
	return kept
}

// counted просмотры, учитываемые в счётчиках: без строк обновления времени
func (d *dataset) counted() []models.PageView {
	out := make([]models.PageView, 0, len(d.views))
	for _, v := range d.views {
		if !v.IsUpdate {
			out = append(out, v)
		}
	}
	return out
}

// timed строки с известным временем на странице
func (d *dataset) timed() []models.PageView {
	out := make([]models.PageView, 0, len(d.views))
	for _, v := range d.views {
		if v.TimeOnPage != nil {
			out = append(out, v)
		}
	}
	return out
}

func pathOf(v models.PageView) string {
	return models.NormalizePath(v.PagePath)
}
