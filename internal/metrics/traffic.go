package metrics

import (
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
)

type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type PageviewsResult struct {
	Total    int         `json:"total"`
	TopPages []PathCount `json:"top_pages"`
	Daily    []DateCount `json:"daily"`
}

type VisitorsResult struct {
	UniqueVisitors int `json:"unique_visitors"`
	NewVisitors    int `json:"new_visitors"`
	TotalSessions  int `json:"total_sessions"`
}

type DeviceCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type DevicesResult struct {
	Devices []DeviceCount `json:"devices"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

type GeographyResult struct {
	Countries []CountryCount `json:"countries"`
}

type PathAverage struct {
	Path    string `json:"path"`
	Average int    `json:"average"`
}

type TimeOnPageResult struct {
	OverallAverage int           `json:"overall_average"`
	ByPage         []PathAverage `json:"by_page"`
}

// Visit запись о посещении, время в UTC и в гражданском поясе
type Visit struct {
	Time      time.Time `json:"time"`
	LocalTime string    `json:"local_time"`
	Path      string    `json:"path"`
	Title     *string   `json:"title"`
	Country   string    `json:"country"`
	Device    string    `json:"device"`
	Returning bool      `json:"returning"`
}

type VisitsResult struct {
	Visits []Visit `json:"visits"`
}

const (
	topPagesLimit     = 10
	topCountriesLimit = 20
	unknownCountry    = "Unknown"
)

func (a *Aggregator) pageviews(d *dataset) PageviewsResult {
	views := d.counted()
	pages := newTally()
	days := newTally()
	for _, v := range views {
		pages.add(pathOf(v), 1)
		days.add(a.zone.ToCivil(v.CreatedAt).DateKey(), 1)
	}

	res := PageviewsResult{
		Total:    len(views),
		TopPages: make([]PathCount, 0, topPagesLimit),
		Daily:    make([]DateCount, 0, len(days.keys)),
	}
	for _, e := range pages.top(topPagesLimit) {
		res.TopPages = append(res.TopPages, PathCount{Path: e.Key, Count: e.Count})
	}
	for _, key := range sortedKeys(days) {
		res.Daily = append(res.Daily, DateCount{Date: key, Count: days.get(key)})
	}
	return res
}

func (a *Aggregator) visitors(d *dataset) VisitorsResult {
	unique := make(map[string]struct{}, len(d.sessions))
	res := VisitorsResult{TotalSessions: len(d.sessions)}
	for _, s := range d.sessions {
		unique[s.HashedIP] = struct{}{}
		if s.IsNewVisitor {
			res.NewVisitors++
		}
	}
	res.UniqueVisitors = len(unique)
	return res
}

func (a *Aggregator) devices(d *dataset) DevicesResult {
	types := newTally()
	for _, v := range d.counted() {
		t := v.DeviceType
		if t == "" {
			t = models.DeviceDesktop
		}
		types.add(t, 1)
	}
	res := DevicesResult{Devices: make([]DeviceCount, 0, len(types.keys))}
	for _, e := range types.top(0) {
		res.Devices = append(res.Devices, DeviceCount{Type: e.Key, Count: e.Count})
	}
	return res
}

func (a *Aggregator) geography(d *dataset) GeographyResult {
	countries := newTally()
	for _, v := range d.counted() {
		countries.add(v.CountryOr(unknownCountry), 1)
	}
	res := GeographyResult{Countries: make([]CountryCount, 0, topCountriesLimit)}
	for _, e := range countries.top(topCountriesLimit) {
		res.Countries = append(res.Countries, CountryCount{Country: e.Key, Count: e.Count})
	}
	return res
}

func (a *Aggregator) timeOnPage(d *dataset) TimeOnPageResult {
	var overall mean
	order := newTally()
	perPage := make(map[string]*mean)
	for _, v := range d.timed() {
		t := float64(*v.TimeOnPage)
		overall.add(t)
		path := pathOf(v)
		m, ok := perPage[path]
		if !ok {
			m = &mean{}
			perPage[path] = m
		}
		m.add(t)
		order.add(path, 0)
	}

	averages := newTally()
	for _, path := range order.keys {
		averages.add(path, roundHalfUp(perPage[path].value()))
	}

	res := TimeOnPageResult{
		OverallAverage: roundHalfUp(overall.value()),
		ByPage:         make([]PathAverage, 0, topPagesLimit),
	}
	for _, e := range averages.top(topPagesLimit) {
		res.ByPage = append(res.ByPage, PathAverage{Path: e.Key, Average: e.Count})
	}
	return res
}

func (a *Aggregator) visits(d *dataset, r VisitsRequest) VisitsResult {
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultVisitsLimit
	}

	newSession := make(map[string]bool, len(d.sessions))
	for _, s := range d.sessions {
		newSession[s.SessionID] = s.IsNewVisitor
	}

	type visitKey struct{ session, path string }
	seen := make(map[visitKey]struct{})
	res := VisitsResult{Visits: make([]Visit, 0, limit)}
	for _, v := range d.counted() {
		if len(res.Visits) == limit {
			break
		}
		path := pathOf(v)
		key := visitKey{session: v.SessionID, path: path}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		isNew, known := newSession[v.SessionID]
		device := v.DeviceType
		if device == "" {
			device = models.DeviceDesktop
		}
		res.Visits = append(res.Visits, Visit{
			Time:      v.CreatedAt.UTC(),
			LocalTime: v.CreatedAt.In(a.zone.Location()).Format("2006-01-02 15:04:05 MST"),
			Path:      path,
			Title:     v.PageTitle,
			Country:   v.CountryOr(unknownCountry),
			Device:    device,
			Returning: known && !isNew,
		})
	}
	return res
}
