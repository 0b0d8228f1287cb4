package metrics

import (
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Change сравнение текущего окна с предыдущим
type Change struct {
	Current       int   `json:"current"`
	Previous      int   `json:"previous"`
	PercentChange int   `json:"percent_change"`
	Trend         Trend `json:"trend"`
}

type GrowthResult struct {
	Period        Period `json:"period"`
	WindowDays    int    `json:"window_days"`
	Pageviews     Change `json:"pageviews"`
	Visitors      Change `json:"visitors"`
	AvgTimeOnPage Change `json:"avg_time_on_page"`
}

// growthWindow для all сравниваются последние 30 дней с предыдущими 30
func growthWindow(p Period) time.Duration {
	if l := p.Length(); l > 0 {
		return l
	}
	return Period30d.Length()
}

// NewChange процент: 100 при нулевом предыдущем и положительном текущем, 0 при обоих нулевых
func NewChange(current, previous int) Change {
	c := Change{Current: current, Previous: previous}
	switch {
	case previous == 0 && current > 0:
		c.PercentChange = 100
	case previous == 0:
		c.PercentChange = 0
	default:
		c.PercentChange = roundHalfUp(float64(current-previous) * 100 / float64(previous))
	}
	switch {
	case c.PercentChange > 0:
		c.Trend = TrendUp
	case c.PercentChange < 0:
		c.Trend = TrendDown
	default:
		c.Trend = TrendStable
	}
	return c
}

type windowStats struct {
	pageviews int
	visitors  int
	avgTime   int
}

func statsOf(views []models.PageView) windowStats {
	var st windowStats
	identities := make(map[string]struct{})
	var t mean
	for _, v := range views {
		if v.TimeOnPage != nil {
			t.add(float64(*v.TimeOnPage))
		}
		if v.IsUpdate {
			continue
		}
		st.pageviews++
		identities[v.HashedIP] = struct{}{}
	}
	st.visitors = len(identities)
	st.avgTime = roundHalfUp(t.value())
	return st
}

func (a *Aggregator) growth(d *dataset, p Period) GrowthResult {
	window := growthWindow(p)
	currentFrom := d.now.Add(-window)
	previousFrom := d.now.Add(-2 * window)

	var current, previous []models.PageView
	for _, v := range d.views {
		switch {
		case !v.CreatedAt.Before(currentFrom):
			current = append(current, v)
		case !v.CreatedAt.Before(previousFrom):
			previous = append(previous, v)
		}
	}

	cur, prev := statsOf(current), statsOf(previous)
	return GrowthResult{
		Period:        p,
		WindowDays:    int(window / day),
		Pageviews:     NewChange(cur.pageviews, prev.pageviews),
		Visitors:      NewChange(cur.visitors, prev.visitors),
		AvgTimeOnPage: NewChange(cur.avgTime, prev.avgTime),
	}
}
