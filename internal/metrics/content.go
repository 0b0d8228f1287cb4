package metrics

import (
	"math"
	"regexp"
	"sort"
)

// editionPattern дата выпуска внутри пути, например /editions/2025-03-14
var editionPattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

type PageEngagement struct {
	Path            string  `json:"path"`
	EditionDate     string  `json:"edition_date,omitempty"`
	Views           int     `json:"views"`
	AvgTime         int     `json:"avg_time"`
	BounceRate      int     `json:"bounce_rate"`
	EngagementScore float64 `json:"engagement_score"`
}

type ContentResult struct {
	Pages    []PageEngagement `json:"pages"`
	Editions []PageEngagement `json:"editions"`
}

// EngagementScore 0.3*views + 0.4*(100-bounce) + 0.3*min(avg/10, 10), один знак после запятой
func EngagementScore(views, bounceRate int, avgTime float64) float64 {
	score := 0.3*float64(views) + 0.4*float64(100-bounceRate) + 0.3*math.Min(avgTime/10, 10)
	return roundTenth(score)
}

type pageAcc struct {
	views        int
	bounces      int
	knownBounces int
	time         mean
}

func (p *pageAcc) merge(other *pageAcc) {
	p.views += other.views
	p.bounces += other.bounces
	p.knownBounces += other.knownBounces
	p.time.sum += other.time.sum
	p.time.count += other.time.count
}

func (p *pageAcc) engagement(path string) PageEngagement {
	bounce := percent(p.bounces, p.knownBounces)
	return PageEngagement{
		Path:            path,
		Views:           p.views,
		AvgTime:         roundHalfUp(p.time.value()),
		BounceRate:      bounce,
		EngagementScore: EngagementScore(p.views, bounce, p.time.value()),
	}
}

func (a *Aggregator) content(d *dataset) ContentResult {
	order := newTally()
	pages := make(map[string]*pageAcc)
	get := func(path string) *pageAcc {
		p, ok := pages[path]
		if !ok {
			p = &pageAcc{}
			pages[path] = p
			order.add(path, 0)
		}
		return p
	}

	for _, v := range d.counted() {
		p := get(pathOf(v))
		p.views++
		if v.IsBounce != nil {
			p.knownBounces++
			if *v.IsBounce {
				p.bounces++
			}
		}
	}
	for _, v := range d.timed() {
		// Время только для страниц, у которых есть просмотры в периоде
		if p, ok := pages[pathOf(v)]; ok {
			p.time.add(float64(*v.TimeOnPage))
		}
	}

	res := ContentResult{
		Pages:    make([]PageEngagement, 0, len(order.keys)),
		Editions: make([]PageEngagement, 0),
	}

	// Выпуск собирается из всех путей с одной датой, включая разделы страницы
	editionOrder := newTally()
	editions := make(map[string]*pageAcc)
	editionPaths := make(map[string]string)

	for _, path := range order.keys {
		p := pages[path]
		res.Pages = append(res.Pages, p.engagement(path))

		date := editionPattern.FindString(path)
		if date == "" {
			continue
		}
		e, ok := editions[date]
		if !ok {
			e = &pageAcc{}
			editions[date] = e
			editionPaths[date] = path
			editionOrder.add(date, 0)
		}
		e.merge(p)
	}
	for _, date := range editionOrder.keys {
		row := editions[date].engagement(editionPaths[date])
		row.EditionDate = date
		res.Editions = append(res.Editions, row)
	}

	byScore := func(rows []PageEngagement) {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].EngagementScore > rows[j].EngagementScore
		})
	}
	byScore(res.Pages)
	byScore(res.Editions)
	return res
}
