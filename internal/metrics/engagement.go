package metrics

type RangeCount struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type EngagementResult struct {
	TotalSessions      int          `json:"total_sessions"`
	BounceRate         int          `json:"bounce_rate"`
	AvgPagesPerSession float64      `json:"avg_pages_per_session"`
	AvgSessionDuration int          `json:"avg_session_duration"`
	ReturnRate         int          `json:"return_rate"`
	TimeDistribution   []RangeCount `json:"time_distribution"`
	PagesDistribution  []RangeCount `json:"pages_distribution"`
}

// bucket полуинтервал [min, max), max 0 - без верхней границы
type bucket struct {
	label    string
	min, max int
}

var (
	timeBuckets = []bucket{
		{"0-30s", 0, 30},
		{"30-60s", 30, 60},
		{"60-120s", 60, 120},
		{"120-300s", 120, 300},
		{"300s+", 300, 0},
	}
	pageBuckets = []bucket{
		{"1", 1, 2},
		{"2-3", 2, 4},
		{"4-5", 4, 6},
		{"6+", 6, 0},
	}
)

func distribute(buckets []bucket, values []int) []RangeCount {
	out := make([]RangeCount, len(buckets))
	for i, b := range buckets {
		out[i].Range = b.label
	}
	for _, v := range values {
		for i, b := range buckets {
			if v >= b.min && (b.max == 0 || v < b.max) {
				out[i].Count++
				break
			}
		}
	}
	return out
}

func (a *Aggregator) engagement(d *dataset) EngagementResult {
	res := EngagementResult{TotalSessions: len(d.sessions)}

	var (
		bounces, returning int
		pages, duration    mean
		pageCounts         = make([]int, 0, len(d.sessions))
	)
	for _, s := range d.sessions {
		if s.IsBounce() {
			bounces++
		}
		if !s.IsNewVisitor {
			returning++
		}
		pages.add(float64(s.PageCount))
		pageCounts = append(pageCounts, s.PageCount)
		if dur := s.Duration(); dur > 0 {
			duration.add(dur.Seconds())
		}
	}
	res.BounceRate = percent(bounces, res.TotalSessions)
	res.ReturnRate = percent(returning, res.TotalSessions)
	res.AvgPagesPerSession = roundTenth(pages.value())
	res.AvgSessionDuration = roundHalfUp(duration.value())

	timed := d.timed()
	times := make([]int, 0, len(timed))
	for _, v := range timed {
		times = append(times, *v.TimeOnPage)
	}
	res.TimeDistribution = distribute(timeBuckets, times)
	res.PagesDistribution = distribute(pageBuckets, pageCounts)
	return res
}
