package metrics

import (
	"sort"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/models"
)

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type HourlyResult struct {
	PagePath string      `json:"page_path,omitempty"`
	Total    int         `json:"total"`
	Hours    []HourCount `json:"hours"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type WeekdayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// TimelineResult Days заполняется только с фильтром месяца, Hours только с фильтром дня,
// DayOfWeek и пики только без фильтра дня
type TimelineResult struct {
	Months    []MonthCount   `json:"months"`
	Days      []DateCount    `json:"days,omitempty"`
	Hours     []HourCount    `json:"hours,omitempty"`
	DayOfWeek []WeekdayCount `json:"day_of_week,omitempty"`
	PeakHour  *HourCount     `json:"peak_hour,omitempty"`
	PeakDay   *WeekdayCount  `json:"peak_day,omitempty"`
}

func (a *Aggregator) hourly(d *dataset, r HourlyRequest) HourlyResult {
	var filter string
	if r.PagePath != "" {
		filter = models.NormalizePath(r.PagePath)
	}
	var buckets [24]int
	total := 0
	for _, v := range d.counted() {
		if filter != "" && pathOf(v) != filter {
			continue
		}
		buckets[a.zone.ToCivil(v.CreatedAt).Hour]++
		total++
	}
	return HourlyResult{PagePath: filter, Total: total, Hours: hourList(buckets)}
}

func (a *Aggregator) timeline(d *dataset, r TimelineRequest) TimelineResult {
	months := newTally()
	var (
		days     = newTally()
		hours    [24]int
		weekdays [7]int
		peakHrs  [24]int
		drilled  int
	)
	for _, v := range d.counted() {
		c := a.zone.ToCivil(v.CreatedAt)
		months.add(c.MonthKey(), 1)

		if r.Month != "" && c.MonthKey() != r.Month {
			continue
		}
		days.add(c.DateKey(), 1)
		if r.Day != "" {
			if c.DateKey() == r.Day {
				hours[c.Hour]++
			}
			continue
		}
		weekdays[c.Weekday]++
		peakHrs[c.Hour]++
		drilled++
	}

	res := TimelineResult{Months: make([]MonthCount, 0, len(months.keys))}
	for _, key := range sortedKeys(months) {
		res.Months = append(res.Months, MonthCount{Month: key, Count: months.get(key)})
	}

	if r.Month != "" {
		res.Days = make([]DateCount, 0, len(days.keys))
		for _, key := range sortedKeys(days) {
			res.Days = append(res.Days, DateCount{Date: key, Count: days.get(key)})
		}
	}

	if r.Day != "" {
		res.Hours = hourList(hours)
		return res
	}

	res.DayOfWeek = make([]WeekdayCount, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		res.DayOfWeek = append(res.DayOfWeek, WeekdayCount{Day: wd.String(), Count: weekdays[wd]})
	}
	if drilled > 0 {
		res.PeakHour = peakHour(peakHrs)
		res.PeakDay = peakWeekday(res.DayOfWeek)
	}
	return res
}

func hourList(buckets [24]int) []HourCount {
	out := make([]HourCount, 24)
	for h := range buckets {
		out[h] = HourCount{Hour: h, Count: buckets[h]}
	}
	return out
}

// peakHour первый максимум по возрастанию часа
func peakHour(buckets [24]int) *HourCount {
	best := HourCount{Hour: 0, Count: buckets[0]}
	for h := 1; h < 24; h++ {
		if buckets[h] > best.Count {
			best = HourCount{Hour: h, Count: buckets[h]}
		}
	}
	return &best
}

func peakWeekday(days []WeekdayCount) *WeekdayCount {
	best := days[0]
	for _, d := range days[1:] {
		if d.Count > best.Count {
			best = d
		}
	}
	return &best
}

// sortedKeys ключи дат/месяцев по возрастанию, формат ключей сортируется лексикографически
func sortedKeys(t *tally) []string {
	keys := append([]string(nil), t.keys...)
	sort.Strings(keys)
	return keys
}
