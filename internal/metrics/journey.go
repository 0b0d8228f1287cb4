package metrics

type EntryPage struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type ExitPage struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
	ExitRate   int    `json:"exit_rate"`
}

type JourneyResult struct {
	TotalSessions int         `json:"total_sessions"`
	EntryPages    []EntryPage `json:"entry_pages"`
	ExitPages     []ExitPage  `json:"exit_pages"`
}

const journeyLimit = 10

func (a *Aggregator) journey(d *dataset) JourneyResult {
	views := d.counted()
	pageViews := newTally()
	entries := newTally()
	exits := newTally()

	// Первый по времени просмотр сессии попадает последним в убывающем порядке
	entry := make(map[string]string)
	exit := make(map[string]string)
	var sessions []string
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		path := pathOf(v)
		pageViews.add(path, 1)
		if _, ok := entry[v.SessionID]; !ok {
			entry[v.SessionID] = path
			sessions = append(sessions, v.SessionID)
		}
		exit[v.SessionID] = path
	}
	for _, s := range sessions {
		entries.add(entry[s], 1)
		exits.add(exit[s], 1)
	}

	total := len(sessions)
	res := JourneyResult{
		TotalSessions: total,
		EntryPages:    make([]EntryPage, 0, journeyLimit),
		ExitPages:     make([]ExitPage, 0, journeyLimit),
	}
	for _, e := range entries.top(journeyLimit) {
		res.EntryPages = append(res.EntryPages, EntryPage{
			Path:       e.Key,
			Count:      e.Count,
			Percentage: percent(e.Count, total),
		})
	}
	for _, e := range exits.top(journeyLimit) {
		res.ExitPages = append(res.ExitPages, ExitPage{
			Path:       e.Key,
			Count:      e.Count,
			Percentage: percent(e.Count, total),
			ExitRate:   percent(e.Count, pageViews.get(e.Key)),
		})
	}
	return res
}
