package metrics

import (
	"strings"
)

// SourceCategory категория источника трафика
type SourceCategory string

const (
	SourceDirect SourceCategory = "Direct"
	SourceSearch SourceCategory = "Search"
	SourceSocial SourceCategory = "Social"
	SourceOther  SourceCategory = "Other"
)

var sourceOrder = []SourceCategory{SourceDirect, SourceSearch, SourceSocial, SourceOther}

// searchEngines фрагмент домена и имя поисковика
var searchEngines = []struct {
	fragment string
	name     string
}{
	{"google.", "Google"},
	{"bing.", "Bing"},
	{"yahoo.", "Yahoo"},
	{"duckduckgo.", "DuckDuckGo"},
	{"baidu.", "Baidu"},
	{"yandex.", "Yandex"},
	{"ecosia.", "Ecosia"},
	{"search.brave.", "Brave"},
	{"startpage.", "Startpage"},
	{"ask.com", "Ask"},
}

// socialDomains домен совпадает или является поддоменом
var socialDomains = []string{
	"facebook.com", "fb.com", "m.me", "instagram.com", "twitter.com", "x.com", "t.co",
	"linkedin.com", "lnkd.in", "reddit.com", "pinterest.com", "youtube.com", "youtu.be",
	"tiktok.com", "threads.net", "mastodon.social", "bsky.app", "tumblr.com", "quora.com",
}

type SourceStats struct {
	Source     SourceCategory `json:"source"`
	Count      int            `json:"count"`
	Percentage int            `json:"percentage"`
	BounceRate int            `json:"bounce_rate"`
	AvgTime    int            `json:"avg_time"`
}

type ReferrerCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type EngineCount struct {
	Engine string `json:"engine"`
	Count  int    `json:"count"`
}

type SourcesResult struct {
	Total         int             `json:"total"`
	Categories    []SourceStats   `json:"categories"`
	Referrers     []ReferrerCount `json:"referrers"`
	SearchEngines []EngineCount   `json:"search_engines"`
}

const topReferrersLimit = 10

// Classify Direct для пустого и собственного домена, затем Search, Social, Other
func (a *Aggregator) Classify(domain string) SourceCategory {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || a.isSelf(domain) {
		return SourceDirect
	}
	if searchEngine(domain) != "" {
		return SourceSearch
	}
	if isSocial(domain) {
		return SourceSocial
	}
	return SourceOther
}

func (a *Aggregator) isSelf(domain string) bool {
	if a.siteDomain == "" {
		return false
	}
	return domain == a.siteDomain || strings.HasSuffix(domain, "."+a.siteDomain)
}

func searchEngine(domain string) string {
	for _, e := range searchEngines {
		if strings.Contains(domain, e.fragment) {
			return e.name
		}
	}
	return ""
}

func isSocial(domain string) bool {
	for _, s := range socialDomains {
		if domain == s || strings.HasSuffix(domain, "."+s) {
			return true
		}
	}
	return false
}

type categoryAcc struct {
	count        int
	bounces      int
	knownBounces int
	time         mean
}

func (a *Aggregator) sources(d *dataset) SourcesResult {
	views := d.counted()
	acc := make(map[SourceCategory]*categoryAcc, len(sourceOrder))
	for _, c := range sourceOrder {
		acc[c] = &categoryAcc{}
	}
	referrers := newTally()
	engines := newTally()

	// Категория сессии по её первому просмотру, для строк обновления времени без реферера
	sessionCategory := make(map[string]SourceCategory)
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		if _, ok := sessionCategory[v.SessionID]; !ok {
			sessionCategory[v.SessionID] = a.Classify(v.ReferrerDomainOr(""))
		}
	}

	for _, v := range views {
		domain := strings.ToLower(v.ReferrerDomainOr(""))
		cat := a.Classify(domain)
		c := acc[cat]
		c.count++
		if v.IsBounce != nil {
			c.knownBounces++
			if *v.IsBounce {
				c.bounces++
			}
		}
		if cat != SourceDirect {
			referrers.add(domain, 1)
		}
		if cat == SourceSearch {
			engines.add(searchEngine(domain), 1)
		}
	}

	for _, v := range d.timed() {
		cat, ok := sessionCategory[v.SessionID]
		if !ok {
			cat = a.Classify(v.ReferrerDomainOr(""))
		}
		acc[cat].time.add(float64(*v.TimeOnPage))
	}

	res := SourcesResult{
		Total:         len(views),
		Categories:    make([]SourceStats, 0, len(sourceOrder)),
		Referrers:     make([]ReferrerCount, 0, topReferrersLimit),
		SearchEngines: make([]EngineCount, 0, len(engines.keys)),
	}
	for _, cat := range sourceOrder {
		c := acc[cat]
		res.Categories = append(res.Categories, SourceStats{
			Source:     cat,
			Count:      c.count,
			Percentage: percent(c.count, res.Total),
			BounceRate: percent(c.bounces, c.knownBounces),
			AvgTime:    roundHalfUp(c.time.value()),
		})
	}
	for _, e := range referrers.top(topReferrersLimit) {
		res.Referrers = append(res.Referrers, ReferrerCount{Domain: e.Key, Count: e.Count})
	}
	for _, e := range engines.top(0) {
		res.SearchEngines = append(res.SearchEngines, EngineCount{Engine: e.Key, Count: e.Count})
	}
	return res
}
