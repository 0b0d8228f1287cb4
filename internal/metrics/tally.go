package metrics

import (
	"math"
	"sort"
)

// tally счётчик по ключу с сохранением порядка первого появления
type tally struct {
	index map[string]int
	keys  []string
	count []int
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(key string, n int) {
	i, ok := t.index[key]
	if !ok {
		i = len(t.keys)
		t.index[key] = i
		t.keys = append(t.keys, key)
		t.count = append(t.count, 0)
	}
	t.count[i] += n
}

func (t *tally) get(key string) int {
	if i, ok := t.index[key]; ok {
		return t.count[i]
	}
	return 0
}

type tallyEntry struct {
	Key   string
	Count int
}

// top по убыванию, при равенстве раньше встреченный ключ идёт первым; limit <= 0 - без ограничения
func (t *tally) top(limit int) []tallyEntry {
	entries := make([]tallyEntry, len(t.keys))
	for i, k := range t.keys {
		entries[i] = tallyEntry{Key: k, Count: t.count[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// mean накопитель среднего
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.count++
}

func (m mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// roundHalfUp округление до целого, половина вверх
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// roundTenth округление до одного знака после запятой
func roundTenth(x float64) float64 {
	return math.Floor(x*10+0.5) / 10
}

// percent доля part от total в процентах, 0 при пустом total
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return roundHalfUp(float64(part) * 100 / float64(total))
}
