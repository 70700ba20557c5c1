package service

import (
	"context"
	"sort"
	"sync"
)

// TypeCount is one row of the fairy-type census.
type TypeCount struct {
	FairyType string `json:"fairy_type"`
	Count     int    `json:"count"`
}

// ResultRecorder keeps the history of completed quizzes.
type ResultRecorder interface {
	Record(ctx context.Context, result Result) error
	// Latest returns the user's most recent result or ErrNotFound.
	Latest(ctx context.Context, userID int64) (*Result, error)
	// Census counts results per fairy type, most common first.
	Census(ctx context.Context) ([]TypeCount, error)
}

// SortCensus orders counts by count descending, then fairy type.
func SortCensus(counts []TypeCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].FairyType < counts[j].FairyType
		}
		return counts[i].Count > counts[j].Count
	})
}

// MemoryRecorder keeps results in memory; they are lost on restart.
type MemoryRecorder struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{results: make([]Result, 0)}
}

func (m *MemoryRecorder) Record(_ context.Context, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result.Answers = append([]string(nil), result.Answers...)
	m.results = append(m.results, result)
	return nil
}

func (m *MemoryRecorder) Latest(_ context.Context, userID int64) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].UserID == userID {
			r := m.results[i]
			r.Answers = append([]string(nil), r.Answers...)
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRecorder) Census(_ context.Context) ([]TypeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]int)
	for _, r := range m.results {
		byType[r.FairyType]++
	}
	counts := make([]TypeCount, 0, len(byType))
	for t, n := range byType {
		counts = append(counts, TypeCount{FairyType: t, Count: n})
	}
	SortCensus(counts)
	return counts, nil
}
