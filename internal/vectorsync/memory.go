package vectorsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryIndex is an in-process Index scored by query-term overlap. It backs
// local development and tests; nothing survives a restart.
type MemoryIndex struct {
	name    string
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryIndex(name string) *MemoryIndex {
	return &MemoryIndex{
		name:    name,
		records: make(map[string]Record),
	}
}

func (m *MemoryIndex) Name() string { return m.name }

func (m *MemoryIndex) UpsertRecords(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) DeleteOne(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryIndex) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// SearchRecords scores each record by the fraction of distinct query terms
// it contains. Records sharing no term are not returned.
func (m *MemoryIndex) SearchRecords(_ context.Context, query string, topK int) ([]Match, error) {
	terms := termSet(query)
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, r := range m.records {
		doc := termSet(r.Text)
		shared := 0
		for t := range terms {
			if _, ok := doc[t]; ok {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    float64(shared) / float64(len(terms)),
			Text:     r.Text,
			Metadata: r.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }

// Len reports how many records the index holds.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// IDs returns the held record ids in sorted order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func termSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
