package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rollcall/rollcall/internal/clock"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates a concurrency-safe in-memory store for tests and
// local runs.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func memoryKey(phone string, day time.Time) string {
	return phone + "|" + clock.DayKey(day)
}

func (s *memoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(rec.Phone, rec.Day)
	if _, exists := s.records[key]; exists {
		return ErrDuplicate
	}
	s.records[key] = cloneRecord(rec)
	return nil
}

func (s *memoryStore) Get(_ context.Context, phone string, day time.Time) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[memoryKey(phone, day)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memoryStore) MarkOut(_ context.Context, phone string, day, at time.Time, by Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(phone, day)
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if rec.CheckOut != nil {
		return ErrAlreadyOut
	}
	out := at
	rec.CheckOut = &out
	rec.ClosedBy = by
	s.records[key] = rec
	return nil
}

func (s *memoryStore) History(_ context.Context, phone string, since time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sinceKey := clock.DayKey(since)
	var out []Record
	for _, rec := range s.records {
		if rec.Phone == phone && clock.DayKey(rec.Day) >= sinceKey {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) ListDay(_ context.Context, day time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := clock.DayKey(day)
	var out []Record
	for _, rec := range s.records {
		if clock.DayKey(rec.Day) == key {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func cloneRecord(rec Record) Record {
	if rec.CheckOut != nil {
		out := *rec.CheckOut
		rec.CheckOut = &out
	}
	return rec
}
