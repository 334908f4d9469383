package store

import (
	"sync"

	"textile-sync/internal/models"
)

// Store is the entity cache: the single in-memory source of truth the UI
// reads. It holds one ordered collection per entity kind, most recent first,
// never two records of the same kind with the same id. The store never
// invents or drops records on its own; it mirrors what mutations applied
// plus what fetches returned.
//
// The source system ran on a single event loop; here an RWMutex makes every
// replace/splice atomic with respect to readers instead.
type Store struct {
	mu     sync.RWMutex
	byKind map[string][]models.Record
}

// New creates an empty store. Construct once at process start and inject it
// into every consumer; there is no ambient global instance.
func New() *Store {
	return &Store{byKind: make(map[string][]models.Record)}
}

// All returns a copy of the current collection for the kind, preserving
// order. The copy is safe to retain.
func (s *Store) All(kind string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.byKind[kind]
	out := make([]models.Record, len(recs))
	copy(out, recs)
	return out
}

// Get returns the record with the given id, if present.
func (s *Store) Get(kind, id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.byKind[kind] {
		if r.RecordID() == id {
			return r, true
		}
	}
	return nil, false
}

// Len reports the number of records of the kind.
func (s *Store) Len(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKind[kind])
}

// ReplaceAll swaps the entire collection for the kind, used by fetches.
// Duplicate ids keep the first occurrence.
func (s *Store) ReplaceAll(kind string, recs []models.Record) {
	out := make([]models.Record, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		id := r.RecordID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind[kind] = out
}

// Upsert splices a single record: a record with a matching id is fully
// overwritten in place (no partial merge), otherwise the record is inserted
// at the front.
func (s *Store) Upsert(kind string, rec models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.byKind[kind]
	for i, r := range recs {
		if r.RecordID() == rec.RecordID() {
			recs[i] = rec
			return
		}
	}
	s.byKind[kind] = append([]models.Record{rec}, recs...)
}

// Remove splices out the record with the given id. Reports whether a record
// was removed.
func (s *Store) Remove(kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.byKind[kind]
	for i, r := range recs {
		if r.RecordID() == id {
			s.byKind[kind] = append(recs[:i:i], recs[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every collection. Called on sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind = make(map[string][]models.Record)
}

// Records returns the collection for the kind narrowed to its concrete type,
// preserving order. Records of a different concrete type are skipped.
func Records[T models.Record](s *Store, kind string) []T {
	recs := s.All(kind)
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
