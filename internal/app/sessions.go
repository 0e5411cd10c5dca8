package app

import (
	"slices"
	"strings"

	"tabletennis/internal/domain"
)

// MemorySessionStore keeps session records in memory and remembers which
// ones changed so a transport can persist them outside the tick.
type MemorySessionStore struct {
	records map[string]domain.PlayerRecord
	dirty   map[string]struct{}
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		records: make(map[string]domain.PlayerRecord),
		dirty:   make(map[string]struct{}),
	}
}

func (s *MemorySessionStore) GetPlayerData(clientID string) (domain.PlayerRecord, bool) {
	record, ok := s.records[clientID]
	return record, ok
}

func (s *MemorySessionStore) SetPlayerData(clientID string, record domain.PlayerRecord) {
	record.ClientID = clientID
	if existing, ok := s.records[clientID]; ok && existing == record {
		return
	}
	s.records[clientID] = record
	s.dirty[clientID] = struct{}{}
}

// Load inserts records without marking them dirty.
func (s *MemorySessionStore) Load(records ...domain.PlayerRecord) {
	for _, record := range records {
		s.records[record.ClientID] = record
	}
}

// Remove drops a record.
func (s *MemorySessionStore) Remove(clientID string) {
	delete(s.records, clientID)
	delete(s.dirty, clientID)
}

// TakeDirty returns the records changed since the last call, sorted by client ID.
func (s *MemorySessionStore) TakeDirty() []domain.PlayerRecord {
	if len(s.dirty) == 0 {
		return nil
	}
	out := make([]domain.PlayerRecord, 0, len(s.dirty))
	for id := range s.dirty {
		if record, ok := s.records[id]; ok {
			out = append(out, record)
		}
	}
	clear(s.dirty)
	slices.SortFunc(out, byClientID)
	return out
}

// All returns every record, sorted by client ID.
func (s *MemorySessionStore) All() []domain.PlayerRecord {
	out := make([]domain.PlayerRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	slices.SortFunc(out, byClientID)
	return out
}

func byClientID(a, b domain.PlayerRecord) int {
	return strings.Compare(a.ClientID, b.ClientID)
}
