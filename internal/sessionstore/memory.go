package sessionstore

import (
	"context"
	"sync"

	irma "github.com/privacybydesign/irmarequestor"
)

type memoryStore struct {
	sync.RWMutex
	records map[irma.RequestorToken]Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[irma.RequestorToken]Record{}}
}

func (s *memoryStore) Add(_ context.Context, record *Record) error {
	s.Lock()
	defer s.Unlock()
	s.records[record.Token] = *record
	return nil
}

func (s *memoryStore) Get(_ context.Context, token irma.RequestorToken) (*Record, error) {
	s.RLock()
	defer s.RUnlock()
	r, ok := s.records[token]
	if !ok {
		return nil, ErrUnknownSession
	}
	return &r, nil
}

func (s *memoryStore) Update(_ context.Context, record *Record) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.records[record.Token]; !ok {
		return ErrUnknownSession
	}
	s.records[record.Token] = *record
	return nil
}

func (s *memoryStore) List(context.Context) ([]*Record, error) {
	s.RLock()
	defer s.RUnlock()
	list := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		r := r
		list = append(list, &r)
	}
	sortRecords(list)
	return list, nil
}

func (s *memoryStore) Close() error {
	return nil
}
