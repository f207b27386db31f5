package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// DocumentStore is an atomic in-memory compare-and-swap store.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]domain.Document
}

var (
	_ domain.DocumentStore = (*DocumentStore)(nil)
	_ domain.Sweeper       = (*DocumentStore)(nil)
)

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]domain.Document)}
}

func cloneDoc(d domain.Document) domain.Document {
	out := domain.Document{Revision: d.Revision, Snapshot: d.Snapshot.Clone()}
	if d.Lock != nil {
		lock := *d.Lock
		out.Lock = &lock
	}
	return out
}

func (s *DocumentStore) Create(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := doc.Snapshot.Session.ID
	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}
	s.docs[id] = cloneDoc(doc)
	return nil
}

func (s *DocumentStore) Load(_ context.Context, sessionID string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := cloneDoc(doc)
	return &out, nil
}

func (s *DocumentStore) CompareAndSwap(_ context.Context, sessionID string, expected int64, next domain.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if current.Revision != expected {
		return false, nil
	}
	s.docs[sessionID] = cloneDoc(next)
	return true, nil
}

func (s *DocumentStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
	return nil
}

func (s *DocumentStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, doc := range s.docs {
		if doc.Snapshot.Session.CreatedAt.Before(cutoff) {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}
