package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// ErrMessageNotFound is returned by editors when the backing message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// Editor is a last-writer-wins text store, such as a chat message the service may edit.
// Apply returns the content as stored after the edit.
type Editor interface {
	Fetch(ctx context.Context, id string) (string, error)
	Apply(ctx context.Context, id, content string) (string, error)
	Create(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

// EditorStore turns an Editor into a domain.DocumentStore. The swap is read, compare,
// write, read-back: another writer can slip in between compare and write, and the
// read-back only detects writes that land before it.
type EditorStore struct {
	editor Editor
}

func NewEditorStore(editor Editor) *EditorStore {
	return &EditorStore{editor: editor}
}

func (s *EditorStore) fetch(ctx context.Context, id string) (string, *domain.Document, error) {
	content, err := s.editor.Fetch(ctx, id)
	if errors.Is(err, ErrMessageNotFound) {
		return "", nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return "", nil, domain.StoreUnavailable("fetch document", err)
	}
	doc, ok := Decode(content)
	if !ok {
		return content, nil, domain.ErrSessionNotFound
	}
	return content, doc, nil
}

func (s *EditorStore) Create(ctx context.Context, doc domain.Document) error {
	block, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := s.editor.Create(ctx, doc.Snapshot.Session.ID, block); err != nil {
		return domain.StoreUnavailable("create document", err)
	}
	return nil
}

func (s *EditorStore) Load(ctx context.Context, sessionID string) (*domain.Document, error) {
	_, doc, err := s.fetch(ctx, sessionID)
	return doc, err
}

func (s *EditorStore) CompareAndSwap(ctx context.Context, sessionID string, expected int64, next domain.Document) (bool, error) {
	content, current, err := s.fetch(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if current.Revision != expected {
		return false, nil
	}

	updated, err := Upsert(content, next)
	if err != nil {
		return false, err
	}
	stored, err := s.editor.Apply(ctx, sessionID, updated)
	if errors.Is(err, ErrMessageNotFound) {
		return false, domain.ErrSessionNotFound
	}
	if err != nil {
		return false, domain.StoreUnavailable("apply document", err)
	}

	after, ok := Decode(stored)
	if !ok {
		return false, fmt.Errorf("%w: edit lost the state block", domain.ErrStoreUnavailable)
	}
	return after.Revision == next.Revision && sameLock(after.Lock, next.Lock), nil
}

func (s *EditorStore) Delete(ctx context.Context, sessionID string) error {
	err := s.editor.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		return domain.StoreUnavailable("delete document", err)
	}
	return nil
}

func sameLock(a, b *domain.Lock) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.By == b.By && a.Until.UnixMilli() == b.Until.UnixMilli()
}
