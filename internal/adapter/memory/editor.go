package memory

import (
	"context"
	"sync"

	"github.com/pscheid92/teamdraft/internal/document"
)

// Editor keeps message bodies in memory with last-writer-wins edits.
type Editor struct {
	mu       sync.Mutex
	messages map[string]string
}

var _ document.Editor = (*Editor)(nil)

func NewEditor() *Editor {
	return &Editor{messages: make(map[string]string)}
}

func (e *Editor) Fetch(_ context.Context, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	content, ok := e.messages[id]
	if !ok {
		return "", document.ErrMessageNotFound
	}
	return content, nil
}

func (e *Editor) Apply(_ context.Context, id, content string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.messages[id]; !ok {
		return "", document.ErrMessageNotFound
	}
	e.messages[id] = content
	return content, nil
}

func (e *Editor) Create(_ context.Context, id, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages[id] = content
	return nil
}

func (e *Editor) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.messages, id)
	return nil
}
