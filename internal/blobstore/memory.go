package blobstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Backend used by tests and throwaway local runs.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]memBlob
	now   func() time.Time
}

type memBlob struct {
	blob Blob
	data []byte
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		blobs: map[string]memBlob{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) List(ctx context.Context, tag string) ([]Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Blob{}
	for _, b := range m.blobs {
		if b.blob.HasTag(tag) {
			out = append(out, b.blob)
		}
	}
	return out, nil
}

func (m *Memory) Download(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, nil
}

func (m *Memory) Upload(ctx context.Context, name string, tags []string, data []byte) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	blob := Blob{
		ID:      uuid.NewString(),
		Name:    name,
		Tags:    append([]string(nil), tags...),
		Size:    int64(len(data)),
		Created: m.now(),
	}
	m.blobs[blob.ID] = memBlob{blob: blob, data: cp}
	return blob, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, id)
	return nil
}
