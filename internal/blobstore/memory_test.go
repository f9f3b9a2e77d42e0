package blobstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryListFiltersByTag(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Upload(ctx, "a.json", []string{"t1", "u@example.com"}, []byte(`{}`)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := m.Upload(ctx, "b.json", []string{"t2"}, []byte(`{}`)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, err := m.List(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a.json" {
		t.Fatalf("want only a.json, got %v", got)
	}
	if !got[0].HasTag("u@example.com") {
		t.Fatal("identity tag lost")
	}
}

func TestMemoryDownloadDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	blob, err := m.Upload(ctx, "a.json", []string{"t"}, []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, err := m.Download(ctx, blob.ID)
	if err != nil || string(data) != `{"x":1}` {
		t.Fatalf("download: %v %q", err, data)
	}
	if err := m.Delete(ctx, blob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Download(ctx, blob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := m.Delete(ctx, blob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}
