package storage_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"codeprep/internal/common/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) PutObject(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.types[bucket+"/"+key] = contentType
	return nil
}

func (m *memoryStore) GetObject(_ context.Context, bucket, key string, limit int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.New("too large")
	}
	return data, nil
}

func (m *memoryStore) RemoveObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func TestSourceArchiveRoundTrip(t *testing.T) {
	store := newMemoryStore()
	archive, err := storage.NewSourceArchive(store, "sources", 0)
	if err != nil {
		t.Fatalf("NewSourceArchive: %v", err)
	}
	ctx := context.Background()
	key := "submissions/s1/source.code.zst"
	source := []byte(strings.Repeat("def solve(n):\n    return n\n", 50))

	if err := archive.Put(ctx, key, source); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stored := store.objects["sources/"+key]
	if len(stored) >= len(source) {
		t.Fatalf("stored %d bytes, expected compression below %d", len(stored), len(source))
	}
	if ct := store.types["sources/"+key]; ct != "application/zstd" {
		t.Fatalf("content type = %q", ct)
	}

	got, err := archive.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, source) {
		t.Fatalf("round trip mismatch")
	}

	if err := archive.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := archive.Get(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get after delete = %v, want ErrObjectNotFound", err)
	}
}

func TestSourceArchiveRejectsOversizedSource(t *testing.T) {
	archive, err := storage.NewSourceArchive(newMemoryStore(), "sources", 16)
	if err != nil {
		t.Fatalf("NewSourceArchive: %v", err)
	}
	if err := archive.Put(context.Background(), "k", bytes.Repeat([]byte("x"), 17)); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestSourceArchiveCorruptObject(t *testing.T) {
	store := newMemoryStore()
	archive, err := storage.NewSourceArchive(store, "sources", 0)
	if err != nil {
		t.Fatalf("NewSourceArchive: %v", err)
	}
	_ = store.PutObject(context.Background(), "sources", "k", []byte("not zstd"), "")
	if _, err := archive.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected decompress error")
	}
}

func TestNewSourceArchiveValidation(t *testing.T) {
	if _, err := storage.NewSourceArchive(nil, "b", 0); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := storage.NewSourceArchive(newMemoryStore(), "", 0); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
