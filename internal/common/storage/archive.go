package storage

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	archiveContentType = "application/zstd"
	defaultArchiveMax  = 1 << 20
)

// SourceArchive keeps merged submission sources zstd-compressed in one bucket.
type SourceArchive struct {
	store   ObjectStore
	bucket  string
	maxSize int64
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// NewSourceArchive builds an archive on store. maxSize caps both the stored
// object and the decompressed source; zero means 1 MiB.
func NewSourceArchive(store ObjectStore, bucket string, maxSize int64) (*SourceArchive, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if maxSize <= 0 {
		maxSize = defaultArchiveMax
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxSize)))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &SourceArchive{store: store, bucket: bucket, maxSize: maxSize, enc: enc, dec: dec}, nil
}

// Put compresses source and stores it under key.
func (a *SourceArchive) Put(ctx context.Context, key string, source []byte) error {
	if int64(len(source)) > a.maxSize {
		return fmt.Errorf("source is %d bytes, limit %d", len(source), a.maxSize)
	}
	return a.store.PutObject(ctx, a.bucket, key, a.enc.EncodeAll(source, nil), archiveContentType)
}

// Get returns the decompressed source stored under key. A missing key
// surfaces as ErrObjectNotFound.
func (a *SourceArchive) Get(ctx context.Context, key string) ([]byte, error) {
	compressed, err := a.store.GetObject(ctx, a.bucket, key, a.maxSize)
	if err != nil {
		return nil, err
	}
	source, err := a.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s failed: %w", key, err)
	}
	return source, nil
}

// Delete removes key. Missing keys are not an error.
func (a *SourceArchive) Delete(ctx context.Context, key string) error {
	return a.store.RemoveObject(ctx, a.bucket, key)
}
