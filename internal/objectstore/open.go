package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Options carries backend settings needed by Open.
type Options struct {
	S3 S3Config
}

// Open returns a store for the bucket of loc.
func Open(ctx context.Context, loc Location, opts Options) (Store, error) {
	switch loc.Scheme {
	case SchemeS3:
		return NewS3Store(loc.Bucket, opts.S3)
	case SchemeGCS:
		return NewGCSStore(ctx, loc.Bucket)
	case SchemeFile:
		return NewLocalStore(loc.Bucket), nil
	case SchemeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("Open: unsupported scheme %q", loc.Scheme)
	}
}

// UploadFile copies a local file into the store under key.
func UploadFile(ctx context.Context, store Store, key, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("UploadFile: %w", err)
	}
	return nil
}

// DefaultKey returns the key a local file is uploaded to when none is given.
func DefaultKey(prefix, filePath string) string {
	return JoinKey(prefix, filepath.Base(filePath))
}
