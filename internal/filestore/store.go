// Package filestore defines the object storage interface tabula reads
// the static metadata document from.
//
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	data, err := filestore.ReadAll(ctx, store, "tabula", "metadata.yaml")
package filestore

import (
	"context"
	"io"
	"time"

	"github.com/koustreak/tabula/internal/errs"
)

// MaxDocumentSize caps how much ReadAll will pull from a single object.
// Metadata documents are small; anything larger is a misconfiguration.
const MaxDocumentSize = 8 << 20

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 if unknown
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// Store is the read-only interface all file storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// ReadAll downloads the object at bucket/key into memory.
// Objects larger than MaxDocumentSize are rejected with ErrKindInvalidInput.
func ReadAll(ctx context.Context, s Store, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "bucket and key are required")
	}

	obj, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	if info := obj.Info(); info != nil && info.Size > MaxDocumentSize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s/%s is %d bytes, limit is %d", bucket, key, info.Size, MaxDocumentSize)
	}

	data, err := io.ReadAll(io.LimitReader(obj, MaxDocumentSize+1))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to read object", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s/%s exceeds %d bytes", bucket, key, MaxDocumentSize)
	}
	return data, nil
}
