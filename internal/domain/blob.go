package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// EventArchiver exports journal segments to cold storage. The journal itself
// is never truncated; exports are copies for offline audit.
type EventArchiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
