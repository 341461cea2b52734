// Package storage keeps JSON snapshots of finished operations in an
// S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// SnapshotContentType is the media type of every archived snapshot.
const SnapshotContentType = "application/json"

// SnapshotKey returns the object key for an operation snapshot, grouped by
// operation type: operations/<type>/<id>.json.
func SnapshotKey(operationType, id string) string {
	t := strings.Trim(strings.ReplaceAll(operationType, "/", "_"), ". ")
	if t == "" {
		t = "untyped"
	}
	return path.Join("operations", t, id+".json")
}

// PutObjectOptions describe an upload. Size is -1 when unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what the store reports back about a stored snapshot.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the archive backend. Implementations must be safe for
// concurrent use.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get streams a snapshot; callers close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a download URL valid for expiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
