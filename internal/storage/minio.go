package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"opledger/internal/config"
)

const bucketCheckTimeout = 10 * time.Second

type minioArchive struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIO connects to the archive bucket, creating it on first use.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive store: client: %w", err)
	}

	a := &minioArchive{client: client, bucket: cfg.Bucket, now: func() time.Time { return time.Now().UTC() }}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *minioArchive) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bucketCheckTimeout)
	defer cancel()

	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("archive store: lookup bucket %q: %w", a.bucket, err)
	}
	if ok {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archive store: make bucket %q: %w", a.bucket, err)
	}
	return nil
}

func (a *minioArchive) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	contentType := opt.ContentType
	if contentType == "" {
		contentType = SnapshotContentType
	}
	up, err := a.client.PutObject(ctx, a.bucket, key, r, opt.Size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("archive put %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         up.Size,
		ETag:         up.ETag,
		ContentType:  contentType,
		LastModified: a.now(),
		Metadata:     opt.Metadata,
	}, nil
}

func (a *minioArchive) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("archive get %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("archive stat %s: %w", key, err)
	}
	return obj, infoFromMinIO(key, st), nil
}

func (a *minioArchive) Delete(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("archive delete %s: %w", key, err)
	}
	return nil
}

func (a *minioArchive) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, downloadParams(key))
	if err != nil {
		return "", fmt.Errorf("archive presign %s: %w", key, err)
	}
	return u.String(), nil
}

// downloadParams makes browsers save the snapshot under its own file name.
func downloadParams(key string) url.Values {
	v := url.Values{}
	v.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	return v
}

func infoFromMinIO(key string, st minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}
}
