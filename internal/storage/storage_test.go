package storage

import (
	"context"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opledger/internal/config"
)

func TestSnapshotKey(t *testing.T) {
	cases := map[string]struct {
		opType, id, want string
	}{
		"dotted type":    {"zoho.invoice.create", "op-1", "operations/zoho.invoice.create/op-1.json"},
		"slash in type":  {"crm/contact", "op-2", "operations/crm_contact/op-2.json"},
		"empty type":     {"", "op-3", "operations/untyped/op-3.json"},
		"traversal dots": {"..", "op-4", "operations/untyped/op-4.json"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SnapshotKey(tc.opType, tc.id))
		})
	}
}

func TestDownloadParams(t *testing.T) {
	v := downloadParams("operations/zoho.invoice.create/op-1.json")
	assert.Equal(t, `attachment; filename="op-1.json"`, v.Get("response-content-disposition"))
}

func TestInfoFromMinIO(t *testing.T) {
	mod := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := infoFromMinIO("k", minio.ObjectInfo{
		Size:         42,
		ETag:         "abc",
		ContentType:  SnapshotContentType,
		LastModified: mod,
		UserMetadata: map[string]string{"status": "success"},
	})
	assert.Equal(t, ObjectInfo{
		Key:          "k",
		Size:         42,
		ETag:         "abc",
		ContentType:  SnapshotContentType,
		LastModified: mod,
		Metadata:     map[string]string{"status": "success"},
	}, got)
}

func TestNewMinIO_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewMinIO(context.Background(), config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "ledger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")
}
