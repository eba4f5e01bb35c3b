// Package snapshot uploads encoded goal envelopes to S3-compatible storage and
// fetches them back for restore. When no bucket is configured the
// NoopUploader is used and the system stays local-only.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/nestegg/internal/config"
)

var (
	// ErrNotConfigured is returned when backup storage is not configured.
	ErrNotConfigured = errors.New("backup storage not configured")
	// ErrNoBackups is returned by Latest when the bucket holds no backups.
	ErrNoBackups = errors.New("no backups found")
)

// Uploader stores and retrieves named backups.
type Uploader interface {
	// Upload stores data under name.
	Upload(ctx context.Context, name string, data []byte) error

	// Download returns the backup stored under name.
	Download(ctx context.Context, name string) ([]byte, error)

	// List returns backup names, oldest first.
	List(ctx context.Context) ([]string, error)
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, data []byte) error
	GetObject(ctx context.Context, bucket, objectName string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, data []byte) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, objectName string) ([]byte, error) {
	obj, err := w.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (w *minioClientWrapper) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for info := range w.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// S3Uploader stores backups in S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
	prefix string
}

// Upload stores data under name.
func (u *S3Uploader) Upload(ctx context.Context, name string, data []byte) error {
	if err := u.client.PutObject(ctx, u.bucket, u.objectKey(name), data); err != nil {
		return fmt.Errorf("upload backup to S3: %w", err)
	}
	return nil
}

// Download returns the backup stored under name.
func (u *S3Uploader) Download(ctx context.Context, name string) ([]byte, error) {
	data, err := u.client.GetObject(ctx, u.bucket, u.objectKey(name))
	if err != nil {
		return nil, fmt.Errorf("download backup from S3: %w", err)
	}
	return data, nil
}

// List returns backup names under the configured prefix, oldest first.
func (u *S3Uploader) List(ctx context.Context) ([]string, error) {
	dir := u.objectKey("")
	keys, err := u.client.ListObjects(ctx, u.bucket, dir)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if name := strings.TrimPrefix(k, dir); name != "" && name != k {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (u *S3Uploader) objectKey(name string) string {
	return objectKey(u.prefix, name)
}

// NoopUploader is used when backup storage is not configured.
type NoopUploader struct{}

// Upload is a no-op when S3 is not configured.
func (u *NoopUploader) Upload(ctx context.Context, name string, data []byte) error {
	return nil
}

// Download returns ErrNotConfigured.
func (u *NoopUploader) Download(ctx context.Context, name string) ([]byte, error) {
	return nil, ErrNotConfigured
}

// List returns ErrNotConfigured.
func (u *NoopUploader) List(ctx context.Context) ([]string, error) {
	return nil, ErrNotConfigured
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.BackupConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Latest returns the name and content of the newest backup.
func Latest(ctx context.Context, u Uploader) (string, []byte, error) {
	names, err := u.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, ErrNoBackups
	}
	name := names[len(names)-1]
	data, err := u.Download(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

// BackupName returns the object name for a backup taken at t. Names sort in
// chronological order.
func BackupName(t time.Time) string {
	return t.UTC().Format("20060102T150405.000Z") + ".json"
}

// stripScheme removes an http:// or https:// prefix from endpoint, which
// minio expects as a bare host. An explicit scheme overrides useSSL.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// objectKey returns the S3 object key for a backup.
// Convention: {prefix}/backups/{name}
func objectKey(prefix, name string) string {
	if prefix == "" {
		return "backups/" + name
	}
	return strings.TrimSuffix(prefix, "/") + "/backups/" + name
}
