package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Gateway provides access to uploaded log files in object storage.
type Gateway struct {
	client *minio.Client
	bucket string
}

// New creates a MinIO-backed gateway.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Gateway, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Gateway{client: client, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (g *Gateway) Bucket() string {
	return g.bucket
}

// EnsureBucket creates the bucket if it does not exist yet.
func (g *Gateway) EnsureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", g.bucket, err)
	}
	if exists {
		return nil
	}
	if err := g.client.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", g.bucket, err)
	}
	log.Info().Str("bucket", g.bucket).Msg("Bucket created")
	return nil
}

// PresignPut returns a presigned URL the client can PUT the file to.
func (g *Gateway) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := g.client.PresignedPutObject(ctx, g.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignGet returns a presigned download URL for an object.
func (g *Gateway) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := g.client.PresignedGetObject(ctx, g.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return u.String(), nil
}

// Stat returns the size of an object in bytes.
func (g *Gateway) Stat(ctx context.Context, key string) (int64, error) {
	info, err := g.client.StatObject(ctx, g.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return info.Size, nil
}

// Get opens an object for reading starting at fromByte. The caller owns the
// returned reader and must close it.
func (g *Gateway) Get(ctx context.Context, key string, fromByte int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if fromByte > 0 {
		if err := opts.SetRange(fromByte, 0); err != nil {
			return nil, fmt.Errorf("failed to set byte range: %w", err)
		}
	}
	obj, err := g.client.GetObject(ctx, g.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return obj, nil
}

// Delete removes an object.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
