package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"metapro/internal/infra"
)

// MinioUploader publishes artifacts to an S3-compatible bucket and returns a
// presigned download link.
type MinioUploader struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
	logger  *infra.Logger
}

// NewMinioUploader connects to the configured endpoint and makes sure the
// bucket exists.
func NewMinioUploader(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*MinioUploader, error) {
	if cfg == nil || cfg.MinioEndpoint == "" {
		return nil, errors.New("storage: MINIO_ENDPOINT is required")
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	u := &MinioUploader{client: client, bucket: cfg.MinioBucket, linkTTL: cfg.MinioLinkTTL, logger: infra.OrDiscard(logger)}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *MinioUploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket: %w", err)
	}
	u.logger.Info().Str("bucket", u.bucket).Msg("created bucket")
	return nil
}

// Upload stores data under name and returns a time-limited GET link.
func (u *MinioUploader) Upload(ctx context.Context, data []byte, name string) (string, error) {
	key, err := sanitizeKey(name)
	if err != nil {
		return "", err
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	u.logger.Info().Str("bucket", u.bucket).Str("key", key).Int64("size", info.Size).Msg("artifact uploaded")

	ttl := u.linkTTL
	if ttl <= 0 || ttl > 7*24*time.Hour {
		ttl = 7 * 24 * time.Hour
	}
	link, err := u.client.PresignedGetObject(ctx, u.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return link.String(), nil
}
