package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage implements Storage on MinIO or any S3-compatible service.
type S3Storage struct {
	client *minio.Client
	bucket string
}

// NewS3Storage connects to the endpoint and creates the bucket when missing.
func NewS3Storage(ctx context.Context, cfg *Config) (*S3Storage, error) {
	if cfg.S3Endpoint == "" {
		return nil, errors.New("S3 endpoint is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.S3Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3Bucket, minio.MakeBucketOptions{Region: cfg.S3Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.S3Bucket, err)
		}
	}

	return &S3Storage{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3Storage) Upload(ctx context.Context, ownerID uuid.UUID, filename string, contentType string, r io.Reader, size int64) (*FileInfo, error) {
	fileID := uuid.New()
	key := objectKey(ownerID, fileID, filename)

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &FileInfo{
		ID:          fileID,
		Name:        filename,
		Size:        info.Size,
		ContentType: contentType,
		Path:        key,
		URL:         fmt.Sprintf("s3://%s/%s", s.bucket, key),
		CreatedAt:   time.Now(),
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}
