// Package storage archives uploaded files on the local filesystem or an
// S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidPath = errors.New("path escapes the storage root")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // key relative to the backend root
	URL         string    `json:"url"`  // file:// or s3:// location recorded on the batch
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Upload stores a file under the owner's prefix and returns its metadata.
	// size may be -1 when unknown.
	Upload(ctx context.Context, ownerID uuid.UUID, filename string, contentType string, r io.Reader, size int64) (*FileInfo, error)

	// Delete removes a file by the Path returned from Upload. Missing files
	// are not an error.
	Delete(ctx context.Context, path string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config holds storage configuration
type Config struct {
	Type StorageType `yaml:"type"`

	LocalPath string `yaml:"local_path"`

	S3Endpoint        string `yaml:"s3_endpoint"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3UseSSL          bool   `yaml:"s3_use_ssl"`
}

// New creates a new Storage implementation based on configuration
func New(ctx context.Context, cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg)
	case StorageTypeLocal:
		fallthrough
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

func objectKey(ownerID, fileID uuid.UUID, filename string) string {
	return ownerID.String() + "/" + fileID.String()[:8] + "_" + SanitizeFilename(filename)
}
