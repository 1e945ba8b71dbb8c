// Package files stores uploaded profile images on the local filesystem or S3.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Kxd395/AxxessWebUI/pkg/storage"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("file not found")

// Object is an opened stored file
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Storage is an object store keyed by slash-separated names
type Storage interface {
	Upload(ctx context.Context, name string, content io.Reader, contentType string) error
	Open(ctx context.Context, name string) (*Object, error)
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context, prefix string) error
	HealthCheck(ctx context.Context) error
}

// New selects a provider from cfg.UploadDir: "s3://bucket/prefix" or a local directory
func New(ctx context.Context, cfg storage.Config) (Storage, error) {
	if strings.HasPrefix(cfg.UploadDir, "s3://") {
		bucket, prefix := ParseS3Location(cfg.UploadDir)
		if bucket == "" {
			return nil, fmt.Errorf("s3 upload location must name a bucket")
		}
		return NewS3Storage(ctx, cfg, bucket, prefix)
	}
	return NewLocalStorage(cfg.UploadDir)
}

// ParseS3Location splits s3://bucket/prefix into bucket and prefix
func ParseS3Location(location string) (bucket, prefix string) {
	rest := strings.TrimPrefix(location, "s3://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/")
}

// CleanName rejects names that could escape the storage root
func CleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	cleaned := path.Clean("/" + name)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(name, "/") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return cleaned, nil
}
