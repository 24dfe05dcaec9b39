// Package archive stores generated export documents on the local filesystem
// or in an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies an archive backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("archive: object not found")

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"lastModified"`
}

// Store is the archive abstraction used by export jobs.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
}

// Options configures Open.
type Options struct {
	Driver    Driver
	Dir       string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open constructs the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverFilesystem, "":
		return NewFS(opts.Dir)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    opts.Bucket,
			Region:    opts.Region,
			Endpoint:  opts.Endpoint,
			PathStyle: opts.PathStyle,
		})
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", opts.Driver)
	}
}

// cleanKey rejects keys that are empty, absolute or escape the root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("archive: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("archive: absolute key %q", key)
	}
	clean := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("archive: key %q escapes root", key)
	}
	return clean, nil
}

// QuoteMapKey returns the key of a quote map export generated at t.
func QuoteMapKey(t time.Time, filename string) string {
	return path.Join("quote-maps", t.UTC().Format("20060102T150405Z"), filename)
}
