// Package store defines the blob abstraction build artifacts are written to.
// Implementations live in the fs, memory and s3 subpackages.
package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local build directory (default)
	DriverMemory     Driver = "memory" // dry runs and tests
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
)

// ParseDriver maps a configured driver name to a Driver. Empty means fs.
func ParseDriver(s string) (Driver, error) {
	switch Driver(s) {
	case "", DriverFilesystem:
		return DriverFilesystem, nil
	case DriverMemory, DriverS3:
		return Driver(s), nil
	default:
		return "", errors.New("unknown store driver " + s)
	}
}

// ErrNotFound is returned by Get for a key that does not exist.
var ErrNotFound = errors.New("store: key not found")

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
}

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a flat key/value blob store. Keys use forward slashes. Put
// replaces an existing object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	// Reset removes every object, leaving an empty store.
	Reset(ctx context.Context) error
	Driver() Driver
}
