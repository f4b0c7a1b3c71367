// Package storage abstracts the filesystem namespace that cooperating
// processes share. A Backend provides the minimal operations the publish
// protocol relies on: existence checks, directory creation, byte copies,
// and atomic rename with overwrite. Atomicity of Rename with respect to
// concurrent readers is the load-bearing guarantee; both backends delegate
// it to the underlying store (POSIX rename, S3 object PUT visibility).
package storage

import (
	"net/url"
	"strings"
)

type Backend interface {
	// Exists reports whether a complete object is visible at path.
	Exists(path string) (bool, error)
	// MakeDirs creates the directory hierarchy for path. No-op for stores
	// without directories.
	MakeDirs(path string) error
	// Copy duplicates src to dst. src is always a local file; dst belongs
	// to this backend's namespace.
	Copy(src string, dst string, overwrite bool) error
	// Rename moves src to dst within this backend's namespace such that
	// concurrent readers of dst observe either the old state or the
	// complete new object, never a partial write.
	Rename(src string, dst string, overwrite bool) error
	// Remote reports whether this backend addresses an object store rather
	// than the local filesystem.
	Remote() bool
}

// IsS3URI
// Reports whether the given path addresses an S3 object.
func IsS3URI(path string) bool {
	if !strings.HasPrefix(path, "s3://") {
		return false
	}
	u, err := url.Parse(path)
	return err == nil && u.Scheme == "s3" && u.Host != ""
}

// ParseS3URI
// Splits an `s3://bucket/key` URI into bucket and key.
func ParseS3URI(uri string) (bucket string, key string) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key
}

// ForPath
// Selects the backend implementation for a destination path: S3 URIs get an
// S3 backend with default credentials, anything else the local filesystem.
func ForPath(path string) (Backend, error) {
	if IsS3URI(path) {
		return NewS3BackendFromEnv()
	}
	return LocalBackend{}, nil
}
