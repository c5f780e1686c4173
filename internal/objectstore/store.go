// Package objectstore provides a small blob storage abstraction over S3
// compatible services, Google Cloud Storage, the local filesystem and memory.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a bucket scoped blob store. Keys are slash separated and never
// start with a slash.
type Store interface {
	// Get returns the full contents of an object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or replaces an object.
	Put(ctx context.Context, key string, data []byte) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes every object under prefix. A prefix with no
	// objects is not an error; an empty prefix is rejected.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases the underlying client.
	Close() error
}

// Supported URI schemes.
const (
	SchemeS3     = "s3"
	SchemeGCS    = "gs"
	SchemeFile   = "file"
	SchemeMemory = "memory"
)

// Location is a parsed storage URI such as s3://bucket/path/to/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits a storage URI into scheme, bucket and key. A plain
// filesystem path is treated as a file URI. For file URIs the bucket is the
// filesystem root ("/" or "." for relative paths).
func ParseURI(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("ParseURI: empty uri")
	}

	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		scheme, rest = SchemeFile, uri
	}

	switch scheme {
	case SchemeFile:
		if strings.HasPrefix(rest, "/") {
			return Location{Scheme: SchemeFile, Bucket: "/", Key: cleanKey(rest)}, nil
		}
		return Location{Scheme: SchemeFile, Bucket: ".", Key: cleanKey(rest)}, nil
	case SchemeS3, SchemeGCS, SchemeMemory:
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("ParseURI: missing bucket in %q", uri)
		}
		return Location{Scheme: scheme, Bucket: bucket, Key: cleanKey(key)}, nil
	default:
		return Location{}, fmt.Errorf("ParseURI: unsupported scheme %q in %q", scheme, uri)
	}
}

// Join returns a location for key under l.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Key}, elem...)
	l.Key = cleanKey(path.Join(parts...))
	return l
}

// Within reports whether l lies in the same scheme and bucket as ref and under
// the directory holding ref's key.
func (l Location) Within(ref Location) bool {
	if l.Scheme != ref.Scheme || l.Bucket != ref.Bucket {
		return false
	}
	if l.Key == ".." || strings.HasPrefix(l.Key, "../") {
		return false
	}
	dir := cleanKey(path.Dir(ref.Key))
	return dir == "" || l.Key == dir || strings.HasPrefix(l.Key, dir+"/")
}

// String renders the location back into URI form.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		if l.Bucket == "/" {
			return "file:///" + l.Key
		}
		return "file://" + l.Key
	}
	if l.Key == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// FileName returns the last element of the key.
func (l Location) FileName() string {
	if l.Key == "" {
		return ""
	}
	return path.Base(l.Key)
}

func cleanKey(k string) string {
	k = strings.Trim(k, "/")
	if k == "" {
		return ""
	}
	k = path.Clean(k)
	if k == "." {
		return ""
	}
	return k
}

// JoinKey joins key elements with slashes.
func JoinKey(elem ...string) string {
	return cleanKey(path.Join(elem...))
}

func checkPrefix(prefix string) error {
	if asPrefix(prefix) == "" {
		return fmt.Errorf("refusing to delete empty prefix")
	}
	return nil
}

// asPrefix makes sure a non-empty prefix ends with a slash so that deleting
// "out/a" does not also match "out/ab".
func asPrefix(p string) string {
	p = cleanKey(p)
	if p == "" {
		return ""
	}
	return p + "/"
}
