// Package source reads clip resources (templates, manifests, styles) from
// local directories, HTTP servers or S3 buckets.
//
// Paths are slash-separated and relative to the source's base. Missing
// resources are reported with an error matching fs.ErrNotExist.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

// Source reads resources by relative path.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, name string) ([]byte, error)

// Read implements Source.
func (f Func) Read(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// Options configure Open.
type Options struct {
	// HTTPClient is used for http(s) bases.
	HTTPClient *http.Client
	// S3 configures s3:// bases.
	S3 S3Config
	// Timeout bounds HTTP requests when HTTPClient is nil.
	Timeout time.Duration
}

// Open selects a source by the scheme of base: "s3://bucket/prefix",
// "http://" or "https://" URLs, anything else is a local directory.
func Open(base string, opts Options) (Source, error) {
	switch {
	case strings.HasPrefix(base, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(base, "s3://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid s3 base %q: missing bucket", base)
		}
		return NewS3(NewS3Client(opts.S3), bucket, prefix), nil
	case strings.HasPrefix(base, "http://"), strings.HasPrefix(base, "https://"):
		client := opts.HTTPClient
		if client == nil {
			timeout := opts.Timeout
			if timeout == 0 {
				timeout = 30 * time.Second
			}
			client = &http.Client{Timeout: timeout}
		}
		return NewHTTP(client, base), nil
	default:
		dir, err := Dir(base)
		if err != nil {
			return nil, err
		}
		return dir, nil
	}
}

// Clean validates name and returns it in canonical form.
func Clean(name string) (string, error) {
	if name == "" {
		return "", &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || !fs.ValidPath(cleaned) {
		return "", &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return cleaned, nil
}

func notExist(name string) error {
	return &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
}
