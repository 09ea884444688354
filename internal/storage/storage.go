// Package storage ships exported reports to remote object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// UploadOptions conveys upload destination metadata.
type UploadOptions struct {
	Bucket      string
	KeyPrefix   string
	ContentType string
}

// Uploader stores a single object and returns its location.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader, opts UploadOptions) (string, error)
}

// ObjectKey joins the prefix and name with a single slash.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// UploadFile uploads the local file at p under its base name.
func UploadFile(ctx context.Context, u Uploader, p string, opts UploadOptions) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()
	return u.Upload(ctx, filepath.Base(p), f, opts)
}
