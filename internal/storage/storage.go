// Package storage stores bot packages as blobs and resolves them by public
// URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Storage errors.
var (
	ErrDisabled    = errors.New("file storage is not configured")
	ErrForeignURL  = errors.New("url does not belong to this storage")
	ErrNotFound    = errors.New("stored file not found")
	ErrNotInFolder = errors.New("stored file is outside the expected folder")
)

// FileStore is a blob store addressed by object path and public URL.
type FileStore interface {
	// Upload stores r at objectPath and returns its public URL.
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
	// Delete removes the object behind a URL returned by Upload.
	Delete(ctx context.Context, fileURL string) error
	// ObjectPathFromURL maps a URL returned by Upload back to its object
	// path, or fails with ErrForeignURL.
	ObjectPathFromURL(fileURL string) (string, error)
}

// CheckFolder verifies that fileURL was uploaded to fs directly under folder.
func CheckFolder(fs FileStore, fileURL, folder string) error {
	objectPath, err := fs.ObjectPathFromURL(fileURL)
	if err != nil {
		return err
	}
	if !InFolder(objectPath, folder) {
		return fmt.Errorf("%w: %s", ErrNotInFolder, objectPath)
	}
	return nil
}

// InFolder reports whether objectPath is a single object name directly under
// folder, as produced by ObjectPath.
func InFolder(objectPath, folder string) bool {
	if folder == "" || strings.Contains(folder, "/") {
		return false
	}
	name, ok := strings.CutPrefix(objectPath, folder+"/")
	if !ok {
		return false
	}
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\")
}

// ObjectPath builds the object path for an uploaded package:
// {owner}/{unix-ms}-{name}.
func ObjectPath(owner, fileName string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", owner, now.UnixMilli(), sanitizeName(fileName))
}

// sanitizeName keeps the base name and replaces characters that would
// break the URL.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// Disabled is the FileStore used when no bucket is configured. Uploads fail
// and deletions are no-ops.
type Disabled struct{}

// Upload always fails with ErrDisabled.
func (Disabled) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrDisabled
}

// Delete does nothing.
func (Disabled) Delete(context.Context, string) error {
	return nil
}

// ObjectPathFromURL always fails: nothing was uploaded here.
func (Disabled) ObjectPathFromURL(fileURL string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrForeignURL, fileURL)
}
