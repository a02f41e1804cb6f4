// Package blobstore manages temporarily stored upload images in a shared
// directory. Names are generated to be unique across concurrent requests, so
// independent uploads never contend on anything but the filesystem itself.
package blobstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platewatch/platewatch-go/internal/errors"
	"github.com/platewatch/platewatch-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("blobstore")
		if serviceLogger == nil {
			serviceLogger = logging.NewDiscardLogger("blobstore")
		}
	})
	return serviceLogger
}

// Store persists image blobs under a single base directory.
type Store struct {
	baseDir           string
	allowedExtensions []string
}

// New creates a blob store rooted at baseDir, creating the directory if
// needed. Only files with one of allowedExtensions may be stored.
func New(baseDir string, allowedExtensions []string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("base_dir", baseDir).
			Build()
	}
	return &Store{
		baseDir:           baseDir,
		allowedExtensions: allowedExtensions,
	}, nil
}

// BaseDir returns the directory blobs are stored in.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// ValidExtension reports whether ext is in the allow-list. Comparison is
// case-insensitive and expects a leading dot.
func (s *Store) ValidExtension(ext string) bool {
	return slices.Contains(s.allowedExtensions, strings.ToLower(ext))
}

// Save writes data to a new uniquely named blob and returns its name.
// The name combines a timestamp prefix with a random suffix so concurrent
// requests never collide.
func (s *Store) Save(data []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if !s.ValidExtension(ext) {
		return "", errors.Newf("extension %q is not allowed", ext).
			Component("blobstore").
			Category(errors.CategoryValidation).
			Build()
	}

	name := fmt.Sprintf("upload-%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)

	if err := os.WriteFile(filepath.Join(s.baseDir, name), data, 0o644); err != nil {
		return "", errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("blob_name", name).
			Build()
	}

	getLogger().Debug("blob stored", "name", name, "size", len(data))
	return name, nil
}

// Delete removes a blob by name. Deleting a blob that does not exist is not
// an error.
func (s *Store) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("blob_name", name).
			Build()
	}
	getLogger().Debug("blob deleted", "name", name)
	return nil
}

// Path returns the absolute filesystem path for a blob name. Names carrying
// path separators or traversal segments are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", errors.Newf("invalid blob name %q", name).
			Component("blobstore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.baseDir, name), nil
}

// Open opens a stored blob for reading. The caller must close it.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("blobstore").
			Category(category).
			Context("blob_name", name).
			Build()
	}
	return f, nil
}
