package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps batch files under a base directory.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	logger.Info("initialized local batch storage", "base_path", absPath)

	return &LocalStorage{
		basePath: absPath,
		logger:   logger,
	}, nil
}

// Put buffers the batch, then writes it to a temporary file in the target
// directory and renames it into place, so readers never see a partial batch.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return &ObjectError{Op: "put", Key: key, Err: err}
	}

	body, err := readBatch(data)
	if err != nil {
		return &ObjectError{Op: "put", Key: key, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ObjectError{Op: "put", Key: key, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, ".batch-*")
	if err != nil {
		return &ObjectError{Op: "put", Key: key, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(body)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmpName)
		return &ObjectError{Op: "put", Key: key, Err: fmt.Errorf("failed to write batch: %w", err)}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &ObjectError{Op: "put", Key: key, Err: fmt.Errorf("failed to move batch into place: %w", err)}
	}

	s.logger.Debug("stored batch file", "key", key, "size", len(body))
	return nil
}

// Get opens the batch file. Oversized files are refused before opening.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return nil, &ObjectError{Op: "get", Key: key, Err: err}
	}

	stat, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &ObjectError{Op: "get", Key: key, Err: ErrNotFound}
	case errors.Is(err, fs.ErrPermission):
		return nil, &ObjectError{Op: "get", Key: key, Err: ErrAccessDenied}
	case err != nil:
		return nil, &ObjectError{Op: "get", Key: key, Err: err}
	case stat.IsDir():
		return nil, &ObjectError{Op: "get", Key: key, Err: ErrNotFound}
	case stat.Size() > MaxBatchFileSize:
		return nil, &ObjectError{Op: "get", Key: key, Err: ErrTooLarge}
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			err = ErrAccessDenied
		}
		return nil, &ObjectError{Op: "get", Key: key, Err: err}
	}
	// The file may grow between Stat and the last Read.
	return newBoundedReader(file), nil
}

// Delete removes the batch file. A missing file is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return &ObjectError{Op: "delete", Key: key, Err: err}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ObjectError{Op: "delete", Key: key, Err: err}
	}

	s.logger.Debug("deleted batch file", "key", key)
	return nil
}

// resolvePath maps a validated key to a path that must stay under basePath.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.basePath+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return path, nil
}
