// Package storage holds number batch files in an object store.
//
// Administrators either upload a batch directly, in which case the cleaned list is
// archived here, or drop a newline-delimited file into the bucket and import it by key.
//
// Implementations:
// - LocalStorage: a directory on disk, for development
// - R2Storage: Cloudflare R2 (S3-compatible), for production
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage is what batch ingestion needs from an object store.
// Every object is a text file of at most MaxBatchFileSize bytes.
type Storage interface {
	// Put writes data at key, replacing any existing object.
	// Returns ErrTooLarge without writing anything if data exceeds MaxBatchFileSize.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get opens the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist. Reads past
	// MaxBatchFileSize fail with ErrTooLarge.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// BatchContentType is the MIME type batch files are stored with.
const BatchContentType = "text/plain; charset=utf-8"

// MaxBatchFileSize bounds every object read or written through this package.
const MaxBatchFileSize = 8 << 20

// maxKeyLength matches the S3 object key limit.
const maxKeyLength = 1024

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where batch files live.
	// Example: "./storage" or "/var/lib/dialpool/batches"
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	// AccountID is your Cloudflare account ID.
	AccountID string

	// AccessKeyID is the R2 API access key ID.
	AccessKeyID string

	// SecretAccessKey is the R2 API secret key.
	SecretAccessKey string

	// BucketName is the bucket batch files are dropped into.
	BucketName string

	// Region is the AWS region to use (required by AWS SDK).
	// Default: "auto"
	Region string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// =============================================================================
// Keys
// =============================================================================

// BatchArchiveKey generates the key an uploaded batch is archived under.
// Format: batches/{country}/{tier}/{batchID}.txt
func BatchArchiveKey(country, tier string, batchID uuid.UUID) string {
	return fmt.Sprintf("batches/%s/%s/%s.txt", country, tier, batchID)
}

// ValidateKey rejects keys that are empty, absolute, too long, contain control
// characters or have a ".." segment. Both providers apply it before any I/O.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return ErrInvalidKey
	}
	if strings.IndexFunc(key, unicode.IsControl) >= 0 {
		return ErrInvalidKey
	}
	for _, segment := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// =============================================================================
// Size Bounds
// =============================================================================

// readBatch buffers data, failing with ErrTooLarge once it passes MaxBatchFileSize.
func readBatch(data io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(data, MaxBatchFileSize+1))
	if err != nil {
		return nil, err
	}
	if n > MaxBatchFileSize {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// boundedReader fails with ErrTooLarge once more than MaxBatchFileSize bytes
// have been read. It covers objects whose size was not known up front.
type boundedReader struct {
	rc        io.ReadCloser
	remaining int64
}

func newBoundedReader(rc io.ReadCloser) *boundedReader {
	return &boundedReader{rc: rc, remaining: MaxBatchFileSize}
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrTooLarge
	}
	// Read one byte past the limit so an exact-size object still ends cleanly.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n + int(b.remaining), ErrTooLarge
	}
	return n, err
}

func (b *boundedReader) Close() error {
	return b.rc.Close()
}
