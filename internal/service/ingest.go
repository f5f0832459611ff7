package service

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/metrics"
	"github.com/DukeRupert/dialpool/internal/storage"
	"github.com/DukeRupert/dialpool/internal/store"
)

// MaxBatchNumbers bounds how many numbers one batch may carry.
const MaxBatchNumbers = 10000

// =============================================================================
// Interface Definition
// =============================================================================

// IngestService adds numbers to the pool.
type IngestService interface {
	// UploadBatch ingests the numbers carried in the request and archives the raw list.
	UploadBatch(ctx context.Context, params domain.BatchParams) (*domain.BatchResult, error)

	// ImportBatch reads a newline-delimited list from object storage and ingests it.
	ImportBatch(ctx context.Context, objectKey string, params domain.BatchParams) (*domain.BatchResult, error)
}

// =============================================================================
// Implementation
// =============================================================================

type ingestService struct {
	store   store.Store
	storage storage.Storage
	clock   Clock
	logger  *slog.Logger
}

// NewIngestService creates a new IngestService. objects may be nil, in which case
// uploads are not archived and imports are rejected.
func NewIngestService(st store.Store, objects storage.Storage, clock Clock, logger *slog.Logger) IngestService {
	return &ingestService{
		store:   st,
		storage: objects,
		clock:   clock,
		logger:  logger,
	}
}

// UploadBatch validates, archives and ingests an uploaded batch.
func (s *ingestService) UploadBatch(ctx context.Context, params domain.BatchParams) (*domain.BatchResult, error) {
	const op = "ingest.upload_batch"

	if params.Source == "" {
		params.Source = "upload"
	}
	return s.ingest(ctx, op, params, true)
}

// ImportBatch loads the object and feeds it through the upload path.
func (s *ingestService) ImportBatch(ctx context.Context, objectKey string, params domain.BatchParams) (*domain.BatchResult, error) {
	const op = "ingest.import_batch"

	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil, domain.Invalid(op, "object_key is required")
	}
	if s.storage == nil {
		return nil, domain.Invalid(op, "Object storage is not configured.")
	}

	rc, err := s.storage.Get(ctx, objectKey)
	if err != nil {
		return nil, storageError(op, objectKey, err)
	}
	defer rc.Close()

	numbers, err := readNumberLines(rc)
	if err != nil {
		return nil, storageError(op, objectKey, err)
	}

	params.Numbers = numbers
	params.Source = objectKey
	return s.ingest(ctx, op, params, false)
}

func (s *ingestService) ingest(ctx context.Context, op string, params domain.BatchParams, archive bool) (*domain.BatchResult, error) {
	country, ok := domain.ParseCountry(params.Country)
	if !ok {
		return nil, domain.Invalid(op, "Invalid tier or country provided.")
	}
	if !params.Tier.Valid() {
		return nil, domain.Invalid(op, "Invalid tier or country provided.")
	}
	params.Country = country
	params.SourceBatchID = strings.TrimSpace(params.SourceBatchID)

	if len(params.Numbers) > MaxBatchNumbers {
		return nil, domain.Invalid(op, "Too many numbers in one batch.")
	}
	numbers, duplicates := normalizeNumbers(params.Numbers)
	if len(numbers) == 0 {
		return nil, domain.Invalid(op, "No valid unique numbers provided in the batch.")
	}
	params.Numbers = numbers

	batchID := uuid.New()
	now := s.clock.Now()

	var archiveKey string
	if archive && s.storage != nil {
		archiveKey = storage.BatchArchiveKey(country, string(params.Tier), batchID)
		body := strings.NewReader(strings.Join(numbers, "\n") + "\n")
		if err := s.storage.Put(ctx, archiveKey, body); err != nil {
			// Archiving is best effort; the batch row still records the upload.
			s.logger.Warn("Failed to archive batch", "op", op, "batch_id", batchID, "error", err)
			archiveKey = ""
		}
	}

	result, err := s.store.IngestBatch(ctx, batchID, params, now)
	if err != nil {
		if archiveKey != "" {
			if derr := s.storage.Delete(ctx, archiveKey); derr != nil {
				s.logger.Warn("Failed to remove batch archive", "op", op, "key", archiveKey, "error", derr)
			}
		}
		return nil, domain.Internal(err, op, "failed to ingest batch")
	}
	result.Skipped += duplicates

	key := domain.PoolKey{Country: country, Tier: params.Tier}
	metrics.BatchIngested(key, result.Uploaded, result.Skipped)
	s.logger.Info("Batch ingested",
		"op", op,
		"batch_id", batchID,
		"country", country,
		"tier", params.Tier,
		"uploaded", result.Uploaded,
		"skipped", result.Skipped,
		"uploaded_by", params.UploadedBy,
	)
	return &result, nil
}

// normalizeNumbers trims every entry, drops blanks and removes repeats within the batch.
// It returns the unique numbers in input order and how many repeats were dropped.
func normalizeNumbers(raw []string) ([]string, int) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	duplicates := 0
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			duplicates++
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, duplicates
}

// storageError maps an object storage failure during an import to the API taxonomy.
func storageError(op, objectKey string, err error) error {
	switch {
	case storage.IsNotFound(err):
		return domain.NotFound(op, "object", objectKey)
	case storage.IsInvalidKey(err):
		return domain.Invalid(op, "object_key is invalid")
	case storage.IsTooLarge(err):
		return domain.Invalid(op, "Batch file is too large.")
	case storage.IsAccessDenied(err):
		return domain.Forbidden(op, "Object storage denied access to the batch file.")
	}
	return domain.Internal(err, op, "failed to read batch file")
}

// readNumberLines splits a batch file into lines. Lines starting with '#' are comments.
func readNumberLines(r io.Reader) ([]string, error) {
	var numbers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		numbers = append(numbers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return numbers, nil
}
