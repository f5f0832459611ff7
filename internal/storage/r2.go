package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// R2Storage reads and archives batch files in a Cloudflare R2 bucket through
// the S3-compatible API.
type R2Storage struct {
	client     *s3.Client
	bucketName string
	logger     *slog.Logger
}

// NewR2Storage builds an S3 client pointed at the account's R2 endpoint.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*R2Storage, error) {
	if cfg.AccountID == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("r2: account ID and bucket name are required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	// Format: https://{account_id}.r2.cloudflarestorage.com
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	logger.Info("initialized R2 batch storage", "bucket", cfg.BucketName, "endpoint", endpoint)

	return &R2Storage{
		client:     client,
		bucketName: cfg.BucketName,
		logger:     logger,
	}, nil
}

// Put uploads the batch. The body is buffered first so the size limit is
// enforced before anything is sent and the request carries a content length.
func (s *R2Storage) Put(ctx context.Context, key string, data io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return &ObjectError{Op: "put", Key: key, Err: err}
	}

	body, err := readBatch(data)
	if err != nil {
		return &ObjectError{Op: "put", Key: key, Err: err}
	}

	result, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(BatchContentType),
	})
	if err != nil {
		return &ObjectError{Op: "put", Key: key, Err: classifyS3Error(err)}
	}

	s.logger.Debug("stored batch in R2", "key", key, "size", len(body), "etag", aws.ToString(result.ETag))
	return nil
}

// Get streams the object. A declared length over the limit is refused up front;
// otherwise the body is bounded while it is read.
func (s *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, &ObjectError{Op: "get", Key: key, Err: err}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &ObjectError{Op: "get", Key: key, Err: classifyS3Error(err)}
	}

	if aws.ToInt64(result.ContentLength) > MaxBatchFileSize {
		result.Body.Close()
		return nil, &ObjectError{Op: "get", Key: key, Err: ErrTooLarge}
	}
	return newBoundedReader(result.Body), nil
}

// Delete removes the object. S3 does not report missing keys on delete.
func (s *R2Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return &ObjectError{Op: "delete", Key: key, Err: err}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return &ObjectError{Op: "delete", Key: key, Err: classifyS3Error(err)}
	}

	s.logger.Debug("deleted batch from R2", "key", key)
	return nil
}

// classifyS3Error maps SDK failures onto the package sentinels.
// Anything unrecognised is wrapped unchanged.
func classifyS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case "EntityTooLarge":
			return fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch status.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}

	return fmt.Errorf("r2: %w", err)
}
