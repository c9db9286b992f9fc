// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package storage keeps uploaded media in an S3 bucket.
package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

var (
	ErrBucketMissing = errors.New("bucket does not exist")
	ErrNoFreeName    = errors.New("no free object name")
	ErrEmptyKey      = errors.New("object key is empty")
)

const (
	altSuffixLen = 7
	maxNameTries = 10
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// s3API is the subset of the S3 client used here.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store writes objects to one bucket.
type Store struct {
	api              s3API
	bucket           string
	region           string
	autoCreateBucket bool
	fileOverwrite    bool
	logger           zerolog.Logger
	suffix           func() (string, error)
}

// New loads AWS configuration with the static credentials from cfg.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(s3.NewFromConfig(awsCfg), cfg), nil
}

func newStore(api s3API, cfg config.StorageConfig) *Store {
	return &Store{
		api:              api,
		bucket:           cfg.Bucket,
		region:           cfg.Region,
		autoCreateBucket: cfg.AutoCreateBucket,
		fileOverwrite:    cfg.FileOverwrite,
		logger:           log.WithComponent(config.LoggerBackend).With().Str("bucket", cfg.Bucket).Logger(),
		suffix:           randomSuffix,
	}
}

// EnsureBucket checks the bucket exists and creates it when AutoCreateBucket is set.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	if !s.autoCreateBucket {
		return fmt.Errorf("%w: %s", ErrBucketMissing, s.bucket)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.api.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info().Str("region", s.region).Msg("bucket created")
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", key, err)
}

// AvailableKey returns key unchanged when overwrites are allowed or key is
// free. Otherwise a random suffix is inserted before the extension until a
// free name is found.
func (s *Store) AvailableKey(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	if s.fileOverwrite {
		return key, nil
	}
	dir, file := path.Split(key)
	ext := path.Ext(file)
	root := strings.TrimSuffix(file, ext)

	candidate := key
	for i := 0; i < maxNameTries; i++ {
		exists, err := s.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		suffix, err := s.suffix()
		if err != nil {
			return "", err
		}
		candidate = dir + root + "_" + suffix + ext
	}
	return "", fmt.Errorf("%w: %s", ErrNoFreeName, key)
}

// Upload stores body under an available name derived from key and returns
// the name used.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	ctx, span := telemetry.Tracer("backend/storage").Start(ctx, "storage.upload")
	defer span.End()

	name, err := s.AvailableKey(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err, "storage")
		return "", err
	}
	span.SetAttributes(telemetry.StorageAttributes(s.bucket, name)...)

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		telemetry.RecordError(span, err, "storage")
		return "", fmt.Errorf("put object %s: %w", name, err)
	}
	reqLog := log.WithContext(ctx, s.logger)
	reqLog.Debug().Str("key", name).Msg("object stored")
	return name, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// URL returns the virtual-hosted style URL of key.
func (s *Store) URL(key string) string {
	region := s.region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, region, strings.TrimLeft(key, "/"))
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}

func randomSuffix() (string, error) {
	buf := make([]byte, altSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate name suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(buf), nil
}
