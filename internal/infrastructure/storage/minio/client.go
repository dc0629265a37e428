// Package minio stores anonymization artifacts in an S3-compatible bucket.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// API is the subset of *minio.Client the repository uses.  GetObject
// returns an io.ReadCloser so tests can serve objects from memory.
type API interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucket string, cfg *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
}

type clientAdapter struct{ *minio.Client }

func (a clientAdapter) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucket, key, opts)
}

// Config configures the artifact store.
type Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	RetentionDays   int           `mapstructure:"retention_days"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Bucket == "" {
		c.Bucket = "piianon-artifacts"
	}
	if c.Prefix == "" {
		c.Prefix = "runs/"
	}
	if c.PresignExpiry == 0 {
		c.PresignExpiry = time.Hour
	}
}

// NewAPI connects to the endpoint in cfg.
func NewAPI(cfg Config) (API, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "minio endpoint required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "create minio client")
	}
	return clientAdapter{client}, nil
}

// EnsureBucket creates the bucket if needed and installs the retention rule.
// A lifecycle failure is logged, not returned.
func EnsureBucket(ctx context.Context, api API, cfg Config, logger logging.Logger) error {
	exists, err := api.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "check bucket")
	}
	if !exists {
		if err := api.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return errors.Wrapf(err, errors.CodeArtifactUpload, "create bucket %s", cfg.Bucket)
		}
		logger.Info("bucket created", logging.String("bucket", cfg.Bucket))
	}

	if cfg.RetentionDays > 0 {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{{
			ID:         "artifact-retention",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: cfg.Prefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(cfg.RetentionDays)},
		}}
		if err := api.SetBucketLifecycle(ctx, cfg.Bucket, lc); err != nil {
			logger.Warn("failed to set bucket lifecycle", logging.String("bucket", cfg.Bucket), logging.Err(err))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

//Personal.AI order the ending
