package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

var (
	ErrArtifactNotFound = errors.New(errors.CodeArtifactNotFound, "artifact not found")
	ErrInvalidArtifact  = errors.New(errors.CodeValidation, "invalid artifact")
)

// Artifact names written per run.
const (
	ArtifactAnonymizedText = "anonymized.txt"
	ArtifactMetadata       = "metadata.json"
	ArtifactDetection      = "detection.json"
)

// Object metadata keys.  Values never contain document text.
const (
	MetaRunID      = "Run-Id"
	MetaDocumentID = "Document-Id"
)

// Artifact is one file of a run.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// StoredArtifact describes an uploaded artifact.
type StoredArtifact struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// ArtifactRepository persists run outputs under <prefix><run id>/<name>.
type ArtifactRepository struct {
	api    API
	cfg    Config
	logger logging.Logger
}

// NewArtifactRepository wraps api.  cfg is defaulted.
func NewArtifactRepository(api API, cfg Config, logger logging.Logger) *ArtifactRepository {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ArtifactRepository{api: api, cfg: cfg, logger: logger.Named("artifacts")}
}

// Bucket returns the configured bucket.
func (r *ArtifactRepository) Bucket() string { return r.cfg.Bucket }

// Key returns the object key of name within run.
func (r *ArtifactRepository) Key(runID, name string) string {
	return r.cfg.Prefix + path.Join(runID, name)
}

// SaveRun uploads all artifacts of a run and returns them in input order.
// It stops at the first failed upload.
func (r *ArtifactRepository) SaveRun(ctx context.Context, runID, documentID string, artifacts []Artifact) ([]StoredArtifact, error) {
	if runID == "" || strings.Contains(runID, "/") {
		return nil, ErrInvalidArtifact.WithDetail("run id must be a single path segment")
	}
	meta := map[string]string{MetaRunID: runID}
	if documentID != "" {
		meta[MetaDocumentID] = documentID
	}

	out := make([]StoredArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Name == "" || strings.Contains(a.Name, "/") {
			return out, ErrInvalidArtifact.WithDetail("artifact name must be a single path segment")
		}
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		key := r.Key(runID, a.Name)
		info, err := r.api.PutObject(ctx, r.cfg.Bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)), minio.PutObjectOptions{
			ContentType:  ct,
			UserMetadata: meta,
		})
		if err != nil {
			return out, errors.Wrapf(err, errors.CodeArtifactUpload, "upload %s", key)
		}
		out = append(out, StoredArtifact{Key: key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified})
	}

	r.logger.Info("run artifacts stored",
		logging.String("run_id", runID),
		logging.Int("artifacts", len(out)))
	return out, nil
}

// Get downloads the object at key.
func (r *ArtifactRepository) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := r.api.GetObject(ctx, r.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrArtifactNotFound.WithDetail(key)
		}
		return nil, errors.Wrapf(err, errors.CodeServiceUnavailable, "get %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrArtifactNotFound.WithDetail(key)
		}
		return nil, errors.Wrapf(err, errors.CodeServiceUnavailable, "read %s", key)
	}
	return data, nil
}

// ListRun returns the artifacts of a run ordered by key.
func (r *ArtifactRepository) ListRun(ctx context.Context, runID string) ([]StoredArtifact, error) {
	prefix := r.Key(runID, "") + "/"
	var out []StoredArtifact
	for obj := range r.api.ListObjects(ctx, r.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, errors.CodeServiceUnavailable, "list %s", prefix)
		}
		out = append(out, StoredArtifact{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteRun removes every artifact of a run.
func (r *ArtifactRepository) DeleteRun(ctx context.Context, runID string) error {
	items, err := r.ListRun(ctx, runID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := r.api.RemoveObject(ctx, r.cfg.Bucket, it.Key, minio.RemoveObjectOptions{}); err != nil {
			return errors.Wrapf(err, errors.CodeServiceUnavailable, "remove %s", it.Key)
		}
	}
	return nil
}

// PresignedURL returns a time-limited download URL for key.
func (r *ArtifactRepository) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = r.cfg.PresignExpiry
	}
	u, err := r.api.PresignedGetObject(ctx, r.cfg.Bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeServiceUnavailable, "presign %s", key)
	}
	return u.String(), nil
}

// HealthCheck verifies the bucket is reachable.
func (r *ArtifactRepository) HealthCheck(ctx context.Context) error {
	ok, err := r.api.BucketExists(ctx, r.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "minio unreachable")
	}
	if !ok {
		return errors.Newf(errors.CodeServiceUnavailable, "bucket %s missing", r.cfg.Bucket)
	}
	return nil
}

//Personal.AI order the ending
