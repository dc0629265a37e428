package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// ProcessRequest is the body of the detect and anonymize endpoints.  Unset
// options fall back to the server configuration.
type ProcessRequest struct {
	DocumentID           string   `json:"document_id"`
	Text                 string   `json:"text" binding:"required"`
	Labels               []string `json:"labels"`
	Threshold            *float64 `json:"threshold"`
	Language             string   `json:"language"`
	PlaceholderFormat    string   `json:"placeholder_format"`
	ResolveEntities      *bool    `json:"resolve_entities"`
	FuzzyMatching        *bool    `json:"fuzzy_matching"`
	IncludeScores        *bool    `json:"include_scores"`
	FilterFalsePositives *bool    `json:"filter_false_positives"`
	Persist              bool     `json:"persist"`
}

func (r *ProcessRequest) options() anonymization.Options {
	return anonymization.Options{
		Labels:               r.Labels,
		Threshold:            r.Threshold,
		Language:             r.Language,
		PlaceholderFormat:    r.PlaceholderFormat,
		ResolveEntities:      r.ResolveEntities,
		FuzzyMatching:        r.FuzzyMatching,
		IncludeScores:        r.IncludeScores,
		FilterFalsePositives: r.FilterFalsePositives,
	}
}

// ArtifactReader reads stored run artifacts.  *minio.ArtifactRepository
// satisfies it.
type ArtifactReader interface {
	ListRun(ctx context.Context, runID string) ([]minio.StoredArtifact, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Key(runID, name string) string
}

// AnonymizationHandler exposes the anonymization service over HTTP.
type AnonymizationHandler struct {
	service   anonymization.Service
	artifacts ArtifactReader
	logger    logging.Logger
}

// NewAnonymizationHandler creates the handler.  artifacts may be nil, in
// which case the run routes answer 501.
func NewAnonymizationHandler(service anonymization.Service, artifacts ArtifactReader, logger logging.Logger) *AnonymizationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnonymizationHandler{service: service, artifacts: artifacts, logger: logger.Named("http")}
}

// RegisterRoutes registers the API routes on r.
func (h *AnonymizationHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/detect", h.Detect)
	r.POST("/anonymize", h.Anonymize)
	r.GET("/runs/:run_id/artifacts", h.ListArtifacts)
	r.GET("/runs/:run_id/artifacts/:name", h.GetArtifact)
}

func (h *AnonymizationHandler) bind(c *gin.Context) (*ProcessRequest, bool) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, h.logger, err)
			return nil, false
		}
		writeError(c, h.logger, errors.Wrap(err, errors.CodeInvalidParam, "invalid request body").WithDetail(err.Error()))
		return nil, false
	}
	return &req, true
}

// Detect handles POST /api/v1/detect.
func (h *AnonymizationHandler) Detect(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	out, err := h.service.Detect(c.Request.Context(), &anonymization.DetectInput{
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Options:    req.options(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.PureJSON(http.StatusOK, out)
}

// Anonymize handles POST /api/v1/anonymize.  Placeholders such as <EMAIL_0>
// are written unescaped.
func (h *AnonymizationHandler) Anonymize(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	out, err := h.service.Anonymize(c.Request.Context(), &anonymization.AnonymizeInput{
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Options:    req.options(),
		Persist:    req.Persist,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.PureJSON(http.StatusOK, out)
}

// ArtifactListResponse lists the artifacts of one run.
type ArtifactListResponse struct {
	RunID     string                 `json:"run_id"`
	Artifacts []minio.StoredArtifact `json:"artifacts"`
}

// ListArtifacts handles GET /api/v1/runs/:run_id/artifacts.
func (h *AnonymizationHandler) ListArtifacts(c *gin.Context) {
	if h.artifacts == nil {
		writeError(c, h.logger, errors.New(errors.CodeNotImplemented, "artifact storage is disabled"))
		return
	}
	runID := c.Param("run_id")
	items, err := h.artifacts.ListRun(c.Request.Context(), runID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if len(items) == 0 {
		writeError(c, h.logger, minio.ErrArtifactNotFound.WithDetail(runID))
		return
	}
	c.JSON(http.StatusOK, ArtifactListResponse{RunID: runID, Artifacts: items})
}

// GetArtifact handles GET /api/v1/runs/:run_id/artifacts/:name.
func (h *AnonymizationHandler) GetArtifact(c *gin.Context) {
	if h.artifacts == nil {
		writeError(c, h.logger, errors.New(errors.CodeNotImplemented, "artifact storage is disabled"))
		return
	}
	name := c.Param("name")
	data, err := h.artifacts.Get(c.Request.Context(), h.artifacts.Key(c.Param("run_id"), name))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentTypeFor(name), data)
}

func contentTypeFor(name string) string {
	switch name {
	case minio.ArtifactAnonymizedText:
		return "text/plain; charset=utf-8"
	case minio.ArtifactMetadata, minio.ArtifactDetection:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

//Personal.AI order the ending
