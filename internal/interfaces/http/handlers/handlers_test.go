package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/internal/interfaces/http/middleware"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct {
	detectIn    *anonymization.DetectInput
	anonymizeIn *anonymization.AnonymizeInput
	err         error
}

func (f *fakeService) Detect(_ context.Context, in *anonymization.DetectInput) (*anonymization.DetectionOutput, error) {
	f.detectIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &anonymization.DetectionOutput{Text: in.Text, Language: "de"}, nil
}

func (f *fakeService) Anonymize(_ context.Context, in *anonymization.AnonymizeInput) (*anonymization.AnonymizationOutput, error) {
	f.anonymizeIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &anonymization.AnonymizationOutput{
		RunID:          "run-1",
		AnonymizedText: "[NAME_0] wohnt hier.",
		EntityMapping:  map[string]pii.MappingEntry{"[NAME_0]": {Text: "Anna"}},
	}, nil
}

type fakeArtifacts struct {
	items map[string][]byte
}

func (f *fakeArtifacts) Key(runID, name string) string { return runID + "/" + name }

func (f *fakeArtifacts) ListRun(_ context.Context, runID string) ([]minio.StoredArtifact, error) {
	var out []minio.StoredArtifact
	for k, v := range f.items {
		if strings.HasPrefix(k, runID+"/") {
			out = append(out, minio.StoredArtifact{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := f.items[key]; ok {
		return v, nil
	}
	return nil, minio.ErrArtifactNotFound.WithDetail(key)
}

func newEngine(svc anonymization.Service, art ArtifactReader, limit int64) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.BodyLimit(limit))
	NewAnonymizationHandler(svc, art, nil).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDetect_PassesOptions(t *testing.T) {
	svc := &fakeService{}
	r := newEngine(svc, nil, 0)

	w := do(r, http.MethodPost, "/api/v1/detect",
		`{"document_id":"d1","text":"Anna wohnt hier.","labels":["person"],"threshold":0.7,"fuzzy_matching":false}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.detectIn)
	assert.Equal(t, "d1", svc.detectIn.DocumentID)
	assert.Equal(t, []string{"person"}, svc.detectIn.Options.Labels)
	require.NotNil(t, svc.detectIn.Options.Threshold)
	assert.InDelta(t, 0.7, *svc.detectIn.Options.Threshold, 1e-9)
	require.NotNil(t, svc.detectIn.Options.FuzzyMatching)
	assert.False(t, *svc.detectIn.Options.FuzzyMatching)
	assert.Nil(t, svc.detectIn.Options.ResolveEntities)

	var out anonymization.DetectionOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Anna wohnt hier.", out.Text)
}

func TestAnonymize_Success(t *testing.T) {
	svc := &fakeService{}
	r := newEngine(svc, nil, 0)

	w := do(r, http.MethodPost, "/api/v1/anonymize", `{"text":"Anna wohnt hier.","persist":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.anonymizeIn.Persist)
	assert.Contains(t, w.Body.String(), `"[NAME_0] wohnt hier."`)
}

func TestAnonymize_MissingText(t *testing.T) {
	r := newEngine(&fakeService{}, nil, 0)

	w := do(r, http.MethodPost, "/api/v1/anonymize", `{"labels":["person"]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, string(errors.CodeInvalidParam), resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestAnonymize_MalformedJSON(t *testing.T) {
	r := newEngine(&fakeService{}, nil, 0)
	w := do(r, http.MethodPost, "/api/v1/anonymize", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnonymize_BodyTooLarge(t *testing.T) {
	r := newEngine(&fakeService{}, nil, 32)
	body := `{"text":"` + strings.Repeat("a", 100) + `"}`

	w := do(r, http.MethodPost, "/api/v1/anonymize", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAnonymize_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"client error keeps message", errors.New(errors.CodePlaceholderFormat, "unknown placeholder format").WithDetail("square"), http.StatusBadRequest, "unknown placeholder format: square"},
		{"threshold", errors.New(errors.CodeThresholdOutOfRange, "threshold out of range"), http.StatusBadRequest, "threshold out of range"},
		{"detector down is masked", errors.New(errors.CodeDetectorUnavailable, "dial tcp 10.0.0.1:8000 refused"), http.StatusServiceUnavailable, "detector unavailable"},
		{"unknown error is masked", assert.AnError, http.StatusInternalServerError, "unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(&fakeService{err: tt.err}, nil, 0)
			w := do(r, http.MethodPost, "/api/v1/anonymize", `{"text":"x"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Message)
		})
	}
}

func TestArtifacts_Disabled(t *testing.T) {
	r := newEngine(&fakeService{}, nil, 0)
	w := do(r, http.MethodGet, "/api/v1/runs/run-1/artifacts", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestArtifacts_ListAndGet(t *testing.T) {
	art := &fakeArtifacts{items: map[string][]byte{
		"run-1/" + minio.ArtifactAnonymizedText: []byte("[NAME_0] wohnt hier."),
		"run-1/" + minio.ArtifactMetadata:       []byte(`{}`),
	}}
	r := newEngine(&fakeService{}, art, 0)

	w := do(r, http.MethodGet, "/api/v1/runs/run-1/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ArtifactListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "run-1", list.RunID)
	assert.Len(t, list.Artifacts, 2)

	w = do(r, http.MethodGet, "/api/v1/runs/run-1/artifacts/"+minio.ArtifactAnonymizedText, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[NAME_0] wohnt hier.", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = do(r, http.MethodGet, "/api/v1/runs/run-1/artifacts/missing.json", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/runs/run-2/artifacts", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                  { return s.name }
func (s stubChecker) Check(_ context.Context) error { return s.err }

func newHealthEngine(checkers ...HealthChecker) *gin.Engine {
	r := gin.New()
	NewHealthHandler("1.2.3", checkers...).RegisterRoutes(r)
	return r
}

func TestHealth_Liveness(t *testing.T) {
	w := do(newHealthEngine(stubChecker{"redis", assert.AnError}), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealth_Readiness(t *testing.T) {
	t.Run("no checkers", func(t *testing.T) {
		w := do(newHealthEngine(), http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
	t.Run("all healthy", func(t *testing.T) {
		w := do(newHealthEngine(stubChecker{name: "redis"}, stubChecker{name: "minio"}), http.MethodGet, "/readyz", "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Len(t, resp.Components, 2)
	})
	t.Run("one unhealthy", func(t *testing.T) {
		w := do(newHealthEngine(stubChecker{name: "redis"}, stubChecker{"minio", assert.AnError}), http.MethodGet, "/readyz", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "unhealthy", resp.Components["minio"].Status)
		assert.Equal(t, "healthy", resp.Components["redis"].Status)
	})
}

func TestHealth_Detailed(t *testing.T) {
	w := do(newHealthEngine(stubChecker{"redis", assert.AnError}), http.MethodGet, "/healthz/detail", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp DetailedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Components["redis"].Error)
}

//Personal.AI order the ending
