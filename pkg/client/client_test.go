package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "piianon-go-sdk/")
	assert.Same(t, c.Runs(), c.Runs())

	for _, bad := range []string{"", "ftp://invalid", "invalid-url", "http://[::1"} {
		_, err := NewClient(bad)
		assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid), bad)
	}
}

func TestAnonymize_RequestAndResponse(t *testing.T) {
	var got map[string]interface{}
	var headers http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/anonymize", r.URL.Path)
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"run_id": "run-1",
			"language": "de",
			"anonymized_text": "Hallo [NAME_0]",
			"entity_mapping": {"[NAME_0]": "Max", "[EMAIL_0]": {"text": "max@example.org", "score": 0.91}},
			"entities": [{"text": "Max", "label": "person", "start": 6, "end": 9, "token_start": 1, "token_end": 2, "score": 0.9}],
			"statistics": {"total_entities": 1, "labels": {"person": 1}, "entity_resolution": true, "placeholders": 2}
		}`))
	}, WithAPIKey("k1"))

	out, err := c.Anonymize(context.Background(), &Request{
		Text:              "Hallo Max",
		Labels:            []string{"person"},
		Threshold:         Float64(0.5),
		PlaceholderFormat: FormatBrackets,
		FuzzyMatching:     Bool(false),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hallo Max", got["text"])
	assert.Equal(t, 0.5, got["threshold"])
	assert.Equal(t, false, got["fuzzy_matching"])
	assert.NotContains(t, got, "resolve_entities")
	assert.NotContains(t, got, "persist")
	assert.Equal(t, "Bearer k1", headers.Get("Authorization"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "Hallo [NAME_0]", out.AnonymizedText)
	assert.Equal(t, "Max", out.EntityMapping["[NAME_0]"].Text)
	assert.Nil(t, out.EntityMapping["[NAME_0]"].Score)
	require.NotNil(t, out.EntityMapping["[EMAIL_0]"].Score)
	assert.InDelta(t, 0.91, *out.EntityMapping["[EMAIL_0]"].Score, 1e-9)
	assert.Equal(t, 1, out.Statistics.TotalEntities)
	assert.True(t, out.Statistics.EntityResolution)
	assert.Equal(t, 2, out.Statistics.Placeholders)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, 6, out.Entities[0].Start)
}

func TestRequestValidation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	ctx := context.Background()

	_, err := c.Detect(ctx, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Detect(ctx, &Request{})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Anonymize(ctx, &Request{Text: "x", Threshold: Float64(1.2)})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Runs().ListArtifacts(ctx, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Runs().GetArtifact(ctx, "run", "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	assert.Zero(t, calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PII_002","message":"threshold outside [0,1]","request_id":"srv-1"}`))
	})

	_, err := c.Detect(context.Background(), &Request{Text: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBadRequest())
	assert.Equal(t, "PII_002", apiErr.Code)
	assert.Equal(t, "srv-1", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "HTTP 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"text":"x","language":"de","entities_with_scores":[],"statistics":{"total_entities":0}}`))
	}, WithLogger(logger))

	out, err := c.Detect(context.Background(), &Request{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "de", out.Language)
	assert.Equal(t, int32(3), calls.Load())
	assert.Positive(t, logger.debug)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}, WithRetryMax(2))

	_, err := c.Detect(context.Background(), &Request{Text: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryAfterHonoured(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"text":"x"}`))
	})

	_, err := c.Detect(context.Background(), &Request{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryWait(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Detect(ctx, &Request{Text: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRuns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/api/v1/runs/run%201/artifacts":
			_, _ = w.Write([]byte(`{"run_id":"run 1","artifacts":[{"key":"runs/run 1/anonymized.txt","size":12}]}`))
		case "/api/v1/runs/run-2/artifacts/anonymized.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Hallo [NAME_0]"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"STORE_004","message":"artifact not found"}`))
		}
	})
	ctx := context.Background()

	list, err := c.Runs().ListArtifacts(ctx, "run 1")
	require.NoError(t, err)
	require.Len(t, list.Artifacts, 1)
	assert.Equal(t, int64(12), list.Artifacts[0].Size)

	data, err := c.Runs().GetArtifact(ctx, "run-2", "anonymized.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hallo [NAME_0]", string(data))

	_, err = c.Runs().GetArtifact(ctx, "missing", "metadata.json")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestCalculateBackoff(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: time.Second}
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 5: time.Second} {
		got := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, got, base)
		assert.Less(t, got, base+base/4+time.Nanosecond)
	}
}

//Personal.AI order the ending
