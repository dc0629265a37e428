package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New(errors.CodeDetectorUnavailable, "detector circuit open")

// detectRequest is the JSON body POSTed to the model server.
type detectRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold"`
}

// detectResponse carries chunk-relative entities with character (rune)
// offsets.  An entity without "score" decodes with a nil Score, which the
// pipeline rejects.
type detectResponse struct {
	Entities []pii.Detection `json:"entities"`
}

// HTTPDetector calls an external span-prediction server.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	retry    RetryPolicy
	breaker  *circuitBreaker
	logger   logging.Logger
}

// NewHTTPDetector validates cfg.Endpoint and builds the client.
func NewHTTPDetector(cfg Config, logger logging.Logger) (*HTTPDetector, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "http detector requires an endpoint")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger = logger.Named("detector.http")
	return &HTTPDetector{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		retry: RetryPolicy{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		breaker: newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset, logger),
		logger:  logger,
	}, nil
}

// Detect implements pii.Detector.
func (d *HTTPDetector) Detect(ctx context.Context, text string, labels []string, threshold float64) ([]pii.Detection, error) {
	if !d.breaker.allow() {
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(detectRequest{Text: text, Labels: labels, Threshold: threshold})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "encode detect request")
	}

	var lastErr error
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.retry.backoff(attempt-1)); err != nil {
				return nil, errors.Wrap(err, errors.CodeDetectorTimeout, "detect cancelled during backoff")
			}
		}

		dets, retryable, err := d.call(ctx, body)
		if err == nil {
			d.breaker.recordSuccess()
			return toByteOffsets(text, dets), nil
		}
		lastErr = err
		if !retryable {
			break
		}
		d.logger.Warn("detector call failed",
			logging.Int("attempt", attempt+1),
			logging.Redacted("text", text),
			logging.Err(err),
		)
	}

	d.breaker.recordFailure()
	return nil, lastErr
}

// call performs one request.  retryable is true for transport failures,
// 429 and 5xx responses.
func (d *HTTPDetector) call(ctx context.Context, body []byte) (dets []pii.Detection, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeConfigInvalid, "build detect request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, errors.Wrap(err, errors.CodeDetectorTimeout, "detect request cancelled")
		}
		return nil, true, errors.Wrap(err, errors.CodeDetectorUnavailable, "detect request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, true, errors.Wrap(err, errors.CodeDetectorUnavailable, "read detect response")
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, errors.Newf(errors.CodeDetectorResponse, "detector returned status %d", resp.StatusCode).
			WithDetail(truncate(string(payload), 256))
	}

	var out detectResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeDetectorResponse, "decode detect response")
	}
	return out.Entities, false, nil
}

// toByteOffsets rewrites the server's rune offsets as byte offsets into text.
// Offsets past the end of text map to -1 so the pipeline rejects them.
func toByteOffsets(text string, dets []pii.Detection) []pii.Detection {
	if len(dets) == 0 {
		return dets
	}
	offsets := pii.RuneOffsets(text)
	at := func(runeIdx int) int {
		if runeIdx < 0 || runeIdx >= len(offsets) {
			return -1
		}
		return offsets[runeIdx]
	}
	for i := range dets {
		dets[i].Start = at(dets[i].Start)
		dets[i].End = at(dets[i].End)
	}
	return dets
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}

//Personal.AI order the ending
