package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

// Cache is the subset of the redis cache the decorator needs.
type Cache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
}

// CacheObserver is told whether each lookup was served from the cache.
type CacheObserver interface {
	ObserveCacheAccess(hit bool)
}

type noopObserver struct{}

func (noopObserver) ObserveCacheAccess(bool) {}

// CachingDetector memoises an inner detector's results per (chunk text,
// labels, threshold).  Cache failures fall through to the inner detector.
type CachingDetector struct {
	inner     pii.Detector
	cache     Cache
	ttl       time.Duration
	namespace string
	observer  CacheObserver
	logger    logging.Logger
}

// CachingOption configures a CachingDetector.
type CachingOption func(*CachingDetector)

// WithNamespace separates entries of different detector backends.
func WithNamespace(ns string) CachingOption {
	return func(c *CachingDetector) { c.namespace = ns }
}

// WithCacheObserver records hit/miss counts.
func WithCacheObserver(o CacheObserver) CachingOption {
	return func(c *CachingDetector) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCachingDetector wraps inner.
func NewCachingDetector(inner pii.Detector, cache Cache, ttl time.Duration, logger logging.Logger, opts ...CachingOption) *CachingDetector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &CachingDetector{
		inner:     inner,
		cache:     cache,
		ttl:       ttl,
		namespace: "default",
		observer:  noopObserver{},
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Detect implements pii.Detector.
func (c *CachingDetector) Detect(ctx context.Context, text string, labels []string, threshold float64) ([]pii.Detection, error) {
	key := CacheKey(c.namespace, text, labels, threshold)

	loaded := false
	var dets []pii.Detection
	err := c.cache.GetOrSet(ctx, key, &dets, c.ttl, func(ctx context.Context) (interface{}, error) {
		loaded = true
		out, err := c.inner.Detect(ctx, text, labels, threshold)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []pii.Detection{}
		}
		return out, nil
	})
	if err != nil {
		if loaded {
			return nil, err
		}
		c.logger.Warn("detection cache unavailable", logging.Err(err))
		return c.inner.Detect(ctx, text, labels, threshold)
	}
	c.observer.ObserveCacheAccess(!loaded)
	return dets, nil
}

// CacheKey derives the cache key: "det:<namespace>:<sha256 hex>" over the
// text, the sorted lower-cased labels and the threshold.
func CacheKey(namespace, text string, labels []string, threshold float64) string {
	norm := make([]string, len(labels))
	for i, l := range labels {
		norm[i] = strings.ToLower(l)
	}
	sort.Strings(norm)

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(norm, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(threshold, 'f', -1, 64)))
	return "det:" + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

//Personal.AI order the ending
