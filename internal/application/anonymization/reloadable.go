package anonymization

import (
	"context"
	"sync/atomic"
)

// Reloadable delegates to a Service that can be replaced while requests
// are in flight.  Each call uses the Service current at its start.
type Reloadable struct {
	current atomic.Pointer[Service]
}

// NewReloadable wraps initial.
func NewReloadable(initial Service) *Reloadable {
	r := &Reloadable{}
	r.Swap(initial)
	return r
}

// Swap installs next for subsequent calls.
func (r *Reloadable) Swap(next Service) {
	r.current.Store(&next)
}

func (r *Reloadable) load() Service { return *r.current.Load() }

// Detect implements Service.
func (r *Reloadable) Detect(ctx context.Context, input *DetectInput) (*DetectionOutput, error) {
	return r.load().Detect(ctx, input)
}

// Anonymize implements Service.
func (r *Reloadable) Anonymize(ctx context.Context, input *AnonymizeInput) (*AnonymizationOutput, error) {
	return r.load().Anonymize(ctx, input)
}

//Personal.AI order the ending
