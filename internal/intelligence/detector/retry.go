package detector

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
)

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy governs how failed detector calls are retried.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// backoff returns the delay before the attempt-th retry: exponential with
// ±25% jitter, capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	return max(time.Duration(base+jitter), 0)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// circuitBreaker
// ---------------------------------------------------------------------------

const (
	cbStateClosed   int32 = 0
	cbStateOpen     int32 = 1
	cbStateHalfOpen int32 = 2
)

var cbStateNames = map[int32]string{
	cbStateClosed:   "CLOSED",
	cbStateOpen:     "OPEN",
	cbStateHalfOpen: "HALF_OPEN",
}

// circuitBreaker stops calling a failing detector server for a cool-down
// period, then lets a single trial call through.
type circuitBreaker struct {
	state            atomic.Int32
	consecutiveFails atomic.Int32
	threshold        int32
	resetDuration    time.Duration
	lastOpenTime     atomic.Int64
	halfOpenPermits  atomic.Int32
	logger           logging.Logger
}

func newCircuitBreaker(threshold int, reset time.Duration, logger logging.Logger) *circuitBreaker {
	cb := &circuitBreaker{
		threshold:     int32(threshold),
		resetDuration: reset,
		logger:        logger,
	}
	cb.state.Store(cbStateClosed)
	return cb
}

func (cb *circuitBreaker) allow() bool {
	if cb == nil || cb.threshold <= 0 {
		return true
	}
	switch cb.state.Load() {
	case cbStateClosed:
		return true
	case cbStateOpen:
		if time.Since(time.Unix(0, cb.lastOpenTime.Load())) < cb.resetDuration {
			return false
		}
		if cb.state.CompareAndSwap(cbStateOpen, cbStateHalfOpen) {
			cb.halfOpenPermits.Store(1)
			cb.logStateChange(cbStateOpen, cbStateHalfOpen)
		}
		return cb.halfOpenPermits.Add(-1) >= 0
	case cbStateHalfOpen:
		return cb.halfOpenPermits.Add(-1) >= 0
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	cb.consecutiveFails.Store(0)
	if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateClosed) {
		cb.logStateChange(cbStateHalfOpen, cbStateClosed)
	}
}

func (cb *circuitBreaker) recordFailure() {
	if cb == nil || cb.threshold <= 0 {
		return
	}
	fails := cb.consecutiveFails.Add(1)
	switch cb.state.Load() {
	case cbStateClosed:
		if fails >= cb.threshold && cb.state.CompareAndSwap(cbStateClosed, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.logStateChange(cbStateClosed, cbStateOpen)
		}
	case cbStateHalfOpen:
		if cb.state.CompareAndSwap(cbStateHalfOpen, cbStateOpen) {
			cb.lastOpenTime.Store(time.Now().UnixNano())
			cb.logStateChange(cbStateHalfOpen, cbStateOpen)
		}
	}
}

func (cb *circuitBreaker) logStateChange(from, to int32) {
	cb.logger.Info("detector circuit-breaker state change",
		logging.String("from", cbStateNames[from]),
		logging.String("to", cbStateNames[to]),
	)
}

func (cb *circuitBreaker) currentState() int32 {
	if cb == nil {
		return cbStateClosed
	}
	return cb.state.Load()
}

//Personal.AI order the ending
