// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package upload

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseBackoff is the first throttle back-off step.
	DefaultBaseBackoff = 1 * time.Second

	// DefaultMaxBackoff caps the exponential throttle back-off.
	DefaultMaxBackoff = 60 * time.Second

	// maxBackoffShift bounds the exponent so the shift cannot overflow.
	maxBackoffShift = 16
)

// LimiterConfig holds configuration for the upload rate limiter.
type LimiterConfig struct {
	// TokensPerMinute is the proactive budget, matching the embedding
	// quota of the backend. Zero or negative disables the proactive
	// side; the limiter then reacts to throttle responses only.
	TokensPerMinute int

	// BaseBackoff is the first back-off step after a throttle response
	// that carries no server hint.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential back-off.
	MaxBackoff time.Duration
}

// DefaultLimiterConfig returns a reactive-only limiter configuration.
// Set TokensPerMinute when the backend quota is known.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Proceed reports whether the caller may call the backend now.
	Proceed bool

	// WaitUntil is when to re-check, valid when Proceed is false.
	WaitUntil time.Time
}

// RateLimiter gates backend calls with two strategies: a proactive
// token bucket sized from the configured budget, and a reactive window
// driven by the backend's throttle responses. One instance is shared by
// the whole worker pool; all state changes are serialized by its mutex
// and nothing calls the backend without passing through it.
//
// Token accounting: estimates gate admission, actuals settle the
// bucket. Admit checks availability without consuming; ReportSuccess
// charges the delivered cost. Concurrent workers can overshoot the
// budget by at most one batch each, which the reactive side absorbs.
type RateLimiter struct {
	mu                   sync.Mutex
	bucket               *rate.Limiter // nil when proactive side is disabled
	burst                int
	baseBackoff          time.Duration
	maxBackoff           time.Duration
	windowResetAt        time.Time
	consecutiveThrottles int
}

// NewRateLimiter creates a rate limiter from the given configuration.
func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	r := &RateLimiter{
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
	if cfg.TokensPerMinute > 0 {
		// The burst is one full minute of budget: a fresh limiter can
		// spend its whole window at once, then refills continuously.
		r.bucket = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), cfg.TokensPerMinute)
		r.burst = cfg.TokensPerMinute
	}
	return r
}

// Admit checks whether a call of the given estimated cost may proceed
// now. It never blocks; callers that want blocking use Wait.
func (r *RateLimiter) Admit(ctx context.Context, estimatedCost int) Decision {
	if ctx.Err() != nil {
		return Decision{WaitUntil: time.Now()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	// Reactive window: the backend told us to go away until reset.
	if now.Before(r.windowResetAt) {
		return Decision{WaitUntil: r.windowResetAt}
	}

	if r.bucket == nil {
		return Decision{Proceed: true}
	}

	// A cost beyond the burst could never accrue; admit it at full
	// burst so oversized batches still make progress.
	cost := estimatedCost
	if cost > r.burst {
		cost = r.burst
	}

	tokens := r.bucket.TokensAt(now)
	if tokens >= float64(cost) {
		return Decision{Proceed: true}
	}

	deficit := float64(cost) - tokens
	wait := time.Duration(deficit / float64(r.bucket.Limit()) * float64(time.Second))
	return Decision{WaitUntil: now.Add(wait)}
}

// Wait blocks until a call of the given estimated cost may proceed or
// the context is done. Back-pressure, not failure: the only error it
// returns is the context's.
func (r *RateLimiter) Wait(ctx context.Context, estimatedCost int) error {
	for {
		decision := r.Admit(ctx, estimatedCost)
		if decision.Proceed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := time.Until(decision.WaitUntil)
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReportThrottled records a throttle response from the backend. The
// bucket is emptied and admissions are blocked until the server hint
// elapses, or, with no hint, until an exponential back-off keyed to the
// current throttle streak. The window never moves backward.
func (r *RateLimiter) ReportThrottled(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if r.bucket != nil {
		if tokens := int(r.bucket.TokensAt(now)); tokens > 0 {
			r.bucket.AllowN(now, tokens)
		}
	}

	wait := retryAfter
	if wait <= 0 {
		wait = r.backoff(r.consecutiveThrottles)
	}
	if resetAt := now.Add(wait); resetAt.After(r.windowResetAt) {
		r.windowResetAt = resetAt
	}
	r.consecutiveThrottles++
}

// ReportSuccess records a successful backend call: the throttle streak
// resets and the bucket is settled with the actual cost.
func (r *RateLimiter) ReportSuccess(actualCost int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveThrottles = 0

	if r.bucket == nil || actualCost <= 0 {
		return
	}
	cost := actualCost
	if cost > r.burst {
		cost = r.burst
	}
	// Charging may drive the bucket negative; future admissions wait
	// for the refill. That is the budget doing its job.
	r.bucket.ReserveN(time.Now(), cost)
}

// ResetAt returns when the reactive throttle window ends. Zero when no
// window is active.
func (r *RateLimiter) ResetAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windowResetAt
}

// Throttles returns the current consecutive throttle streak.
func (r *RateLimiter) Throttles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveThrottles
}

// backoff computes the nth exponential back-off step with jitter in
// [0.8, 1.2) to spread retries across workers. Must be called with the
// lock held.
func (r *RateLimiter) backoff(n int) time.Duration {
	if n > maxBackoffShift {
		n = maxBackoffShift
	}
	d := r.baseBackoff << uint(n)
	if d > r.maxBackoff || d <= 0 {
		d = r.maxBackoff
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
