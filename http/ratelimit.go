package http

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff tuning for throttled domains.
const (
	// initialBackoff is the first backoff applied after a throttled response.
	initialBackoff = 1 * time.Second
	// maxBackoff caps the backoff applied after repeated throttled responses.
	maxBackoff = 60 * time.Second
	// backoffMultiplier grows the backoff between consecutive throttles.
	backoffMultiplier = 2.0
	// backoffCooldown is how long after the last throttle before state resets.
	backoffCooldown = 5 * time.Minute
)

// RateLimiterConfig defines per-domain request pacing.
type RateLimiterConfig struct {
	// PageRPS is requests per second for watch pages and the continuation
	// endpoint (default: 2.5).
	PageRPS float64
	// DataAPIRPS is requests per second for the YouTube Data API.
	DataAPIRPS float64
	// CustomRates maps domains to RPS values, overriding the defaults.
	CustomRates map[string]float64
}

// DefaultRateLimiterConfig returns conservative defaults for scraping.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PageRPS:     2.5,
		DataAPIRPS:  1.0,
		CustomRates: make(map[string]float64),
	}
}

// backoffState tracks throttle backoff for a single domain.
type backoffState struct {
	current     time.Duration
	lastError   time.Time
	consecutive int
}

// RateLimiter paces requests per domain using a token bucket, and applies an
// exponential backoff window after throttled responses.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	backoff  map[string]*backoffState
	mu       sync.Mutex
	config   RateLimiterConfig
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.PageRPS == 0 {
		cfg.PageRPS = DefaultRateLimiterConfig().PageRPS
	}
	if cfg.DataAPIRPS == 0 {
		cfg.DataAPIRPS = DefaultRateLimiterConfig().DataAPIRPS
	}
	if cfg.CustomRates == nil {
		cfg.CustomRates = make(map[string]float64)
	}

	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*backoffState),
		config:   cfg,
	}
}

// Wait blocks until the domain's token bucket allows a request, or the
// context is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.getLimiter(extractDomain(urlStr))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// WaitForBackoff blocks for the remainder of any backoff window opened by a
// previous throttled response. Returns immediately if none is active.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	state, ok := rl.backoff[extractDomain(urlStr)]
	var remaining time.Duration
	if ok {
		remaining = state.current - time.Since(state.lastError)
	}
	rl.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordThrottle records a throttled response for the URL's domain and
// returns the backoff to apply before the next attempt. A server-provided
// Retry-After longer than the computed backoff takes precedence.
func (rl *RateLimiter) RecordThrottle(urlStr string, retryAfter time.Duration) time.Duration {
	if rl == nil {
		return retryAfter
	}

	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[domain]
	if !ok {
		state = &backoffState{current: initialBackoff}
		rl.backoff[domain] = state
	}

	state.lastError = time.Now()
	state.consecutive++
	if state.consecutive > 1 {
		state.current = time.Duration(float64(state.current) * backoffMultiplier)
		if state.current > maxBackoff {
			state.current = maxBackoff
		}
	}

	if retryAfter > state.current {
		state.current = retryAfter
	}
	return state.current
}

// RecordSuccess clears backoff state for the URL's domain once the cooldown
// period has passed.
func (rl *RateLimiter) RecordSuccess(urlStr string) {
	if rl == nil {
		return
	}

	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[domain]
	if !ok {
		return
	}
	if time.Since(state.lastError) > backoffCooldown {
		delete(rl.backoff, domain)
		return
	}
	if state.consecutive > 0 {
		state.consecutive--
	}
}

// getLimiter returns the limiter for a domain, creating one if needed.
func (rl *RateLimiter) getLimiter(domain string) *rate.Limiter {
	rps := rl.getRPS(domain)
	if rps == 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[domain]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[domain] = limiter
	return limiter
}

// getRPS returns the requests per second allowed for a domain.
func (rl *RateLimiter) getRPS(domain string) float64 {
	if rps, ok := rl.config.CustomRates[domain]; ok {
		return rps
	}
	switch domain {
	case "www.googleapis.com", "googleapis.com":
		return rl.config.DataAPIRPS
	default:
		return rl.config.PageRPS
	}
}

// extractDomain extracts the host (without port) from a URL string.
func extractDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
