package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"crunchy-cli/internal"
)

// TokenBucketLimiter implements rate limiting using token bucket algorithm
type TokenBucketLimiter struct {
	rate       int64
	bucket     int64
	maxBucket  int64
	lastUpdate time.Time
	mutex      sync.Mutex
}

// NewTokenBucketLimiter creates a new rate limiter
func NewTokenBucketLimiter(bytesPerSecond int64) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:       bytesPerSecond,
		bucket:     bytesPerSecond,
		maxBucket:  bytesPerSecond,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until the specified number of bytes can be consumed
func (r *TokenBucketLimiter) Wait(ctx context.Context, n int) error {
	r.mutex.Lock()

	if r.rate <= 0 {
		r.mutex.Unlock()
		return nil
	}

	// Refill tokens based on elapsed time
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate)
	r.lastUpdate = now

	r.bucket += int64(elapsed.Seconds() * float64(r.rate))
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}

	needed := int64(n)
	if r.bucket >= needed {
		r.bucket -= needed
		r.mutex.Unlock()
		return nil
	}

	deficit := needed - r.bucket
	waitTime := time.Duration(float64(deficit) / float64(r.rate) * float64(time.Second))

	// The deficit is paid for by the wait, later callers start from an empty bucket
	r.bucket = 0
	r.lastUpdate = now.Add(waitTime)
	r.mutex.Unlock()

	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRate updates the rate limit
func (r *TokenBucketLimiter) SetRate(bytesPerSecond int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.rate = bytesPerSecond
	r.maxBucket = bytesPerSecond
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}
}

// Rate returns the configured bytes per second
func (r *TokenBucketLimiter) Rate() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rate
}

// maxThrottledRead caps a single body read so the limiter is consulted often
const maxThrottledRead = 32 * 1024

// RateLimiterService throttles every response body read through one HTTP client.
// The API and the transfer class each get their own service so one class never
// consumes the other's budget.
type RateLimiterService struct {
	limiter *TokenBucketLimiter
	base    http.RoundTripper
	client  *http.Client
}

// NewRateLimiterService wraps the transport of client with a bytes per second limit
func NewRateLimiterService(bytesPerSecond int64, client *http.Client) *RateLimiterService {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	service := &RateLimiterService{
		limiter: NewTokenBucketLimiter(bytesPerSecond),
		base:    base,
	}

	throttled := *client
	throttled.Transport = service
	service.client = &throttled

	return service
}

// Client returns a copy of the wrapped client whose responses are throttled
func (s *RateLimiterService) Client() *http.Client {
	return s.client
}

// Limiter exposes the underlying token bucket
func (s *RateLimiterService) Limiter() internal.RateLimiter {
	return s.limiter
}

// RoundTrip implements http.RoundTripper
func (s *RateLimiterService) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.Body != nil {
		resp.Body = &throttledBody{
			ctx:     req.Context(),
			body:    resp.Body,
			limiter: s.limiter,
		}
	}
	return resp, nil
}

type throttledBody struct {
	ctx     context.Context
	body    io.ReadCloser
	limiter internal.RateLimiter
}

func (b *throttledBody) Read(p []byte) (int, error) {
	if len(p) > maxThrottledRead {
		p = p[:maxThrottledRead]
	}

	n, err := b.body.Read(p)
	if n > 0 {
		if waitErr := b.limiter.Wait(b.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (b *throttledBody) Close() error {
	return b.body.Close()
}

// ParseSpeedLimit parses "<number>[B|KB|MB]" into bytes per second. A bare number is bytes.
func ParseSpeedLimit(limit string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(limit))
	if value == "" {
		return 0, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(value, "kb"):
		value = strings.TrimSuffix(value, "kb")
		multiplier = 1024
	case strings.HasSuffix(value, "mb"):
		value = strings.TrimSuffix(value, "mb")
		multiplier = 1024 * 1024
	case strings.HasSuffix(value, "b"):
		value = strings.TrimSuffix(value, "b")
	}

	number, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || number <= 0 {
		return 0, internal.NewValidationErrorWithValue("speed-limit", "Invalid speed limit", limit).
			WithSuggestion("Use a positive number optionally followed by B, KB or MB (e.g. 500KB)")
	}

	result := number * multiplier
	if result/multiplier != number {
		return 0, internal.NewValidationErrorWithValue("speed-limit", "speed limit overflow", limit)
	}
	return result, nil
}

// FormatSpeedLimit renders bytes per second for log output
func FormatSpeedLimit(bytesPerSecond int64) string {
	switch {
	case bytesPerSecond >= 1024*1024 && bytesPerSecond%(1024*1024) == 0:
		return fmt.Sprintf("%dMB/s", bytesPerSecond/(1024*1024))
	case bytesPerSecond >= 1024 && bytesPerSecond%1024 == 0:
		return fmt.Sprintf("%dKB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%dB/s", bytesPerSecond)
	}
}
