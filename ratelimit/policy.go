package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/hireloop/go-intake/core"
)

const (
	// DefaultRequestsPerWindow is the per-provider ingress budget. Providers
	// redeliver aggressively after outages; the ceiling protects the ledger
	// without rejecting normal bursts.
	DefaultRequestsPerWindow = 600
	DefaultWindow            = time.Minute
)

// ThrottledError reports a rejected delivery and how long the caller should
// wait before the window rolls over.
type ThrottledError struct {
	Provider   string
	Bucket     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: provider %q bucket %q throttled for %s",
		strings.TrimSpace(e.Provider),
		strings.TrimSpace(e.Bucket),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToIntakeError() *goerrors.Error {
	metadata := map[string]any{
		"provider": strings.TrimSpace(e.Provider),
		"bucket":   strings.TrimSpace(e.Bucket),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.IntakeErrorRateLimited).
		WithMetadata(metadata)
}

type window struct {
	start time.Time
	count int
}

// FixedWindowPolicy counts deliveries per (provider, bucket) inside a fixed
// window and rejects fast once the budget is spent. Rejected deliveries are
// never queued; the provider retries and the ledger dedupes the replay.
type FixedWindowPolicy struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func NewFixedWindowPolicy(limit int, windowSize time.Duration) *FixedWindowPolicy {
	if limit <= 0 {
		limit = DefaultRequestsPerWindow
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &FixedWindowPolicy{
		Limit:   limit,
		Window:  windowSize,
		Now:     func() time.Time { return time.Now().UTC() },
		windows: map[string]*window{},
	}
}

func (p *FixedWindowPolicy) Allow(_ context.Context, key core.RateLimitKey) error {
	if p == nil {
		return nil
	}

	normalized := normalizeKey(key)
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.windows == nil {
		p.windows = map[string]*window{}
	}
	bucket, ok := p.windows[stateKey(normalized)]
	if !ok || now.Sub(bucket.start) >= p.windowSize() {
		bucket = &window{start: now}
		p.windows[stateKey(normalized)] = bucket
	}

	if bucket.count >= p.limit() {
		retryAfter := bucket.start.Add(p.windowSize()).Sub(now)
		return ThrottledError{
			Provider:   string(normalized.Provider),
			Bucket:     normalized.Bucket,
			RetryAfter: retryAfter,
		}.ToIntakeError()
	}

	bucket.count++
	return nil
}

func (p *FixedWindowPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *FixedWindowPolicy) limit() int {
	if p != nil && p.Limit > 0 {
		return p.Limit
	}
	return DefaultRequestsPerWindow
}

func (p *FixedWindowPolicy) windowSize() time.Duration {
	if p != nil && p.Window > 0 {
		return p.Window
	}
	return DefaultWindow
}

func normalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		Provider: core.Provider(strings.TrimSpace(strings.ToLower(string(key.Provider)))),
		Bucket:   strings.TrimSpace(strings.ToLower(key.Bucket)),
	}
}

func stateKey(key core.RateLimitKey) string {
	return string(key.Provider) + "|" + key.Bucket
}
