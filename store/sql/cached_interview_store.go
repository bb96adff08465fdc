package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/hireloop/go-intake/core"
)

const interviewCacheKeyPrefix = "go-intake::interview::v1"

// CachedInterviewStore caches the read path keyed by meeting ref. Webhook
// bursts for one meeting (started, recording events, ended) hammer the same
// lookup; mutations write through and invalidate.
type CachedInterviewStore struct {
	base  core.InterviewStore
	cache repositorycache.CacheService
}

func NewCachedInterviewStore(base core.InterviewStore, cacheService repositorycache.CacheService) (*CachedInterviewStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base interview store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: interview cache service is required")
	}
	return &CachedInterviewStore{base: base, cache: cacheService}, nil
}

// InterviewCacheKey returns the deterministic cache key for interview reads:
// go-intake::interview::v1::<meeting_ref>, with the ref URL-path escaped.
func InterviewCacheKey(meetingRef string) (string, error) {
	meetingRef = strings.TrimSpace(meetingRef)
	if meetingRef == "" {
		return "", fmt.Errorf("sqlstore: meeting ref is required for cache key")
	}
	return interviewCacheKeyPrefix + "::" + url.PathEscape(meetingRef), nil
}

func (s *CachedInterviewStore) GetByMeetingRef(ctx context.Context, meetingRef string) (core.Interview, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: cached interview store is not configured")
	}
	cacheKey, err := InterviewCacheKey(meetingRef)
	if err != nil {
		return core.Interview{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Interview, error) {
		return s.base.GetByMeetingRef(ctx, meetingRef)
	})
}

func (s *CachedInterviewStore) Mutate(ctx context.Context, meetingRef string, fn func(*core.Interview) error) (core.Interview, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: cached interview store is not configured")
	}
	mutated, err := s.base.Mutate(ctx, meetingRef, fn)
	if err != nil {
		return core.Interview{}, err
	}
	if err := s.invalidate(ctx, meetingRef); err != nil {
		return core.Interview{}, err
	}
	return mutated, nil
}

// MutateByID forwards pipeline callbacks when the base store supports them,
// invalidating the meeting-ref cache entry of the mutated interview.
func (s *CachedInterviewStore) MutateByID(ctx context.Context, interviewID string, fn func(*core.Interview) error) (core.Interview, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Interview{}, fmt.Errorf("sqlstore: cached interview store is not configured")
	}
	mutator, ok := s.base.(core.InterviewByIDMutator)
	if !ok {
		return core.Interview{}, fmt.Errorf("sqlstore: base interview store does not mutate by id")
	}
	mutated, err := mutator.MutateByID(ctx, interviewID, fn)
	if err != nil {
		return core.Interview{}, err
	}
	if err := s.invalidate(ctx, mutated.ExternalMeetingRef); err != nil {
		return core.Interview{}, err
	}
	return mutated, nil
}

func (s *CachedInterviewStore) Update(ctx context.Context, interview core.Interview) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached interview store is not configured")
	}
	if err := s.base.Update(ctx, interview); err != nil {
		return err
	}
	return s.invalidate(ctx, interview.ExternalMeetingRef)
}

func (s *CachedInterviewStore) invalidate(ctx context.Context, meetingRef string) error {
	cacheKey, err := InterviewCacheKey(meetingRef)
	if err != nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.InterviewStore = (*CachedInterviewStore)(nil)
