package core

import "time"

// DefaultMaxAttempts is the default retry budget per ledger row. Attempts
// counts retries, not the initial delivery.
const DefaultMaxAttempts = 3

var defaultBackoffTable = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
}

type RetryDecision struct {
	DeadLetter  bool
	NextRetryAt time.Time
}

// RetryScheduler computes backoff annotations for failed ledger rows. It
// never retries inline; the out-of-band sweep owns re-dispatch.
type RetryScheduler struct {
	Backoff     []time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewRetryScheduler() *RetryScheduler {
	return &RetryScheduler{
		Backoff:     append([]time.Duration(nil), defaultBackoffTable...),
		MaxAttempts: DefaultMaxAttempts,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ComputeNextRetry indexes the backoff table with a 0-based, capped attempt
// count: attempts 0,1,2,3 yield offsets of 5, 15, 60, 60 minutes.
func (s *RetryScheduler) ComputeNextRetry(attempts int) time.Time {
	table := s.backoffTable()
	if attempts < 0 {
		attempts = 0
	}
	index := attempts
	if index > len(table)-1 {
		index = len(table) - 1
	}
	return s.now().Add(table[index])
}

// Classify decides between another retry and dead-lettering. attempts is the
// number of retry attempts already consumed.
func (s *RetryScheduler) Classify(attempts int, maxAttempts int) RetryDecision {
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts()
	}
	if attempts >= maxAttempts {
		return RetryDecision{DeadLetter: true}
	}
	return RetryDecision{NextRetryAt: s.ComputeNextRetry(attempts)}
}

func (s *RetryScheduler) maxAttempts() int {
	if s != nil && s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (s *RetryScheduler) backoffTable() []time.Duration {
	if s != nil && len(s.Backoff) > 0 {
		return s.Backoff
	}
	return defaultBackoffTable
}

func (s *RetryScheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
