package models

import "time"

// Backoff returns the wait required after the given number of recorded
// failures: minBackoff × 2^retryCount. Attempt 0 waits the base, attempt 1
// twice that, and so on.
func Backoff(retryCount int, minBackoff time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		// Beyond this the shift overflows a Duration; the record is stuck
		// long before such counts anyway.
		retryCount = 30
	}
	return minBackoff * time.Duration(1<<uint(retryCount))
}

// EligibleAt returns the earliest instant a record with the given retry
// bookkeeping may be attempted again.
func EligibleAt(retryCount int, lastRetryAt time.Time, minBackoff time.Duration) time.Time {
	return lastRetryAt.Add(Backoff(retryCount, minBackoff))
}

// RetryEligible reports whether the track's backoff window has elapsed at
// now. A track that has never failed is always eligible.
func (t *Track) RetryEligible(now time.Time, minBackoff time.Duration) bool {
	if t.LastRetryAt == nil {
		return true
	}
	return !now.Before(EligibleAt(t.RetryCount, *t.LastRetryAt, minBackoff))
}

// Stuck reports whether the track has exhausted its retry budget while
// mid-pipeline. Stuck tracks are never retried automatically; they surface
// through the operator query surface instead.
func (t *Track) Stuck(maxRetries int) bool {
	if t.Status != StatusApproved && t.Status != StatusRecorded {
		return false
	}
	return t.RetryCount >= maxRetries
}
