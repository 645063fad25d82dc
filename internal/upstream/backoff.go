package upstream

import "time"

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

// backoff returns the exponential reconnect delay for a given retry count:
// baseDelay * 2^retry, capped at maxDelay.
func backoff(retry int) time.Duration {
	if retry < 0 {
		return baseDelay
	}
	// 2^30s is already far past the cap; guard the shift.
	if retry > 30 {
		return maxDelay
	}
	d := baseDelay * time.Duration(1<<retry)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
