package worker

import "time"

// BackoffDelay computes the delay before retry attempt+1: the base delay
// doubling per completed attempt, bounded by max. Attempt counts start
// at 1.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}

	delay := base << shift
	if max > 0 && delay > max {
		return max
	}
	return delay
}
