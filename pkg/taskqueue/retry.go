package taskqueue

import "time"

// RetryPolicy maps priorities to dispatch weights and computes retry backoff.
// Lower weight is serviced first; the ordering is advisory only.
type RetryPolicy struct {
	weights map[Priority]int
}

// DefaultRetryPolicy returns the standard weight table.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		weights: map[Priority]int{
			PriorityLow:      10,
			PriorityMedium:   5,
			PriorityHigh:     2,
			PriorityCritical: 1,
		},
	}
}

// DispatchWeight returns the dispatch weight for a priority. Unknown
// priorities fall back to the medium weight.
func (p *RetryPolicy) DispatchWeight(priority Priority) int {
	if w, ok := p.weights[priority]; ok {
		return w
	}
	return p.weights[PriorityMedium]
}

// Backoff computes the delay before the next attempt: base doubled for every
// completed attempt. Attempt is 1-based, so the delay after the first failure
// is exactly base.
func (p *RetryPolicy) Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
