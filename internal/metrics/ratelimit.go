package metrics

// RecordRateLimitDecision counts one admission decision.
func RecordRateLimitDecision(allowed bool) {
	counter(RateLimitDecisionsTotal, 1, map[string]string{
		"outcome": outcome(allowed, "allowed", "rejected"),
	})
}

// RecordRateLimitSweep reports a sweep pass: entries removed and entries left.
func RecordRateLimitSweep(removed, remaining int) {
	if removed > 0 {
		counter(RateLimitSweptTotal, float64(removed), nil)
	}
	gauge(RateLimitTrackedIdentities, float64(remaining), nil)
}
