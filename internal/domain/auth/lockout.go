package auth

import "math"

// freeRetries is the number of failed attempts tolerated before lockout starts.
const freeRetries = 2

// Lockout is the verdict for one login attempt.
type Lockout struct {
	Blocked          bool
	SecondsRemaining int64
}

// EvaluateLockout decides whether an attempt at nowMillis is blocked. After
// more than two consecutive failures the account is locked for 3^retries
// seconds counted from lastAttemptAtMillis. The remaining time is rounded up
// to whole seconds.
func EvaluateLockout(retries int, lastAttemptAtMillis, nowMillis int64) Lockout {
	if retries <= freeRetries {
		return Lockout{}
	}

	window := lockoutWindowMillis(retries)
	if lastAttemptAtMillis > math.MaxInt64-window {
		return Lockout{Blocked: true, SecondsRemaining: ceilSeconds(math.MaxInt64 - nowMillis)}
	}
	remaining := lastAttemptAtMillis + window - nowMillis
	if remaining <= 0 {
		return Lockout{}
	}
	return Lockout{Blocked: true, SecondsRemaining: ceilSeconds(remaining)}
}

// lockoutWindowMillis returns 3^retries seconds in milliseconds, saturating at MaxInt64.
func lockoutWindowMillis(retries int) int64 {
	window := int64(1000)
	for i := 0; i < retries; i++ {
		if window > math.MaxInt64/3 {
			return math.MaxInt64
		}
		window *= 3
	}
	return window
}

func ceilSeconds(ms int64) int64 {
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	return secs
}
