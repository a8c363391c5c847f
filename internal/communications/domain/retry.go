package domain

import (
	"math"
	"time"
)

// RetryPolicy bounds redelivery of failed communications.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultRetryPolicy retries three times after 60s, 120s and 240s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  60 * time.Second,
		Multiplier: 2,
	}
}

// CanRetry returns true while the retry budget is not exhausted.
func (p RetryPolicy) CanRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Delay returns the backoff for the given 1-based attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
}
