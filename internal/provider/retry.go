package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// RetryPredicate decides whether err signals capacity exhaustion (rate limit
// or quota) for one vendor. Each adapter carries its own predicate because
// vendor error shapes differ.
type RetryPredicate func(err error) bool

// StatusCoder is implemented by upstream error types that carry an HTTP
// status.
type StatusCoder interface {
	HTTPStatus() int
}

var rateLimitMarkers = []string{
	"429",
	"quota",
	"rate limit",
	"rate-limit",
	"rate_limit",
	"ratelimit",
	"resource_exhausted",
	"resource exhausted",
	"too many requests",
}

// IsRateLimitText reports whether msg carries a rate-limit or quota marker.
func IsRateLimitText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// DefaultRetryPredicate treats HTTP 429 and rate-limit text as retryable.
// Cancellation and deadlines are never retryable.
func DefaultRetryPredicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var coded StatusCoder
	if errors.As(err, &coded) && coded.HTTPStatus() == http.StatusTooManyRequests {
		return true
	}
	return IsRateLimitText(err.Error())
}

// StatusRetryPredicate only trusts the HTTP status of typed errors, falling
// back to text matching for untyped ones.
func StatusRetryPredicate(statuses ...int) RetryPredicate {
	return func(err error) bool {
		if err == nil {
			return false
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var coded StatusCoder
		if errors.As(err, &coded) {
			for _, s := range statuses {
				if coded.HTTPStatus() == s {
					return true
				}
			}
			return false
		}
		return IsRateLimitText(err.Error())
	}
}
