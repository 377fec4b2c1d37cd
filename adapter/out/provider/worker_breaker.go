// Package provider implements the calendar provider adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"

	"calsync_server/pkg/logger"
)

// statusError is a non-2xx answer from a provider API called over net/http.
type statusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// statusCode extracts the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.StatusCode
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// countsAsSuccess keeps per-user rejections out of the breaker: a revoked
// token or a missing event answers 4xx and says nothing about the provider's
// health. Throttling (429), 5xx and transport errors still count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// newBreaker trips after 5 consecutive failures, or a 60% failure ratio over
// at least 10 requests, and probes again after 30 seconds. Client errors do
// not count as failures.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > 5 {
				return true
			}
			if counts.Requests >= 10 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= 0.6
			}
			return false
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: %s -> %s", name, from.String(), to.String())
		},
	})
}
