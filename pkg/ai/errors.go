package ai

import (
	"context"
	"errors"
	"fmt"
)

// ExternalServiceError wraps a failure of the reasoning model or another
// external collaborator. Retryable failures (timeouts, 5xx-class responses,
// throttling) are retried with bounded backoff by callers; fatal failures
// (auth, malformed request) surface immediately.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// WrapServiceError classifies err by HTTP status code. statusCode 0 means no
// response was received, which is treated as retryable (network fault or
// timeout).
func WrapServiceError(service string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:    service,
		StatusCode: statusCode,
		Retryable:  retryableStatus(statusCode),
		Err:        err,
	}
}

// retryableStatus reports whether a status code indicates a transient
// failure. 408 and 429 are throttling/timeout signals; 5xx is server-side.
// 4xx otherwise means the request itself is wrong and retrying cannot help.
func retryableStatus(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode == 408 || statusCode == 429:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is worth retrying: a retryable service
// error or a deadline expiry. Context cancellation is not retryable, the
// caller is going away.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var serviceErr *ExternalServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Retryable
	}
	return false
}
