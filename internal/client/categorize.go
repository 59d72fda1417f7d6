package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the fetchErrorsTotal "category" label.
const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryForbidden   ErrorCategory = "forbidden"
	ErrorCategoryNotFound    ErrorCategory = "not_found"
	ErrorCategoryRateLimited ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryParsing     ErrorCategory = "parsing"
	ErrorCategoryNoData      ErrorCategory = "no_data"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// ErrNoData marks a forecast that carries no usable timeseries entry.
var ErrNoData = errors.New("no forecast data")

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Sentinels are checked first, then the concrete transport and decoding errors.
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrForbidden):
		return ErrorCategoryForbidden
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrNoData):
		return ErrorCategoryNoData
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
