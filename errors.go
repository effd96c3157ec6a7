package tunnel

import (
	"errors"
	"net/http"
)

// Errors rejected by the request gate, before the body is read.
var (
	ErrMissingContentLength     = errors.New("missing content length header")
	ErrContentTooLarge          = errors.New("content length too big")
	ErrUnparseableContentLength = errors.New("could not parse content length header")
)

// Errors found while looking for the dsn in the envelope.
var (
	ErrLineBudgetExceeded  = errors.New("no dsn key found within the envelope header lines")
	ErrMalformedHeaderLine = errors.New("failed to parse header json")
	ErrDSNNotString        = errors.New("the dsn value in the envelope header is not a string")
	ErrInvalidDSN          = errors.New("failed to parse dsn value")
	ErrMissingDSN          = errors.New("the dsn key is missing from the envelope header")
)

// Errors of the access policy.
var (
	ErrProjectNotAllowed = errors.New("unauthorized project id")
	ErrHostNotAllowed    = errors.New("invalid sentry host, check your config against the dsn used in the request")
)

var (
	ErrReadBody        = errors.New("failed to read request body")
	ErrTooManyRequests = errors.New(http.StatusText(http.StatusTooManyRequests))
	ErrForwardFailed   = errors.New("failed to forward request to sentry")
)

// StatusCode returns the HTTP status the client receives for err. Everything
// the client caused is a 400, only a failed forward is our problem.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForwardFailed):
		return http.StatusInternalServerError
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
