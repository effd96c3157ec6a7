package tunnel

import (
	"net/http"
	"strconv"
	"strings"
)

// MaxContentLength is the largest envelope the tunnel accepts, 10 MB.
const MaxContentLength = 10_000_000

// CheckContentLength accepts a request only if it declares a content length
// of at most MaxContentLength. It only looks at the headers, so it can run
// before any of the body is read.
func CheckContentLength(header http.Header) (int64, error) {
	values := header.Values("Content-Length")
	if len(values) == 0 {
		return 0, ErrMissingContentLength
	}

	length, err := strconv.ParseUint(strings.TrimSpace(values[0]), 10, 64)
	if err != nil {
		return 0, ErrUnparseableContentLength
	}
	if length > MaxContentLength {
		return 0, ErrContentTooLarge
	}

	return int64(length), nil
}
