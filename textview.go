package tunnel

import (
	"fmt"
	"unicode/utf8"
)

// TextView describes how much of a byte buffer is valid UTF-8 text.
//
// Envelopes may carry binary items (compressed attachments, minidumps) after
// the header lines. Routing only needs the text prefix, forwarding always uses
// the original bytes.
type TextView struct {
	// ValidLength is the length of the longest valid UTF-8 prefix.
	ValidLength int
	// Safe is true if the whole buffer is valid UTF-8.
	Safe bool
}

// NewTextView never fails. An empty buffer is safe with a prefix of 0.
func NewTextView(raw []byte) TextView {
	n := validTextPrefix(raw)
	return TextView{ValidLength: n, Safe: n == len(raw)}
}

// Prefix returns the valid text prefix of raw. raw must be the buffer the view
// was created from.
func (v TextView) Prefix(raw []byte) string {
	return string(raw[:v.ValidLength])
}

// Describe returns the representation of raw used in log output. Only a fully
// valid buffer is printed verbatim.
func (v TextView) Describe(raw []byte) string {
	if v.Safe {
		return string(raw)
	}
	return fmt.Sprintf("<%d bytes, not valid text after byte %d>", len(raw), v.ValidLength)
}

func validTextPrefix(raw []byte) int {
	if utf8.Valid(raw) {
		return len(raw)
	}

	i := 0
	for i < len(raw) {
		if raw[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return i
}
