package tunnel

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxHeaderLines is the number of leading envelope lines searched for the dsn.
const MaxHeaderLines = 50

// Envelope is one request body on its way through the tunnel.
type Envelope struct {
	// Raw is the body exactly as received. It is what gets forwarded.
	Raw  []byte
	Text TextView
	// ClientAddr is sent upstream as X-Forwarded-For.
	ClientAddr string
	DSN        *DSN
}

// NewEnvelope locates the dsn in the text prefix of raw.
func NewEnvelope(raw []byte, clientAddr string) (*Envelope, error) {
	view := NewTextView(raw)

	dsn, err := ScanDSN(view.Prefix(raw), MaxHeaderLines)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Raw:        raw,
		Text:       view,
		ClientAddr: clientAddr,
		DSN:        dsn,
	}, nil
}

// envelopeHeader is the part of an envelope line the tunnel cares about.
type envelopeHeader struct {
	dsn gjson.Result
}

func decodeHeader(line string) (envelopeHeader, error) {
	if !gjson.Valid(line) {
		return envelopeHeader{}, fmt.Errorf("invalid json %q", abbreviate(line, 40))
	}

	parsed := gjson.Parse(line)
	if !parsed.IsObject() {
		return envelopeHeader{}, fmt.Errorf("expected a json object, got %s", parsed.Type)
	}

	return envelopeHeader{dsn: parsed.Get("dsn")}, nil
}

// ScanDSN examines at most maxLines lines of text and returns the dsn of the
// first line carrying one. Lines after that are never looked at.
func ScanDSN(text string, maxLines int) (*DSN, error) {
	rest := text
	for n := 1; n <= maxLines; n++ {
		if rest == "" {
			return nil, ErrMissingDSN
		}

		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		line = strings.TrimSuffix(line, "\r")

		header, err := decodeHeader(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedHeaderLine, n, err)
		}

		if !header.dsn.Exists() {
			continue
		}
		if header.dsn.Type != gjson.String {
			return nil, fmt.Errorf("%w (line %d)", ErrDSNNotString, n)
		}
		return ParseDSN(header.dsn.Str)
	}

	if rest == "" {
		return nil, ErrMissingDSN
	}
	return nil, fmt.Errorf("%w: searched %d lines", ErrLineBudgetExceeded, maxLines)
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
