package tunnel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/op/go-logging"
)

const envelopeContentType = "application/x-sentry-envelope"

// Forwarder relays envelopes to the sentry instance named in their dsn. Each
// envelope is sent at most once; failures are reported, never retried.
type Forwarder struct {
	client *http.Client
}

// NewForwarder uses http.DefaultClient if client is nil.
func NewForwarder(client *http.Client) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Forwarder{client: client}
}

// Forward posts the original bytes of envelope. Any HTTP response counts as
// success, the status of the upstream answer is not inspected.
func (f *Forwarder) Forward(ctx context.Context, envelope *Envelope) error {
	target := envelope.DSN.EnvelopeURL() + "?" + url.Values{"sentry_key": {envelope.DSN.PublicKey}}.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(envelope.Raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	request.Header.Set("Content-Type", envelopeContentType)
	request.Header.Set(httpHeaderXForwardedFor, envelope.ClientAddr)

	if log.IsEnabledFor(logging.DEBUG) {
		log.Debugf("Sending HTTP %s %s - body=%s", request.Method, request.URL, envelope.Text.Describe(envelope.Raw))
	}

	response, err := f.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	log.Debugf("Sentry host %s answered with status %d", envelope.DSN.Host, response.StatusCode)
	return nil
}
