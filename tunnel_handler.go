package tunnel

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// TunnelHandler accepts envelopes from browsers and relays them to sentry
// when their dsn passes the access policy.
type TunnelHandler struct {
	policy            *AccessPolicy
	forwarder         *Forwarder
	trustForwardedFor bool
	metrics           *Metrics
}

// NewTunnelHandler shares policy between all requests; it must not be
// modified afterwards. metrics may be nil.
func NewTunnelHandler(policy *AccessPolicy, forwarder *Forwarder, trustForwardedFor bool, metrics *Metrics) *TunnelHandler {
	return &TunnelHandler{
		policy:            policy,
		forwarder:         forwarder,
		trustForwardedFor: trustForwardedFor,
		metrics:           metrics,
	}
}

func (th *TunnelHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	err := th.handle(w, req)
	th.metrics.recordRequest(err)
	if err != nil {
		th.reject(w, req, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (th *TunnelHandler) handle(w http.ResponseWriter, req *http.Request) error {
	if _, err := CheckContentLength(req.Header); err != nil {
		return err
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxContentLength))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadBody, err)
	}

	envelope, err := NewEnvelope(raw, ResolveClientAddress(req, th.trustForwardedFor))
	if err != nil {
		return err
	}

	if err := th.policy.Check(envelope.DSN); err != nil {
		return err
	}

	start := time.Now()
	err = th.forwarder.Forward(req.Context(), envelope)
	th.metrics.observeForward(err, time.Since(start))
	if err != nil {
		log.Errorf("Failed to forward request to sentry: %v - Host = %s", err, envelope.DSN.Host)
		return err
	}

	return nil
}

func (th *TunnelHandler) reject(w http.ResponseWriter, req *http.Request, err error) {
	status := StatusCode(err)
	if status < http.StatusInternalServerError {
		log.Infof("Rejected tunnel request from %s: %v", req.RemoteAddr, err)
	}
	http.Error(w, err.Error(), status)
}
