package tunnel

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioBody = `{"dsn":"https://KEY@host.example/42"}` + "\n{}\n{}"

type unreadableBody struct {
	t *testing.T
}

func (b unreadableBody) Read([]byte) (int, error) {
	b.t.Error("body must not be read")
	return 0, io.EOF
}

// newSentryClient sends every request to srv, whatever host the url names.
func newSentryClient(srv *httptest.Server) *http.Client {
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, srv.Listener.Addr().String())
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
}

func newTunnelRequest(body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/tunnel", bytes.NewReader(body))
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.RemoteAddr = "192.0.2.1:4711"
	return req
}

type tunnelFixture struct {
	handler  *TunnelHandler
	metrics  *Metrics
	received <-chan receivedRequest
}

func newTunnelFixture(t *testing.T, projects []ProjectIDRange, trustForwardedFor bool) tunnelFixture {
	t.Helper()
	received := make(chan receivedRequest, 1)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		received <- receivedRequest{method: r.Method, uri: r.RequestURI, header: r.Header.Clone(), body: body}
	}))
	t.Cleanup(srv.Close)

	metrics := NewMetrics()
	policy := NewAccessPolicy([]string{"host.example"}, projects)
	handler := NewTunnelHandler(policy, NewForwarder(newSentryClient(srv)), trustForwardedFor, metrics)

	return tunnelFixture{handler: handler, metrics: metrics, received: received}
}

func (f tunnelFixture) count(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.requestsTotal.WithLabelValues(outcome))
}

func TestTunnelHandler_ServeHTTP(t *testing.T) {
	t.Run("should forward allowed envelope", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()

		fixture.handler.ServeHTTP(w, newTunnelRequest([]byte(scenarioBody)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
		req := <-fixture.received
		assert.Equal(t, "/api/42/envelope/?sentry_key=KEY", req.uri)
		assert.Equal(t, "192.0.2.1", req.header.Get("X-Forwarded-For"))
		assert.Equal(t, []byte(scenarioBody), req.body)
		assert.Equal(t, float64(1), fixture.count(outcomeForwarded))
	})

	t.Run("should forward binary envelope unchanged", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()
		raw := append([]byte(scenarioBody+"\n"), 0x1f, 0x8b, 0xff, 0x00)

		fixture.handler.ServeHTTP(w, newTunnelRequest(raw))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, raw, (<-fixture.received).body)
	})

	t.Run("should send trusted X-Forwarded-For", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, true)
		w := httptest.NewRecorder()
		req := newTunnelRequest([]byte(scenarioBody))
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

		fixture.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "203.0.113.7", (<-fixture.received).header.Get("X-Forwarded-For"))
	})

	t.Run("should reject project not allowed", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 7, To: 7}}, false)
		w := httptest.NewRecorder()

		fixture.handler.ServeHTTP(w, newTunnelRequest([]byte(scenarioBody)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrProjectNotAllowed.Error())
		assert.Empty(t, fixture.received)
		assert.Equal(t, float64(1), fixture.count(outcomePolicy))
	})

	t.Run("should reject host not allowed", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()
		body := `{"dsn":"https://KEY@evil.example/42"}` + "\n{}\n{}"

		fixture.handler.ServeHTTP(w, newTunnelRequest([]byte(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrHostNotAllowed.Error())
		assert.Empty(t, fixture.received)
	})

	t.Run("should reject missing content length without reading body", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tunnel", unreadableBody{t: t})

		fixture.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrMissingContentLength.Error())
		assert.Equal(t, float64(1), fixture.count(outcomeGate))
	})

	t.Run("should reject too large content length without reading body", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tunnel", unreadableBody{t: t})
		req.Header.Set("Content-Length", "10000001")

		fixture.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrContentTooLarge.Error())
	})

	t.Run("should reject envelope without dsn after 50 lines", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()

		fixture.handler.ServeHTTP(w, newTunnelRequest([]byte(strings.Repeat("{}\n", 60))))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrLineBudgetExceeded.Error())
		assert.Contains(t, w.Body.String(), "searched 50 lines")
		assert.Equal(t, float64(1), fixture.count(outcomeEnvelope))
	})

	t.Run("should reject malformed header", func(t *testing.T) {
		fixture := newTunnelFixture(t, []ProjectIDRange{{From: 42, To: 42}}, false)
		w := httptest.NewRecorder()

		fixture.handler.ServeHTTP(w, newTunnelRequest([]byte("hello\n")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrMalformedHeaderLine.Error())
	})

	t.Run("should answer 500 if sentry is unreachable", func(t *testing.T) {
		policy := NewAccessPolicy([]string{"127.0.0.1"}, []ProjectIDRange{{From: 42, To: 42}})
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := listener.Addr().String()
		require.NoError(t, listener.Close())
		metrics := NewMetrics()
		handler := NewTunnelHandler(policy, NewForwarder(nil), false, metrics)
		w := httptest.NewRecorder()
		body := `{"dsn":"http://KEY@` + addr + `/42"}`

		handler.ServeHTTP(w, newTunnelRequest([]byte(body)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), ErrForwardFailed.Error())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(outcomeForwardFailed)))
	})

	t.Run("should work without metrics", func(t *testing.T) {
		handler := NewTunnelHandler(NewAccessPolicy(nil, nil), NewForwarder(nil), false, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, newTunnelRequest([]byte(scenarioBody)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
