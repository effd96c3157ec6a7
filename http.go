package tunnel

import (
	"net"
	"net/http"
	"strings"
)

const httpHeaderXForwardedFor = "X-Forwarded-For"

// ResolveClientAddress returns the address the envelope is reported for. The
// first X-Forwarded-For entry is only used if the deployment runs behind a
// proxy it trusts; otherwise the socket peer is used.
func ResolveClientAddress(req *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		// proxies append their own peers, the client is the first entry
		forwardedIpAddrRaw := req.Header.Get(httpHeaderXForwardedFor)
		initialForwardedIpAddress, _, _ := strings.Cut(forwardedIpAddrRaw, ",")
		if ip := strings.TrimSpace(initialForwardedIpAddress); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
