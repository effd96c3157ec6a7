package tunnel

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// NewServer creates a new tunnel server. Start the server with ListenAndServe().
// Background jobs of the server stop when ctx is done.
func NewServer(ctx context.Context, configuration Configuration) (*http.Server, error) {
	mainHandler, err := createHandlersForConfig(ctx, configuration)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              ":" + strconv.Itoa(configuration.Port),
		Handler:           mainHandler,
		ReadHeaderTimeout: 30 * time.Second,
	}, nil
}

func createHandlersForConfig(ctx context.Context, configuration Configuration) (http.Handler, error) {
	policy, err := configuration.AccessPolicy()
	if err != nil {
		return nil, fmt.Errorf("error creating access-policy: %w", err)
	}

	metrics := NewMetrics()

	forwarder := NewForwarder(&http.Client{
		Timeout: time.Duration(configuration.ForwardTimeout) * time.Second,
	})

	tunnelHandler := NewTunnelHandler(policy, forwarder, configuration.TrustXForwardedFor, metrics)
	throttlingHandler := NewThrottlingHandler(ctx, configuration, metrics, tunnelHandler)

	mux := http.NewServeMux()
	mux.Handle("POST "+configuration.TunnelPath, throttlingHandler)
	mux.HandleFunc("GET "+healthPath, healthHandler)
	if configuration.MetricsPath != "" {
		mux.Handle("GET "+configuration.MetricsPath, metrics.Handler())
	}

	log.Infof("Tunnel listens on %s for hosts %v", configuration.TunnelPath, configuration.RemoteHosts)

	return mux, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
