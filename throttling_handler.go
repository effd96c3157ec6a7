package tunnel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const _DefaultCleanInterval = 300

type throttlingHandler struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter

	tokenRate         rate.Limit
	burstSize         int
	trustForwardedFor bool
	metrics           *Metrics
	next              http.Handler
}

// NewThrottlingHandler limits the request rate per client address in front of
// handler. It returns handler unchanged if no token rate is configured. The
// cleanup job stops when ctx is done.
func NewThrottlingHandler(ctx context.Context, configuration Configuration, metrics *Metrics, handler http.Handler) http.Handler {
	if configuration.LimiterTokenRate <= 0 {
		return handler
	}

	burstSize := configuration.LimiterBurstSize
	if burstSize < 1 {
		burstSize = 1
	}

	th := &throttlingHandler{
		clients:           make(map[string]*rate.Limiter),
		tokenRate:         rate.Limit(configuration.LimiterTokenRate),
		burstSize:         burstSize,
		trustForwardedFor: configuration.TrustXForwardedFor,
		metrics:           metrics,
		next:              handler,
	}
	go th.startCleanJob(ctx, configuration.LimiterCleanInterval)

	return th
}

func (th *throttlingHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	clientAddress := ResolveClientAddress(request, th.trustForwardedFor)
	limiter := th.getOrCreateLimiter(clientAddress)

	if !limiter.Allow() {
		log.Infof("Throttle request to %s from %s", request.RequestURI, clientAddress)
		th.metrics.recordRequest(ErrTooManyRequests)
		http.Error(writer, ErrTooManyRequests.Error(), http.StatusTooManyRequests)
		return
	}

	log.Debugf("Client %s has %.1f tokens left", clientAddress, limiter.Tokens())

	th.next.ServeHTTP(writer, request)
}

func (th *throttlingHandler) getOrCreateLimiter(clientAddress string) *rate.Limiter {
	th.mu.Lock()
	defer th.mu.Unlock()

	l, ok := th.clients[clientAddress]
	if !ok {
		l = rate.NewLimiter(th.tokenRate, th.burstSize)
		th.clients[clientAddress] = l
	}

	return l
}

// cleanClients drops limiters whose bucket has refilled; recreating them
// later is equivalent.
func (th *throttlingHandler) cleanClients() {
	th.mu.Lock()
	defer th.mu.Unlock()

	for client, limiter := range th.clients {
		if limiter.Tokens() >= float64(th.burstSize) {
			delete(th.clients, client)
		}
	}
}

func (th *throttlingHandler) startCleanJob(ctx context.Context, cleanInterval int) {
	if cleanInterval <= 0 {
		cleanInterval = _DefaultCleanInterval
	}

	ticker := time.NewTicker(time.Duration(cleanInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("Context done - stop throttling cleanup job")
			return
		case <-ticker.C:
			log.Debug("Start cleanup for clients in throttling map")
			th.cleanClients()
		}
	}
}
