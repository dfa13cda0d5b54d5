package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// Backend is the proxy side of an upstream: it forwards requests, tracks
// in-flight connections and keeps a response time average for scorers.
type Backend struct {
	url               *url.URL
	proxy             *httputil.ReverseProxy
	failureStatus     int
	weight            int
	mutex             sync.Mutex
	activeConnections int
	ewmaResponseTime  time.Duration
	hasEWMA           bool
}

const ewmaAlpha = 0.2

type failureReporterKey struct{}

// WithFailureReporter attaches the function the proxy calls when the request
// carried by ctx fails.
func WithFailureReporter(ctx context.Context, report func()) context.Context {
	return context.WithValue(ctx, failureReporterKey{}, report)
}

func reportFailure(ctx context.Context) {
	if report, ok := ctx.Value(failureReporterKey{}).(func()); ok && report != nil {
		report()
	}
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	return b.proxy
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeConnections
}

// Weight is the share of traffic the backend asks for under weighted
// scorers. It defaults to 1.
func (b *Backend) Weight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.weight
}

// SetWeight sets the weight. Values below 1 are raised to 1.
func (b *Backend) SetWeight(weight int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.weight = max(weight, 1)
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}

// New creates a Backend proxying to u. Responses with a status code at or
// above failureStatus, and transport errors, are reported as failures through
// the reporter stored in the request context.
func New(u *url.URL, failureStatus int, logger *slog.Logger) *Backend {
	b := &Backend{
		url:           u,
		proxy:         httputil.NewSingleHostReverseProxy(u),
		failureStatus: failureStatus,
		weight:        1,
	}

	b.proxy.ModifyResponse = func(res *http.Response) error {
		if b.failureStatus > 0 && res.StatusCode >= b.failureStatus {
			reportFailure(res.Request.Context())
		}
		return nil
	}

	b.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Backend request failed",
			slog.String("backend", u.String()),
			slog.String("error", err.Error()))
		reportFailure(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	}

	return b
}
