package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/upstream-selector/internal/backend"
	"github.com/angeloszaimis/upstream-selector/internal/loadbalancer"
	"github.com/angeloszaimis/upstream-selector/internal/metrics"
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
)

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (lb *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	lb.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	err := lb.balancer.ServeKey(clientIP, func(res loadbalancer.Reservation) {
		lb.forward(w, r, clientIP, res)
	})

	if errors.Is(err, selector.ErrNoUpstreams) {
		lb.logger.Warn("No upstream available", slog.String("client", clientIP))
		lb.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventNoUpstream,
			Timestamp: time.Now(),
		})
		http.Error(w, "No upstream available", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		lb.logger.Error("Upstream selection failed", slog.String("error", err.Error()))
		http.Error(w, "Upstream selection failed", http.StatusInternalServerError)
	}
}

func (lb *LoadBalancerHandler) forward(w http.ResponseWriter, r *http.Request, clientIP string, res loadbalancer.Reservation) {
	lb.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Upstream:  res.Target,
	})

	lb.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventUpstreamSelected,
		Timestamp: time.Now(),
		Upstream:  res.Target,
	})

	if res.Backend == nil {
		lb.logger.Error("Selected upstream has no backend", slog.String("upstream", res.Target))
		res.Fail()
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}

	start := time.Now()

	lb.logger.Info("Forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", res.Target))

	w.Header().Set("X-Backend-Server", res.Target)

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	ctx := backend.WithFailureReporter(r.Context(), res.Fail)
	res.Backend.ReverseProxy().ServeHTTP(wrapped, r.WithContext(ctx))

	duration := time.Since(start)
	lb.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Upstream:   res.Target,
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})
	res.Backend.RecordResponse(duration)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (lb *LoadBalancerHandler) emitEvent(event metrics.MetricEvent) {
	if lb.metricsCollector == nil {
		return
	}

	lb.metricsCollector.Emit(event)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func NewLoadBalancerHandler(logger *slog.Logger, lb *loadbalancer.LoadBalancer, collector *metrics.Collector) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		metricsCollector: collector,
	}
}
