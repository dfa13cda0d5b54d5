package main

import (
	"net/http"

	"github.com/angeloszaimis/upstream-selector/internal/handler"
	"github.com/angeloszaimis/upstream-selector/internal/loadbalancer"
	"github.com/angeloszaimis/upstream-selector/internal/metrics"
)

func setupRouter(loadBalancerHandler *handler.LoadBalancerHandler, lb *loadbalancer.LoadBalancer, metricsCollector *metrics.Collector, exporter *metrics.Exporter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", loadBalancerHandler)
	mux.HandleFunc("GET /metrics", metricsCollector.Handler(lb.Scorer()))
	mux.Handle("GET /metrics/prometheus", exporter.Handler())
	mux.HandleFunc("GET /upstreams", handler.UpstreamsHandler(lb))
	mux.HandleFunc("GET /upstreams/unhealthy", handler.UnhealthyHandler(lb))

	return mux
}
