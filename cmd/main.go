package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/config"
	"github.com/angeloszaimis/upstream-selector/internal/backend"
	"github.com/angeloszaimis/upstream-selector/internal/handler"
	"github.com/angeloszaimis/upstream-selector/internal/httpserver"
	"github.com/angeloszaimis/upstream-selector/internal/loadbalancer"
	"github.com/angeloszaimis/upstream-selector/internal/metrics"
	"github.com/angeloszaimis/upstream-selector/pkg/logger"
	"github.com/angeloszaimis/upstream-selector/pkg/selector"
)

var errNoBackends = errors.New("no valid backends configured")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()
	exporter := metrics.NewExporter()
	collector := metrics.NewCollector(cfg.Metrics.BufferSize, clock, exporter, log)
	collector.Start(ctx)

	lb, err := createLoadBalancer(cfg, clock, collector, log)
	if err != nil {
		log.Error("Failed to create load balancer",
			slog.String("scorer", cfg.Selector.Scorer),
			slog.Any("err", err))
		os.Exit(1)
	}

	if err := initializeBackends(lb, cfg, log); err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, collector)
	router := setupRouter(loadBalancerHandler, lb, collector, exporter)

	srv, err := httpserver.New(httpserver.Config{
		Address:         cfg.Server.Address,
		ShutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
	}, router, log)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// createLoadBalancer builds the selector-backed load balancer and routes its
// registrations and breaker transitions into the metrics pipeline.
func createLoadBalancer(cfg *config.Config, clock clockwork.Clock, collector *metrics.Collector, log *slog.Logger) (*loadbalancer.LoadBalancer, error) {
	return loadbalancer.NewLoadBalancer(loadbalancer.Config{
		Scorer:         cfg.Selector.Scorer,
		ClosingTimeout: cfg.Selector.ClosingTimeoutDuration(),
		Clock:          clock,
		Logger:         log,
		OnTransition: func(t selector.Transition[string]) {
			log.Info("Upstream breaker changed state",
				slog.String("upstream", t.Target),
				slog.String("from", t.From.String()),
				slog.String("to", t.To.String()))

			if collector != nil {
				collector.Emit(metrics.MetricEvent{
					Type:      metrics.EventBreakerTransition,
					Timestamp: t.At,
					Upstream:  t.Target,
					From:      t.From,
					To:        t.To,
				})
			}
		},
		OnAdded: func(target string) {
			if collector != nil {
				collector.Emit(metrics.MetricEvent{
					Type:      metrics.EventUpstreamAdded,
					Timestamp: clock.Now(),
					Upstream:  target,
				})
			}
		},
	})
}

func initializeBackends(lb *loadbalancer.LoadBalancer, cfg *config.Config, log *slog.Logger) error {
	added := 0

	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil || u.Host == "" {
			log.Error("Failed to parse URL", slog.String("url", bc.URL))
			continue
		}

		b := backend.New(u, cfg.Selector.FailureStatus, log)
		b.SetWeight(bc.Weight)
		lb.Add(b)
		added++
	}

	if added == 0 {
		return errNoBackends
	}

	return nil
}
