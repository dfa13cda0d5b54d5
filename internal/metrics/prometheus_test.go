package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	dto "github.com/prometheus/client_model/go"

	"github.com/angeloszaimis/upstream-selector/internal/metrics"
	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

// sample returns the metric of family name whose labels include labels.
func sample(exporter *metrics.Exporter, name string, labels map[string]string) *dto.Metric {
	families, err := exporter.Registry().Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}

	return nil
}

var _ = Describe("Exporter", func() {
	var (
		exporter  *metrics.Exporter
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		exporter = metrics.NewExporter()
		collector = metrics.NewCollector(100, clockwork.NewRealClock(), exporter, slog.New(slog.DiscardHandler))
	})

	AfterEach(func() {
		cancel()
	})

	It("should count requests and selections per upstream", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Upstream: "http://a"})
		collector.Emit(metrics.MetricEvent{Type: metrics.EventUpstreamSelected, Upstream: "http://a"})
		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Upstream: "http://a"})

		Eventually(func() float64 {
			m := sample(exporter, "upstream_selector_upstream_requests_total", map[string]string{"upstream": "http://a"})
			return m.GetCounter().GetValue()
		}).Should(Equal(2.0))
		Eventually(func() float64 {
			m := sample(exporter, "upstream_selector_upstream_selections_total", map[string]string{"upstream": "http://a"})
			return m.GetCounter().GetValue()
		}).Should(Equal(1.0))
	})

	It("should record responses by status code", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Upstream:   "http://a",
			Duration:   250 * time.Millisecond,
			StatusCode: 503,
		})

		Eventually(func() float64 {
			m := sample(exporter, "upstream_selector_upstream_responses_total", map[string]string{"upstream": "http://a", "code": "503"})
			return m.GetCounter().GetValue()
		}).Should(Equal(1.0))

		m := sample(exporter, "upstream_selector_upstream_response_duration_seconds", map[string]string{"upstream": "http://a"})
		Expect(m.GetHistogram().GetSampleCount()).To(Equal(uint64(1)))
		Expect(m.GetHistogram().GetSampleSum()).To(BeNumerically("~", 0.25, 1e-9))
	})

	It("should expose breaker state and transitions", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{
			Type:     metrics.EventBreakerTransition,
			Upstream: "http://a",
			From:     circuitbreaker.StateClosed,
			To:       circuitbreaker.StateOpen,
		})
		collector.Emit(metrics.MetricEvent{
			Type:     metrics.EventBreakerTransition,
			Upstream: "http://a",
			From:     circuitbreaker.StateOpen,
			To:       circuitbreaker.StateHalfOpen,
		})

		Eventually(func() float64 {
			m := sample(exporter, "upstream_selector_breaker_state", map[string]string{"upstream": "http://a"})
			return m.GetGauge().GetValue()
		}).Should(Equal(2.0))

		m := sample(exporter, "upstream_selector_breaker_transitions_total", map[string]string{"from": "CLOSED", "to": "OPEN"})
		Expect(m.GetCounter().GetValue()).To(Equal(1.0))
	})

	It("should expose a closed breaker for upstreams that never transitioned", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{Type: metrics.EventUpstreamAdded, Upstream: "http://a"})

		Eventually(func() *dto.Metric {
			return sample(exporter, "upstream_selector_breaker_state", map[string]string{"upstream": "http://a"})
		}).ShouldNot(BeNil())

		m := sample(exporter, "upstream_selector_breaker_state", map[string]string{"upstream": "http://a"})
		Expect(m.GetGauge().GetValue()).To(BeZero())
	})

	It("should count rejected requests", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{Type: metrics.EventNoUpstream})

		Eventually(func() float64 {
			return sample(exporter, "upstream_selector_no_upstream_total", nil).GetCounter().GetValue()
		}).Should(Equal(1.0))
	})

	It("should serve the text exposition format", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{Type: metrics.EventNoUpstream})
		Eventually(func() float64 {
			return sample(exporter, "upstream_selector_no_upstream_total", nil).GetCounter().GetValue()
		}).Should(Equal(1.0))

		server := httptest.NewServer(exporter.Handler())
		defer server.Close()

		res, err := http.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("upstream_selector_no_upstream_total 1"))
	})
})
