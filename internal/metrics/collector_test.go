package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/upstream-selector/internal/metrics"
	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	snapshot := func() metrics.Snapshot {
		return collector.Snapshot("round-robin")
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, clockwork.NewRealClock(), nil, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Start and event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should process EventRequestReceived", func() {
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventRequestReceived,
				Upstream: "http://localhost:8081",
			})

			Eventually(func() int64 {
				return snapshot().Upstreams["http://localhost:8081"].Requests
			}).Should(Equal(int64(1)))
		})

		It("should process EventUpstreamSelected", func() {
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventUpstreamSelected,
				Upstream: "http://localhost:8081",
			})

			Eventually(func() int64 {
				return snapshot().Upstreams["http://localhost:8081"].Selections
			}).Should(Equal(int64(1)))
		})

		It("should process EventResponseCompleted", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventResponseCompleted,
				Upstream:   "http://localhost:8081",
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
			})

			Eventually(func() metrics.UpstreamMetrics {
				return snapshot().Upstreams["http://localhost:8081"]
			}).Should(And(
				HaveField("AvgResponse", 100*time.Millisecond),
				HaveField("StatusCodes", HaveKeyWithValue(200, int64(1))),
			))
		})

		It("should process EventBreakerTransition", func() {
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventBreakerTransition,
				Upstream: "http://localhost:8081",
				From:     circuitbreaker.StateClosed,
				To:       circuitbreaker.StateOpen,
			})

			Eventually(func() circuitbreaker.State {
				return snapshot().Upstreams["http://localhost:8081"].State
			}).Should(Equal(circuitbreaker.StateOpen))
		})

		It("should process EventNoUpstream", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventNoUpstream})

			Eventually(func() int64 {
				return snapshot().Rejected
			}).Should(Equal(int64(1)))
		})
	})

	Describe("Shutdown", func() {
		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.EventChannel() <- metrics.MetricEvent{
					Type:     metrics.EventRequestReceived,
					Upstream: "http://localhost:8081",
				}
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return snapshot().Upstreams["http://localhost:8081"].Requests
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events when the buffer is full", func() {
			small := metrics.NewCollector(1, clockwork.NewRealClock(), nil, log)

			small.Emit(metrics.MetricEvent{Type: metrics.EventNoUpstream})
			small.Emit(metrics.MetricEvent{Type: metrics.EventNoUpstream})

			cancel()
			small.Start(ctx)

			Eventually(func() int64 {
				return small.Snapshot("round-robin").Rejected
			}).Should(Equal(int64(1)))
			Consistently(func() int64 {
				return small.Snapshot("round-robin").Rejected
			}, 50*time.Millisecond).Should(Equal(int64(1)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventBreakerTransition,
				Upstream: "http://localhost:8081",
				To:       circuitbreaker.StateHalfOpen,
			})
			Eventually(func() int { return len(snapshot().Upstreams) }).Should(Equal(1))

			w := httptest.NewRecorder()
			collector.Handler("least-conn").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("scorer", "least-conn"))
			Expect(body["upstreams"]).To(HaveKeyWithValue("http://localhost:8081",
				HaveKeyWithValue("state", "HALF-OPEN")))
		})
	})
})
