package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/upstream-selector/pkg/circuitbreaker"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventUpstreamSelected  EventType = "upstream_selected"
	EventResponseCompleted EventType = "response_completed"
	EventBreakerTransition EventType = "breaker_transition"
	EventNoUpstream        EventType = "no_upstream"
	EventUpstreamAdded     EventType = "upstream_added"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Upstream   string
	Duration   time.Duration
	StatusCode int
	From       circuitbreaker.State
	To         circuitbreaker.State
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	exporter *Exporter
	logger   *slog.Logger
}

// NewCollector creates a collector with a buffered event channel. exporter
// may be nil.
func NewCollector(bufferSize int, clock clockwork.Clock, exporter *Exporter, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(clock),
		exporter: exporter,
		logger:   logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Upstream)

	case EventUpstreamSelected:
		c.metrics.RecordSelection(event.Upstream)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Upstream, event.Duration, event.StatusCode)

	case EventBreakerTransition:
		c.metrics.RecordTransition(event.Upstream, event.To)

	case EventNoUpstream:
		c.metrics.RecordRejected()

	case EventUpstreamAdded:
		c.metrics.RecordUpstream(event.Upstream)
	}

	if c.exporter != nil {
		c.exporter.observe(event)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(scorer string) Snapshot {
	return c.metrics.Snapshot(scorer)
}
