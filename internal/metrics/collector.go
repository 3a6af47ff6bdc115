package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventStreamAcquired    EventType = "stream_acquired"
	EventStreamFailed      EventType = "stream_failed"
	EventHeartbeatReceived EventType = "heartbeat_received"
	EventHealthChanged     EventType = "health_changed"
)

type Event struct {
	Type        EventType
	Timestamp   time.Time
	Worker      string
	Utilization float64
	Healthy     bool
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit sends an event without blocking; the event is dropped if the buffer
// is full.
func (c *Collector) Emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
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

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventStreamAcquired:
		c.metrics.RecordAcquireSuccess(event.Worker)

	case EventStreamFailed:
		c.metrics.RecordAcquireFailure(event.Worker)

	case EventHeartbeatReceived:
		c.metrics.RecordHeartbeat(event.Worker, event.Utilization)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Worker, event.Healthy)
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

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
