package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

type EventType string

const (
	EventConnectionAccepted EventType = "connection_accepted"
	EventResponseCompleted  EventType = "response_completed"
	EventSendFailed         EventType = "send_failed"
)

type MetricEvent struct {
	Type             EventType
	Timestamp        time.Time
	Duration         time.Duration
	StatusCode       int
	Bytes            int64
	ClientDisconnect bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. A full buffer drops the event.
// Emit is safe to call on a nil Collector.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
		c.dropped.Inc()
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
	case EventConnectionAccepted:
		c.metrics.IncrementConnections()

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Duration, event.StatusCode, event.Bytes)

	case EventSendFailed:
		c.metrics.RecordSendFailure(event.ClientDisconnect)
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

func (c *Collector) Snapshot(mode string) Snapshot {
	snap := c.metrics.Snapshot(mode)
	snap.DroppedEvents = c.dropped.Load()
	return snap
}
