// Package dispatch hands inbound work to an external queue when one is
// reachable and processes it in-process otherwise.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/memohai/chatgate/internal/metrics"
)

// WorkItem is one inbound webhook update awaiting processing.
type WorkItem struct {
	Update    json.RawMessage `json:"update"`
	BotID     string          `json:"botId,omitempty"`
	Channel   string          `json:"channel"`
	Timestamp int64           `json:"timestamp"`
}

// Processor handles one work item to completion.
type Processor func(ctx context.Context, item WorkItem) error

const (
	BackendQueue  = "queue"
	BackendInline = "inline"
)

// Dispatcher picks the backend for each work item. A message is never
// dropped because the queue is down: it runs inline instead.
type Dispatcher struct {
	queue   *QueueBackend
	inline  *InlineBackend
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewDispatcher(log *slog.Logger, queue *QueueBackend, inline *InlineBackend, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		queue:   queue,
		inline:  inline,
		metrics: m,
		logger:  log.With(slog.String("component", "dispatcher")),
	}
}

// Enqueue publishes item to the queue and reports true, or runs process
// inline and reports false when the queue is unhealthy or refuses it.
func (d *Dispatcher) Enqueue(ctx context.Context, item WorkItem, process Processor) bool {
	if d.queue != nil && d.queue.Healthy() {
		err := d.queue.Publish(ctx, item)
		if err == nil {
			d.metrics.Dispatched(item.Channel, BackendQueue)
			return true
		}
		d.logger.Warn("queue publish failed, processing inline",
			slog.String("channel", item.Channel),
			slog.String("bot_id", item.BotID),
			slog.Any("error", err),
		)
	}
	d.runInline(ctx, item, process)
	return false
}

// Dispatch enqueues item when useQueue is set and runs it inline otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, item WorkItem, useQueue bool, process Processor) bool {
	if useQueue {
		return d.Enqueue(ctx, item, process)
	}
	d.runInline(ctx, item, process)
	return false
}

func (d *Dispatcher) runInline(ctx context.Context, item WorkItem, process Processor) {
	d.metrics.Dispatched(item.Channel, BackendInline)
	d.inline.Run(ctx, item, process)
}

// QueueHealthy reports whether the queue backend would be used.
func (d *Dispatcher) QueueHealthy() bool {
	return d.queue != nil && d.queue.Healthy()
}

// Wait drains inline work.
func (d *Dispatcher) Wait(ctx context.Context) error {
	return d.inline.Wait(ctx)
}
