package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// InlineBackend processes work items on detached goroutines.
type InlineBackend struct {
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewInlineBackend(log *slog.Logger, timeout time.Duration) *InlineBackend {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &InlineBackend{
		timeout: timeout,
		logger:  log.With(slog.String("component", "inline_backend")),
	}
}

// Run starts process without waiting for it. Cancellation of ctx does not
// reach the goroutine; its own timeout bounds it.
func (b *InlineBackend) Run(ctx context.Context, item WorkItem, process Processor) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("inline processing panic",
					slog.String("channel", item.Channel),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		runCtx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()
		if err := process(runCtx, item); err != nil {
			b.logger.Error("inline processing failed",
				slog.String("channel", item.Channel),
				slog.String("bot_id", item.BotID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until running items finish or ctx ends.
func (b *InlineBackend) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
