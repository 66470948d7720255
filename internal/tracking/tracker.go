// Package tracking records answered conversations without blocking the
// reply path.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/chatgate/internal/metrics"
)

// Record is one answered message.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BotID     string    `json:"botId"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

// Error is a record that could not be persisted.
type Error struct {
	BotID string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("track conversation for bot %s: %v", e.BotID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Tracker writes records from detached goroutines. Failures are logged and
// dropped.
type Tracker struct {
	store   Store
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewTracker(log *slog.Logger, store Store, timeout time.Duration, m *metrics.Metrics) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tracker{
		store:   store,
		timeout: timeout,
		metrics: m,
		logger:  log.With(slog.String("component", "tracker")),
		now:     time.Now,
	}
}

// Track persists rec in the background. The caller's cancellation does not
// abort the insert.
func (t *Tracker) Track(ctx context.Context, rec Record) {
	if t == nil || t.store == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.now().UTC()
	}
	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("tracking panic", slog.Any("panic", r), slog.String("bot_id", rec.BotID))
			}
		}()
		insertCtx, cancel := context.WithTimeout(detached, t.timeout)
		defer cancel()
		if err := t.store.Insert(insertCtx, rec); err != nil {
			t.metrics.TrackingFailed()
			t.logger.Warn("conversation tracking failed", slog.Any("error", &Error{BotID: rec.BotID, Err: err}))
		}
	}()
}

// Wait blocks until in-flight records finish or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
