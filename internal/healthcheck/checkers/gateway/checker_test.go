package gatewaychecker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/healthcheck"
)

func TestCheckerProbes(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	checker := NewChecker(log,
		Probe{Name: "store", Check: func(context.Context) error { return nil }},
		Probe{Name: "queue", Optional: true, Check: func(context.Context) error { return errors.New("probe failed") }},
		Probe{Name: "postgres", Check: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return errors.New("connection refused")
		}},
		Probe{Name: "redis"},
	)

	items := checker.ListChecks(context.Background(), "")
	require.Len(t, items, 4)
	assert.Equal(t, healthcheck.StatusOK, items[0].Status)
	assert.Equal(t, healthcheck.StatusWarn, items[1].Status)
	assert.Equal(t, "probe failed", items[1].Detail)
	assert.Equal(t, healthcheck.StatusError, items[2].Status)
	assert.Equal(t, "connection refused", items[2].Detail)
	assert.Equal(t, healthcheck.StatusUnknown, items[3].Status)
	assert.Equal(t, "gateway.dependency.store", items[0].ID)
	assert.Equal(t, healthcheck.StatusError, healthcheck.Overall(items))
}
