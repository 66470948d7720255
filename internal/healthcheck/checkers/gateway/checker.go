// Package gatewaychecker reports readiness of the gateway's own
// dependencies: the bot store, the queue and the cache backend.
package gatewaychecker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/healthcheck"
)

const checkTypeGateway = healthcheck.TypeGatewayDependency

const defaultProbeTimeout = 3 * time.Second

// Probe tests one dependency. Optional probes degrade to a warning.
type Probe struct {
	Name     string
	TitleKey string
	Optional bool
	Check    func(ctx context.Context) error
}

// Checker evaluates every probe with a bounded timeout. The bot id is
// ignored: readiness is process wide.
type Checker struct {
	logger  *slog.Logger
	probes  []Probe
	timeout time.Duration
}

func NewChecker(log *slog.Logger, probes ...Probe) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_gateway")),
		probes:  probes,
		timeout: defaultProbeTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context, _ string) []healthcheck.CheckResult {
	checks := make([]healthcheck.CheckResult, 0, len(c.probes))
	for _, probe := range c.probes {
		name := strings.TrimSpace(probe.Name)
		item := healthcheck.CheckResult{
			ID:       checkTypeGateway + "." + name,
			Type:     checkTypeGateway,
			TitleKey: probe.TitleKey,
			Subtitle: name,
			Status:   healthcheck.StatusOK,
			Summary:  name + " is reachable.",
		}
		if probe.Check == nil {
			item.Status = healthcheck.StatusUnknown
			item.Summary = name + " has no probe."
			checks = append(checks, item)
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := probe.Check(probeCtx)
		cancel()
		if err != nil {
			item.Status = healthcheck.StatusError
			if probe.Optional {
				item.Status = healthcheck.StatusWarn
			}
			item.Summary = name + " is unavailable."
			item.Detail = err.Error()
			c.logger.Warn("readiness probe failed", slog.String("probe", name), slog.Any("error", err))
		}
		checks = append(checks, item)
	}
	return checks
}
