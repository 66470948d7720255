// Package healthcheck reports gateway readiness and per-bot channel binding
// state in one result shape.
package healthcheck

import "context"

// Check statuses, from best to worst.
const (
	StatusOK      = "ok"
	StatusUnknown = "unknown"
	StatusWarn    = "warn"
	StatusError   = "error"
)

// Check types.
const (
	TypeChannelBinding    = "channel.binding"
	TypeGatewayDependency = "gateway.dependency"
)

// CheckResult is one check row. ID is unique within a response; Metadata
// carries machine-readable detail such as missing credential fields.
type CheckResult struct {
	ID       string
	Type     string
	TitleKey string
	Subtitle string
	Status   string
	Summary  string
	Detail   string
	Metadata map[string]any
}

// Checker lists checks. botID is empty for process-wide checks.
type Checker interface {
	ListChecks(ctx context.Context, botID string) []CheckResult
}

var statusRank = map[string]int{
	StatusOK:      0,
	StatusUnknown: 1,
	StatusWarn:    2,
	StatusError:   3,
}

// Overall returns the worst status among items, StatusOK when empty.
func Overall(items []CheckResult) string {
	worst := StatusOK
	for _, item := range items {
		if statusRank[item.Status] > statusRank[worst] {
			worst = item.Status
		}
	}
	return worst
}
