package healthcheck

import "context"

// Multi runs several checkers and concatenates their results in order.
type Multi struct {
	checkers []Checker
}

// NewMulti creates a checker over checkers. Nil entries are ignored.
func NewMulti(checkers ...Checker) *Multi {
	kept := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &Multi{checkers: kept}
}

// Add appends a checker.
func (m *Multi) Add(checker Checker) {
	if checker != nil {
		m.checkers = append(m.checkers, checker)
	}
}

func (m *Multi) ListChecks(ctx context.Context, botID string) []CheckResult {
	if m == nil {
		return []CheckResult{}
	}
	result := make([]CheckResult, 0, len(m.checkers))
	for _, c := range m.checkers {
		result = append(result, c.ListChecks(ctx, botID)...)
	}
	return result
}
