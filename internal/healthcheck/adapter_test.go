package healthcheck

import (
	"context"
	"testing"
)

type testChecker struct {
	items []CheckResult
}

func (c *testChecker) ListChecks(ctx context.Context, botID string) []CheckResult {
	return c.items
}

func TestMultiListChecks(t *testing.T) {
	t.Parallel()

	multi := NewMulti(
		&testChecker{items: []CheckResult{{ID: "channel.binding.telegram", Status: StatusOK}}},
		nil,
		&testChecker{items: []CheckResult{{ID: "gateway.queue", Status: StatusWarn}}},
	)

	items := multi.ListChecks(context.Background(), "bot-1")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "channel.binding.telegram" || items[1].ID != "gateway.queue" {
		t.Fatalf("unexpected order: %+v", items)
	}
}

func TestMultiNil(t *testing.T) {
	t.Parallel()

	var multi *Multi
	items := multi.ListChecks(context.Background(), "bot-1")
	if len(items) != 0 {
		t.Fatalf("expected empty items, got %d", len(items))
	}
}

func TestOverall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		statuses []string
		want     string
	}{
		{nil, StatusOK},
		{[]string{StatusOK, StatusOK}, StatusOK},
		{[]string{StatusOK, StatusWarn}, StatusWarn},
		{[]string{StatusError, StatusWarn, StatusUnknown}, StatusError},
	}
	for _, tc := range cases {
		items := make([]CheckResult, 0, len(tc.statuses))
		for _, s := range tc.statuses {
			items = append(items, CheckResult{Status: s})
		}
		if got := Overall(items); got != tc.want {
			t.Fatalf("statuses=%v want=%s got=%s", tc.statuses, tc.want, got)
		}
	}
}
