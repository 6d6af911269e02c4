package watchset

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	runs         metric.Int64Counter
	passes       metric.Int64Histogram
	transactions metric.Int64Counter
	violations   metric.Int64Counter
	freezes      metric.Int64Counter
	syncFailures metric.Int64Counter
}

// newMetrics registers the loop instruments. Instrument creation only fails on
// invalid names, in which case the no-op instrument returned alongside is used.
func newMetrics(m metric.Meter) *metrics {
	runs, _ := m.Int64Counter("mintwatch.runs",
		metric.WithDescription("Completed audit runs by outcome."))
	passes, _ := m.Int64Histogram("mintwatch.run.passes",
		metric.WithDescription("Passes needed for a run to converge."))
	transactions, _ := m.Int64Counter("mintwatch.transactions.analyzed",
		metric.WithDescription("Transactions fetched and analyzed."))
	violations, _ := m.Int64Counter("mintwatch.violations",
		metric.WithDescription("Transfers to recipients outside the watch set."))
	freezes, _ := m.Int64Counter("mintwatch.freezes.observed",
		metric.WithDescription("Freeze and thaw instructions observed on the monitored mint."))
	syncFailures, _ := m.Int64Counter("mintwatch.sync.failures",
		metric.WithDescription("Address syncs abandoned after exhausting retries."))

	return &metrics{
		runs:         runs,
		passes:       passes,
		transactions: transactions,
		violations:   violations,
		freezes:      freezes,
		syncFailures: syncFailures,
	}
}

func (m *metrics) recordRun(ctx context.Context, outcome string, passes int) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "converged" {
		m.passes.Record(ctx, int64(passes))
	}
}
