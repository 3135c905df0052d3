package branch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the branch counters.
const MeterName = "github.com/roach88/filesync/internal/branch"

// Metrics counts branch activity.
type Metrics struct {
	fetched       metric.Int64Counter
	fetchFailures metric.Int64Counter
	classified    metric.Int64Counter
	rowsLoaded    metric.Int64Counter
}

// NewMetrics registers the branch counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.fetched, err = meter.Int64Counter("filesync.artifacts.fetched",
		metric.WithDescription("Artifacts downloaded from the source"),
		metric.WithUnit("{artifact}")); err != nil {
		return nil, err
	}
	if m.fetchFailures, err = meter.Int64Counter("filesync.artifacts.fetch_failures",
		metric.WithDescription("Artifacts that failed to download"),
		metric.WithUnit("{artifact}")); err != nil {
		return nil, err
	}
	if m.classified, err = meter.Int64Counter("filesync.artifacts.classified",
		metric.WithDescription("Artifacts classified against the archive"),
		metric.WithUnit("{artifact}")); err != nil {
		return nil, err
	}
	if m.rowsLoaded, err = meter.Int64Counter("filesync.rows.loaded",
		metric.WithDescription("Summary rows loaded into the warehouse"),
		metric.WithUnit("{row}")); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultMetrics registers the counters on the global meter provider,
// which discards them unless the process installed one.
func DefaultMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(MeterName))
}

func (m *Metrics) addFetched(ctx context.Context, branch string, n int) {
	if m == nil {
		return
	}
	m.fetched.Add(ctx, int64(n), metric.WithAttributes(attribute.String("branch", branch)))
}

func (m *Metrics) addFetchFailures(ctx context.Context, branch string, n int) {
	if m == nil {
		return
	}
	m.fetchFailures.Add(ctx, int64(n), metric.WithAttributes(attribute.String("branch", branch)))
}

func (m *Metrics) addClassified(ctx context.Context, branch, classification string) {
	if m == nil {
		return
	}
	m.classified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.String("classification", classification),
	))
}

func (m *Metrics) addRowsLoaded(ctx context.Context, branch string, n int) {
	if m == nil {
		return
	}
	m.rowsLoaded.Add(ctx, int64(n), metric.WithAttributes(attribute.String("branch", branch)))
}
