package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"ghibli_backend/logging"
)

const meterName = "ghibli_backend"

// PoolStatsFunc reports the inference pool occupancy.
type PoolStatsFunc func() (inUse, capacity int64)

// Metrics bridges OpenTelemetry instruments to a Prometheus registry and
// mirrors stylization outcomes into a Store.
type Metrics struct {
	provider *metric.MeterProvider
	registry *promclient.Registry
	meter    api.Meter
	store    *Store

	httpDuration    api.Float64Histogram
	stylizeDuration api.Float64Histogram
	stylizeTotal    api.Int64Counter
	outputBytes     api.Int64Histogram
}

// New sets up the OpenTelemetry pipeline with a private Prometheus
// registry. Call Shutdown when done.
func New(store *Store) (*Metrics, error) {
	if store == nil {
		store = NewStore(DefaultHistoryCapacity, time.Now())
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("metrics: create exporter: %w", err)
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m := &Metrics{provider: provider, registry: registry, meter: meter, store: store}

	if m.httpDuration, err = meter.Float64Histogram("http_request_duration",
		api.WithDescription("HTTP request latency"), api.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.stylizeDuration, err = meter.Float64Histogram("stylize_duration",
		api.WithDescription("Time spent stylizing one upload"), api.WithUnit("s"),
		api.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300)); err != nil {
		return nil, err
	}
	if m.stylizeTotal, err = meter.Int64Counter("stylize_requests",
		api.WithDescription("Stylization attempts by outcome")); err != nil {
		return nil, err
	}
	if m.outputBytes, err = meter.Int64Histogram("stylize_output_size",
		api.WithDescription("Size of generated PNGs"), api.WithUnit("By")); err != nil {
		return nil, err
	}
	return m, nil
}

// Store returns the in-memory aggregation.
func (m *Metrics) Store() *Store {
	return m.store
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	m.httpDuration.Record(ctx, d.Seconds(), api.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
}

// RecordStylize implements stylize.Recorder.
func (m *Metrics) RecordStylize(ctx context.Context, sm logging.StylizeMetrics) {
	status := StatusSuccess
	if sm.ErrorKind != "" {
		status = StatusError
	}

	attrs := api.WithAttributes(
		attribute.String("backend", sm.Backend),
		attribute.String("status", status),
		attribute.String("error_kind", sm.ErrorKind),
	)
	m.stylizeTotal.Add(ctx, 1, attrs)
	m.stylizeDuration.Record(ctx, sm.Duration.Seconds(), attrs)
	if status == StatusSuccess {
		m.outputBytes.Record(ctx, int64(sm.OutputBytes), api.WithAttributes(attribute.String("backend", sm.Backend)))
	}

	m.store.Record(StylizeRecord{
		RequestID:  sm.RequestID,
		Backend:    sm.Backend,
		Status:     status,
		ErrorKind:  sm.ErrorKind,
		Stall:      sm.Stall,
		FinishedAt: time.Now(),
		Duration:   sm.Duration,
	})
}

// RegisterPoolGauges exports inference pool occupancy, read at scrape time.
func (m *Metrics) RegisterPoolGauges(stats PoolStatsFunc) error {
	inUse, err := m.meter.Int64ObservableGauge("inference_pool_in_use",
		api.WithDescription("Inference contexts currently generating"))
	if err != nil {
		return err
	}
	capacity, err := m.meter.Int64ObservableGauge("inference_pool_capacity",
		api.WithDescription("Maximum concurrent inferences"))
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o api.Observer) error {
		used, limit := stats()
		o.ObserveInt64(inUse, used)
		o.ObserveInt64(capacity, limit)
		return nil
	}, inUse, capacity)
	return err
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
