package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Coordination metrics
	claimsTotal             metric.Int64Counter
	leaseExtendsTotal       metric.Int64Counter
	leaseReleasesTotal      metric.Int64Counter
	completionsTotal        metric.Int64Counter
	notificationsPublished  metric.Int64Counter
	notificationsDelivered  metric.Int64Counter
	activeLeases            metric.Int64Gauge
	storeOperationsTotal    metric.Int64Counter
	storeOperationDuration  metric.Float64Histogram
	subscribersCreated      metric.Int64Counter
	subscribersDisconnected metric.Int64Counter
	subscriberPoolIdle      metric.Int64Gauge

	// System health
	memoryUsage    metric.Int64Gauge
	goroutineCount metric.Int64Gauge
	systemErrors   metric.Int64Counter
	systemUptime   metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance. With Enabled=false all record
// methods become no-ops, so callers never need to nil-check.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	tracer := otel.Tracer(cfg.ServiceName)
	meter := otel.Meter(cfg.ServiceName)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        tracer,
		meter:         meter,
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.String("status", status),
			),
		)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.String("status", status),
			),
		)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordClaimAttempt records the outcome of a claim attempt.
// Outcome is bounded: "success" or "rejected".
func (t *Telemetry) RecordClaimAttempt(outcome string) {
	if t.claimsTotal != nil {
		t.claimsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordLeaseExtend records the outcome of a lease extension.
func (t *Telemetry) RecordLeaseExtend(outcome string) {
	if t.leaseExtendsTotal != nil {
		t.leaseExtendsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordLeaseRelease records the outcome of a lease release.
func (t *Telemetry) RecordLeaseRelease(outcome string) {
	if t.leaseReleasesTotal != nil {
		t.leaseReleasesTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordCompletion records one segment completion.
func (t *Telemetry) RecordCompletion() {
	if t.completionsTotal != nil {
		t.completionsTotal.Add(context.Background(), 1)
	}
}

// RecordNotificationPublished records one published completion event.
func (t *Telemetry) RecordNotificationPublished() {
	if t.notificationsPublished != nil {
		t.notificationsPublished.Add(context.Background(), 1)
	}
}

// RecordNotificationDelivered records one completion event handed to a
// local subscriber callback.
func (t *Telemetry) RecordNotificationDelivered() {
	if t.notificationsDelivered != nil {
		t.notificationsDelivered.Add(context.Background(), 1)
	}
}

// SetActiveLeases records the current number of live lease records.
func (t *Telemetry) SetActiveLeases(n int64) {
	if t.activeLeases != nil {
		t.activeLeases.Record(context.Background(), n)
	}
}

// RecordStoreOperation records store operation metrics.
func (t *Telemetry) RecordStoreOperation(operation, status string, duration time.Duration) {
	if t.storeOperationsTotal != nil {
		t.storeOperationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if t.storeOperationDuration != nil {
		t.storeOperationDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}
}

// RecordSubscriberCreated records one newly connected subscriber handle.
func (t *Telemetry) RecordSubscriberCreated() {
	if t.subscribersCreated != nil {
		t.subscribersCreated.Add(context.Background(), 1)
	}
}

// RecordSubscriberDisconnected records one disconnected subscriber handle.
func (t *Telemetry) RecordSubscriberDisconnected() {
	if t.subscribersDisconnected != nil {
		t.subscribersDisconnected.Add(context.Background(), 1)
	}
}

// SetSubscriberPoolIdle records the current idle pool size.
func (t *Telemetry) SetSubscriberPoolIdle(n int64) {
	if t.subscriberPoolIdle != nil {
		t.subscriberPoolIdle.Record(context.Background(), n)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t.systemErrors != nil {
		t.systemErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeCoordinationMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeCoordinationMetrics() error {
	var err error

	t.claimsTotal, err = t.meter.Int64Counter(
		"segment_claims_total",
		metric.WithDescription("Total number of segment claim attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_claims_total counter: %w", err)
	}

	t.leaseExtendsTotal, err = t.meter.Int64Counter(
		"segment_lease_extends_total",
		metric.WithDescription("Total number of lease extension attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_lease_extends_total counter: %w", err)
	}

	t.leaseReleasesTotal, err = t.meter.Int64Counter(
		"segment_lease_releases_total",
		metric.WithDescription("Total number of lease release attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_lease_releases_total counter: %w", err)
	}

	t.completionsTotal, err = t.meter.Int64Counter(
		"segment_completions_total",
		metric.WithDescription("Total number of segments marked completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_completions_total counter: %w", err)
	}

	t.notificationsPublished, err = t.meter.Int64Counter(
		"segment_notifications_published_total",
		metric.WithDescription("Total number of completion notifications published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_notifications_published_total counter: %w", err)
	}

	t.notificationsDelivered, err = t.meter.Int64Counter(
		"segment_notifications_delivered_total",
		metric.WithDescription("Total number of completion notifications delivered to local subscribers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_notifications_delivered_total counter: %w", err)
	}

	t.activeLeases, err = t.meter.Int64Gauge(
		"segment_active_leases",
		metric.WithDescription("Number of currently held segment leases"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create segment_active_leases gauge: %w", err)
	}

	t.storeOperationsTotal, err = t.meter.Int64Counter(
		"store_operations_total",
		metric.WithDescription("Total number of shared store operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operations_total counter: %w", err)
	}

	t.storeOperationDuration, err = t.meter.Float64Histogram(
		"store_operation_duration_seconds",
		metric.WithDescription("Shared store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operation_duration histogram: %w", err)
	}

	t.subscribersCreated, err = t.meter.Int64Counter(
		"subscriber_connections_created_total",
		metric.WithDescription("Total number of subscriber connections created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber_connections_created_total counter: %w", err)
	}

	t.subscribersDisconnected, err = t.meter.Int64Counter(
		"subscriber_connections_disconnected_total",
		metric.WithDescription("Total number of subscriber connections disconnected"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber_connections_disconnected_total counter: %w", err)
	}

	t.subscriberPoolIdle, err = t.meter.Int64Gauge(
		"subscriber_pool_idle_connections",
		metric.WithDescription("Number of idle subscriber connections in the pool"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber_pool_idle_connections gauge: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.memoryUsage, err = t.meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Current memory usage in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory_usage gauge: %w", err)
	}

	t.goroutineCount, err = t.meter.Int64Gauge(
		"goroutines_count",
		metric.WithDescription("Number of running goroutines"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create goroutines_count gauge: %w", err)
	}

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics periodically samples runtime health gauges.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats

			runtime.ReadMemStats(&m)

			if t.memoryUsage != nil {
				t.memoryUsage.Record(ctx, int64(m.Alloc))
			}

			if t.goroutineCount != nil {
				t.goroutineCount.Record(ctx, int64(runtime.NumGoroutine()))
			}

			if t.systemUptime != nil {
				t.systemUptime.Record(ctx, time.Since(start).Seconds())
			}
		}
	}
}
