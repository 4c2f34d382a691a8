package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/stackfield/tenantdb"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Resolver metrics
	TenantCacheHits             metric.Int64Counter
	TenantCacheMisses           metric.Int64Counter
	TenantResolutionsTotal      metric.Int64Counter
	TenantResolutionErrorsTotal metric.Int64Counter
	TenantsCached               metric.Int64UpDownCounter

	// Shutdown metrics
	ConnectionsClosedTotal metric.Int64Counter

	// Provisioning metrics
	StoresProvisionedTotal   metric.Int64Counter
	ProvisionConflictsTotal  metric.Int64Counter
	ReconcileRepairedTotal   metric.Int64Counter
	ReconcileOrphansDetected metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Resolver metrics
	m.TenantCacheHits, _ = meter.Int64Counter(
		"tenantdb.resolver.cache.hits.total",
		metric.WithDescription("Total number of tenant resolutions served from the registry cache"),
		metric.WithUnit("{resolution}"),
	)

	m.TenantCacheMisses, _ = meter.Int64Counter(
		"tenantdb.resolver.cache.misses.total",
		metric.WithDescription("Total number of tenant resolutions that missed the registry cache"),
		metric.WithUnit("{resolution}"),
	)

	m.TenantResolutionsTotal, _ = meter.Int64Counter(
		"tenantdb.resolver.resolutions.total",
		metric.WithDescription("Total number of successful uncached tenant resolutions"),
		metric.WithUnit("{resolution}"),
	)

	m.TenantResolutionErrorsTotal, _ = meter.Int64Counter(
		"tenantdb.resolver.errors.total",
		metric.WithDescription("Total number of failed tenant resolutions"),
		metric.WithUnit("{error}"),
	)

	m.TenantsCached, _ = meter.Int64UpDownCounter(
		"tenantdb.resolver.cached",
		metric.WithDescription("Number of tenant connections currently held in the registry cache"),
		metric.WithUnit("{connection}"),
	)

	// Shutdown metrics
	m.ConnectionsClosedTotal, _ = meter.Int64Counter(
		"tenantdb.connections.closed.total",
		metric.WithDescription("Total number of store connections closed by the shutdown coordinator"),
		metric.WithUnit("{connection}"),
	)

	// Provisioning metrics
	m.StoresProvisionedTotal, _ = meter.Int64Counter(
		"tenantdb.provision.stores.total",
		metric.WithDescription("Total number of tenant stores provisioned to ready"),
		metric.WithUnit("{store}"),
	)

	m.ProvisionConflictsTotal, _ = meter.Int64Counter(
		"tenantdb.provision.conflicts.total",
		metric.WithDescription("Total number of provisioning attempts rejected as conflicts"),
		metric.WithUnit("{conflict}"),
	)

	m.ReconcileRepairedTotal, _ = meter.Int64Counter(
		"tenantdb.reconcile.repaired.total",
		metric.WithDescription("Total number of stuck tenants repaired by the reconciler"),
		metric.WithUnit("{tenant}"),
	)

	m.ReconcileOrphansDetected, _ = meter.Int64Counter(
		"tenantdb.reconcile.orphans.total",
		metric.WithDescription("Total number of orphaned physical stores detected by the reconciler"),
		metric.WithUnit("{store}"),
	)

	return m
}
