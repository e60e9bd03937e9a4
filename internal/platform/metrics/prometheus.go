package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Manager holds the service's custom Prometheus metrics.
type Manager struct {
	Registry                  *prometheus.Registry
	PropertiesRegisteredTotal prometheus.Counter
	ListingsCreatedTotal      prometheus.Counter
	ListingsCancelledTotal    prometheus.Counter
	SalesTotal                prometheus.Counter
	FeesAccruedTotal          prometheus.Counter
	FeesWithdrawnTotal        prometheus.Counter
	OperationErrorsTotal      *prometheus.CounterVec
	RequestLatency            *prometheus.HistogramVec
}

// NewManager initializes and registers the custom metrics on a dedicated
// registry.
func NewManager(serviceName string) *Manager {
	registry := prometheus.NewRegistry()

	propertiesRegisteredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "properties_registered_total",
		Help:      "Total number of properties registered on the ledger.",
	})
	listingsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "listings_created_total",
		Help:      "Total number of listings created (registrations and re-listings).",
	})
	listingsCancelledTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "listings_cancelled_total",
		Help:      "Total number of listings withdrawn from sale.",
	})
	salesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "sales_total",
		Help:      "Total number of completed property sales.",
	})
	feesAccruedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "fees_accrued_units_total",
		Help:      "Total operator fees accrued, in smallest currency units.",
	})
	feesWithdrawnTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "fees_withdrawn_units_total",
		Help:      "Total operator fees withdrawn, in smallest currency units.",
	})
	operationErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "operation_errors_total",
		Help:      "Total number of rejected ledger operations by operation.",
	}, []string{"operation"})
	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "request_latency_seconds",
		Help:      "Latency of HTTP requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(
		propertiesRegisteredTotal,
		listingsCreatedTotal,
		listingsCancelledTotal,
		salesTotal,
		feesAccruedTotal,
		feesWithdrawnTotal,
		operationErrorsTotal,
		requestLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &Manager{
		Registry:                  registry,
		PropertiesRegisteredTotal: propertiesRegisteredTotal,
		ListingsCreatedTotal:      listingsCreatedTotal,
		ListingsCancelledTotal:    listingsCancelledTotal,
		SalesTotal:                salesTotal,
		FeesAccruedTotal:          feesAccruedTotal,
		FeesWithdrawnTotal:        feesWithdrawnTotal,
		OperationErrorsTotal:      operationErrorsTotal,
		RequestLatency:            requestLatency,
	}
}

// StartMetricsServer exposes the registry on /metrics. Blocks until the
// server stops.
func StartMetricsServer(port string, logger *zap.Logger, registry *prometheus.Registry) error {
	if port == "" {
		logger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	logger.Info("Prometheus metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}
