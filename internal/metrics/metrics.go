// Package metrics exposes Prometheus instrumentation for upload batches and
// the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/fileuploader/internal/policy"
	"github.com/example/fileuploader/internal/uploader"
)

const (
	outcomeStored = "stored"
	outcomeFailed = "failed"
	outcomeAbort  = "aborted"
)

// Metrics owns a private registry so tests and embedders never collide with
// the global one.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	items           *prometheus.CounterVec
	itemDuration    *prometheus.HistogramVec
	bytesStored     *prometheus.CounterVec
	batches         *prometheus.CounterVec
	mirrored        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the upload collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_items_total",
		Help: "Upload items processed, by field, origin and outcome",
	}, []string{"field", "origin", "outcome", "error_kind"})

	itemDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upload_item_duration_seconds",
		Help:    "Time spent fetching, validating and persisting one item",
		Buckets: prometheus.DefBuckets,
	}, []string{"origin"})

	bytesStored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_bytes_stored_total",
		Help: "Bytes committed to upload directories",
	}, []string{"field", "kind"})

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_batches_total",
		Help: "Upload batches finished, by outcome",
	}, []string{"outcome"})

	mirrored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_mirror_copies_total",
		Help: "Committed files copied to the mirror provider",
	}, []string{"field"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	registry.MustRegister(items, itemDuration, bytesStored, batches, mirrored, requestDuration)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		items:           items,
		itemDuration:    itemDuration,
		bytesStored:     bytesStored,
		batches:         batches,
		mirrored:        mirrored,
		requestDuration: requestDuration,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ItemDone implements uploader.Observer.
func (m *Metrics) ItemDone(_ string, res uploader.Result) {
	if m == nil {
		return
	}
	field := policy.FieldOf(res.Key)
	origin := string(res.Origin)
	m.itemDuration.WithLabelValues(origin).Observe(res.Duration.Seconds())

	if !res.OK() {
		kind := "unknown"
		if res.Err != nil {
			kind = string(res.Err.Kind)
		}
		m.items.WithLabelValues(field, origin, outcomeFailed, kind).Inc()
		return
	}
	m.items.WithLabelValues(field, origin, outcomeStored, "").Inc()
	m.bytesStored.WithLabelValues(field, string(res.File.Kind)).Add(float64(res.File.Size))
	if res.MirrorID != "" {
		m.mirrored.WithLabelValues(field).Inc()
	}
}

// BatchDone implements uploader.Observer.
func (m *Metrics) BatchDone(_ string, results *uploader.Results, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.batches.WithLabelValues(outcomeAbort).Inc()
	case len(results.Errors()) > 0:
		m.batches.WithLabelValues(outcomeFailed).Inc()
	default:
		m.batches.WithLabelValues(outcomeStored).Inc()
	}
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}
