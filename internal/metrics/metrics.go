package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the process
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // PlaceFetches counts place listing fetches by cache key and outcome (ok, error, superseded)
    PlaceFetches = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "place_fetches_total", Help: "Place listing fetches by cache key and outcome."},
        []string{"key", "outcome"},
    )
    // PlacePages counts listing pages followed
    PlacePages = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "place_pages_total", Help: "Place listing pages fetched."},
    )
    // CacheLookups counts cache reads by result (hit, stale, miss)
    CacheLookups = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "place_cache_lookups_total", Help: "Place cache reads by result."},
        []string{"result"},
    )
    // FeedFetches counts sheet fetches by section and outcome
    FeedFetches = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "feed_fetches_total", Help: "Spreadsheet fetches by section and outcome."},
        []string{"section", "outcome"},
    )
    // GeoErrors counts geolocation failures by error code
    GeoErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geolocation_errors_total", Help: "Geolocation errors by code."},
        []string{"code"},
    )
    // GeoWatches tracks active position watches
    GeoWatches = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "geolocation_watches_active", Help: "Active position watches."},
    )
    // Notices counts notices by level
    Notices = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "notices_total", Help: "User notices by level."},
        []string{"level"},
    )
    // Reports counts report submissions by outcome
    Reports = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "report_submissions_total", Help: "Report submissions by outcome."},
        []string{"outcome"},
    )
    // DwellRecords counts category dwell records by outcome (recorded, dropped, error)
    DwellRecords = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "category_dwell_records_total", Help: "Category dwell records by outcome."},
        []string{"outcome"},
    )
    // WSClients tracks connected map surface clients
    WSClients = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "ws_clients", Help: "Connected map surface clients."},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(PlaceFetches, PlacePages, CacheLookups, FeedFetches)
        Registry.MustRegister(GeoErrors, GeoWatches, Notices, Reports, DwellRecords, WSClients)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
