package api

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "sync/atomic"
    "time"

    "github.com/redis/go-redis/v9"

    "reliefmap/internal/analytics"
    "reliefmap/internal/config"
    "reliefmap/internal/feeds"
    "reliefmap/internal/geo"
    "reliefmap/internal/logger"
    "reliefmap/internal/notify"
    "reliefmap/internal/places"
    "reliefmap/internal/reports"
)

type pinger interface {
    Ping(ctx context.Context) error
}

type Server struct {
    Config   config.Config
    Places   *places.Repository
    Feeds    feeds.Registry
    Sheets   *feeds.Client
    Reports  reports.Submitter
    Broker   notify.EventBroker
    Sessions geo.Sessions
    Dwell    analytics.Sink

    pingers map[string]pinger
    closers []func() error
    clients atomic.Int64
}

// NewServer wires the process-wide dependencies. Without REDIS_URL notices
// and sessions stay in memory; without DATABASE_URL dwell records do too.
func NewServer(cfg config.Config) (*Server, error) {
    if strings.TrimSpace(cfg.APIBaseURL) == "" {
        logger.L().Warn("api_base_url_missing", "hint", "set API_BASE_URL to load places")
    }
    pc := places.NewClient(cfg.APIBaseURL, nil)
    if cfg.Places.Status != "" {
        pc.Status = cfg.Places.Status
    }
    s := &Server{
        Config:  cfg,
        Places:  places.NewRepository(pc, places.Options{StaleAfter: cfg.Places.StaleAfter, GCAfter: cfg.Places.GCAfter}),
        Feeds:   feeds.NewRegistry(cfg.Sheets.SheetID, cfg.Sheets.GIDs),
        Sheets:  feeds.NewClient(nil, cfg.Sheets.RPS, cfg.Sheets.Burst),
        Reports: reports.NewClient(cfg.APIBaseURL, nil),
        pingers: map[string]pinger{},
    }
    s.closers = append(s.closers, func() error { s.Places.Close(); return nil })

    // Broker and session selection
    s.Broker = notify.NewBroker()
    s.Sessions = geo.NewMemorySessions(cfg.Geo.SessionTTL, nil)
    if cfg.RedisURL != "" {
        if opt, err := redis.ParseURL(cfg.RedisURL); err != nil {
            logger.L().Warn("redis_url_invalid", "err", err)
        } else {
            rdb := redis.NewClient(opt)
            rb := notify.NewRedisBrokerClient(rdb)
            s.Broker = rb
            s.Sessions = geo.NewRedisSessions(rdb, cfg.Geo.SessionTTL)
            s.pingers["redis"] = rb
            s.closers = append(s.closers, rdb.Close)
        }
    }

    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s.Dwell = analytics.NewMemory()
    } else {
        pg, err := analytics.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            s.Close()
            return nil, err
        }
        if cfg.DBMigrate {
            ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
            err := pg.Migrate(ctx)
            cancel()
            if err != nil {
                logger.L().Warn("dwell_migrate_failed", "err", err)
            }
        }
        s.Dwell = pg
        s.pingers["postgres"] = pg
        s.closers = append(s.closers, pg.Close)
    }
    return s, nil
}

// Close releases connections in reverse order of creation.
func (s *Server) Close() error {
    var errs []error
    for i := len(s.closers) - 1; i >= 0; i-- {
        if err := s.closers[i](); err != nil {
            errs = append(errs, err)
        }
    }
    s.closers = nil
    return errors.Join(errs...)
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
    // Places
    mux.HandleFunc("/v1/places", s.PlacesHandler)
    mux.HandleFunc("/v1/places/grouped", s.GroupedHandler)
    mux.HandleFunc("/v1/places/refresh", s.PlacesRefreshHandler)

    // Content sections
    mux.HandleFunc("/v1/feeds", s.FeedsIndexHandler)
    mux.HandleFunc("/v1/feeds/", s.FeedHandler)

    // Analytics
    mux.HandleFunc("/v1/analytics/dwell", s.DwellHandler)

    // Map surface
    mux.HandleFunc("/ws", s.MapWSHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/debug/vars", s.DebugJSON)
}
