// Package config loads process settings: defaults, then an optional YAML
// file named by RELIEFMAP_CONFIG, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reliefmap/internal/feeds"
)

type Config struct {
	Port        string `yaml:"port"`
	APIBaseURL  string `yaml:"api_base_url"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
	DBMigrate   bool   `yaml:"db_migrate"`

	Places Places `yaml:"places"`
	Geo    Geo    `yaml:"geo"`
	Sheets Sheets `yaml:"sheets"`
}

type Places struct {
	Status     string        `yaml:"status"`
	StaleAfter time.Duration `yaml:"stale_after"`
	GCAfter    time.Duration `yaml:"gc_after"`
}

type Geo struct {
	InitDelay        time.Duration `yaml:"init_delay"`
	WatchDelay       time.Duration `yaml:"watch_delay"`
	RecenterInterval time.Duration `yaml:"recenter_interval"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// Sheets locates the spreadsheet-backed content sections.
type Sheets struct {
	SheetID string            `yaml:"sheet_id"`
	GIDs    map[string]string `yaml:"gids"`
	RPS     float64           `yaml:"rps"`
	Burst   int               `yaml:"burst"`
}

func Default() Config {
	return Config{
		Port:      "8080",
		DBMigrate: true,
		Places: Places{
			Status:     "開放",
			StaleAfter: 5 * time.Minute,
			GCAfter:    10 * time.Minute,
		},
		Geo: Geo{
			InitDelay:        1500 * time.Millisecond,
			WatchDelay:       time.Second,
			RecenterInterval: 400 * time.Millisecond,
			SessionTTL:       12 * time.Hour,
		},
		Sheets: Sheets{GIDs: map[string]string{}, RPS: 2, Burst: 4},
	}
}

var gidEnv = map[string]string{
	feeds.FAQName:           "FAQ_SHEET_GID",
	feeds.AnnouncementsName: "ANNOUNCEMENTS_SHEET_GID",
	feeds.FriendlyLinksName: "FRIENDLY_LINKS_SHEET_GID",
	feeds.HouseRepairName:   "HOUSE_REPAIR_SHEET_GID",
	feeds.SupportInfoName:   "SUPPORT_INFORMATION_SHEET_GID",
}

// Load builds the config from defaults, the file in RELIEFMAP_CONFIG and
// the environment.
func Load() (Config, error) {
	c := Default()
	if path := os.Getenv("RELIEFMAP_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if c.Sheets.GIDs == nil {
			c.Sheets.GIDs = map[string]string{}
		}
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str(&c.Port, "PORT")
	str(&c.APIBaseURL, "API_BASE_URL")
	str(&c.RedisURL, "REDIS_URL")
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.Places.Status, "PLACES_STATUS")
	str(&c.Sheets.SheetID, "GOOGLE_SHEET_ID")
	for name, key := range gidEnv {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			c.Sheets.GIDs[name] = v
		}
	}
	if getenv("DB_MIGRATE") == "false" {
		c.DBMigrate = false
	}

	durs := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Places.StaleAfter, "PLACES_STALE_AFTER"},
		{&c.Places.GCAfter, "PLACES_GC_AFTER"},
		{&c.Geo.InitDelay, "GEO_INIT_DELAY"},
		{&c.Geo.WatchDelay, "GEO_WATCH_DELAY"},
		{&c.Geo.RecenterInterval, "GEO_RECENTER_INTERVAL"},
		{&c.Geo.SessionTTL, "GEO_SESSION_TTL"},
	}
	for _, d := range durs {
		v := strings.TrimSpace(getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if v := getenv("FEED_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("config: FEED_RPS: invalid value %q", v)
		}
		c.Sheets.RPS = f
	}
	if v := getenv("FEED_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sheets.Burst = n
		}
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }
