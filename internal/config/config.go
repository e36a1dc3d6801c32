// Package config loads dispatchd settings from YAML with environment
// overrides. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dispatch-dashboard/internal/backend"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Journal JournalConfig `yaml:"journal"`
	Tracker TrackerConfig `yaml:"tracker"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StaticDir       string        `yaml:"static_dir"`
}

type BackendConfig struct {
	BaseURL   string            `yaml:"base_url"`
	OrgID     string            `yaml:"org_id"`
	Timeout   time.Duration     `yaml:"timeout"`
	Endpoints backend.Endpoints `yaml:"endpoints"`
}

// SessionConfig selects where the auth token lives: "sqlite" (Path),
// "postgres" (DSN) or "memory". The sqlite driver with an empty path also
// keeps it in memory only.
type SessionConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// JournalConfig enables the mutation journal when Dir is set.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// TrackerConfig names at most one live position feed. A positive
// RefreshInterval polls it in the background; zero fetches on demand only.
type TrackerConfig struct {
	GtfsRtURL       string        `yaml:"gtfsrt_url"`
	SiriJSONURL     string        `yaml:"siri_json_url"`
	SiriXMLURL      string        `yaml:"siri_xml_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "./static",
		},
		Backend: BackendConfig{
			Timeout:   15 * time.Second,
			Endpoints: backend.DefaultEndpoints(),
		},
		Session: SessionConfig{Driver: "sqlite", Path: "data/session.db"},
		Tracker: TrackerConfig{Timeout: 10 * time.Second},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DISPATCH_* variables found through lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DISPATCH_BACKEND_URL", &c.Backend.BaseURL)
	str("DISPATCH_ORG_ID", &c.Backend.OrgID)
	str("DISPATCH_SESSION_DRIVER", &c.Session.Driver)
	str("DISPATCH_SESSION_PATH", &c.Session.Path)
	str("DISPATCH_SESSION_DSN", &c.Session.DSN)
	str("DISPATCH_JOURNAL_DIR", &c.Journal.Dir)
	str("DISPATCH_GTFSRT_URL", &c.Tracker.GtfsRtURL)
	str("DISPATCH_SIRI_JSON_URL", &c.Tracker.SiriJSONURL)
	str("DISPATCH_SIRI_XML_URL", &c.Tracker.SiriXMLURL)
	str("DISPATCH_STATIC_DIR", &c.HTTP.StaticDir)
	str("DISPATCH_LOG_LEVEL", &c.Log.Level)
	str("DISPATCH_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("DISPATCH_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DISPATCH_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("DISPATCH_TRACKER_REFRESH"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DISPATCH_TRACKER_REFRESH: %w", err)
		}
		c.Tracker.RefreshInterval = d
	}
	if v, ok := lookup("DISPATCH_BACKEND_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DISPATCH_BACKEND_TIMEOUT: %w", err)
		}
		c.Backend.Timeout = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	feeds := 0
	for _, u := range []string{c.Tracker.GtfsRtURL, c.Tracker.SiriJSONURL, c.Tracker.SiriXMLURL} {
		if u != "" {
			feeds++
		}
	}
	if feeds > 1 {
		errs = append(errs, errors.New("provide at most one of tracker.gtfsrt_url, tracker.siri_json_url, tracker.siri_xml_url"))
	}
	switch c.Session.Driver {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(c.Session.DSN) == "" {
			errs = append(errs, errors.New("session.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.driver %q is not one of sqlite, postgres, memory", c.Session.Driver))
	}
	if c.Tracker.RefreshInterval < 0 {
		errs = append(errs, errors.New("tracker.refresh_interval must not be negative"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	return errors.Join(errs...)
}
