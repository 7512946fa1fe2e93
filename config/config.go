/*
config.go - Process configuration from the environment

PURPOSE:
  Reads every runtime setting from VCDASH_* environment variables (a .env
  file is loaded first by the CLI) and turns the floor section into the
  floor.Settings the engines run with.

BACKEND SELECTION:
  VCDASH_DATABASE_URL set    -> Postgres key/JSON-blob backend
  VCDASH_DB_PATH=":memory:"  -> in-process memory store (nothing persisted)
  otherwise                  -> SQLite file at VCDASH_DB_PATH

SEE ALSO:
  - cmd/server/main.go: Load, store selection
  - floor/settings.go: Settings
*/
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/shopspring/decimal"
)

// EnvPrefix namespaces every variable this process reads.
const EnvPrefix = "VCDASH"

// MemoryDBPath selects the in-process store.
const MemoryDBPath = ":memory:"

type Config struct {
	App   AppConfig
	HTTP  HTTPConfig
	DB    DBConfig
	Floor FloorConfig
}

// Load reads the configuration and checks the values envconfig cannot.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Settings(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	ServiceName  string `envconfig:"VCDASH_SERVICE_NAME" default:"vc-dash"`
	LogLevel     string `envconfig:"VCDASH_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VCDASH_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VCDASH_LOG_WARN_STACK" default:"false"`
}

type HTTPConfig struct {
	Host            string        `envconfig:"VCDASH_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"VCDASH_PORT" default:"8787"`
	FrontendOrigins []string      `envconfig:"VCDASH_FRONTEND_ORIGINS" default:"http://localhost:5173"`
	ShutdownTimeout time.Duration `envconfig:"VCDASH_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Addr is the listen address for net/http.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// Origins drops blank entries left by trailing commas.
func (h HTTPConfig) Origins() []string {
	out := make([]string, 0, len(h.FrontendOrigins))
	for _, o := range h.FrontendOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type DBConfig struct {
	Path string `envconfig:"VCDASH_DB_PATH" default:"./data/vc_dash.sqlite"`
	URL  string `envconfig:"VCDASH_DATABASE_URL"`

	MaxOpenConns    int           `envconfig:"VCDASH_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"VCDASH_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"VCDASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VCDASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// UsePostgres reports whether the blob backend was requested.
func (d DBConfig) UsePostgres() bool {
	return strings.TrimSpace(d.URL) != ""
}

// UseMemory reports whether nothing should be persisted.
func (d DBConfig) UseMemory() bool {
	return !d.UsePostgres() && d.Path == MemoryDBPath
}

type FloorConfig struct {
	Timezone          string        `envconfig:"VCDASH_TIMEZONE" default:"America/New_York"`
	CostPerCall       string        `envconfig:"VCDASH_COST_PER_CALL" default:"15"`
	FreezeCutoff      string        `envconfig:"VCDASH_FREEZE_CUTOFF" default:"23:50"`
	FreezeInterval    time.Duration `envconfig:"VCDASH_FREEZE_INTERVAL" default:"1m"`
	AttendanceAlertAt string        `envconfig:"VCDASH_ATTENDANCE_ALERT_AT" default:"17:30"`
	EODFinalizeAt     string        `envconfig:"VCDASH_EOD_FINALIZE_AT" default:"18:15"`
}

// Settings builds the engine settings on top of floor.DefaultSettings.
func (c *Config) Settings() (floor.Settings, error) {
	s := floor.DefaultSettings()
	f := c.Floor

	cal, err := floor.NewCalendar(f.Timezone)
	if err != nil {
		return s, fmt.Errorf("VCDASH_TIMEZONE: %w", err)
	}
	s.Calendar = cal

	cost, err := decimal.NewFromString(strings.TrimSpace(f.CostPerCall))
	if err != nil || cost.IsNegative() {
		return s, fmt.Errorf("VCDASH_COST_PER_CALL: %q is not a non-negative amount", f.CostPerCall)
	}
	s.CostPerCall = cost

	minutes := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"VCDASH_FREEZE_CUTOFF", f.FreezeCutoff, &s.FreezeCutoff},
		{"VCDASH_ATTENDANCE_ALERT_AT", f.AttendanceAlertAt, &s.AttendanceAlertAt},
		{"VCDASH_EOD_FINALIZE_AT", f.EODFinalizeAt, &s.EODFinalizeAt},
	}
	for _, m := range minutes {
		v, err := floor.ParseClockMinute(m.raw)
		if err != nil {
			return s, fmt.Errorf("%s: %w", m.name, err)
		}
		*m.dst = v
	}

	if f.FreezeInterval <= 0 {
		return s, fmt.Errorf("VCDASH_FREEZE_INTERVAL must be positive, got %v", f.FreezeInterval)
	}
	return s, nil
}
