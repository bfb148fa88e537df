package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// rawEnv mirrors the environment before validation.
type rawEnv struct {
	AppName        string        `env:"APP_NAME" envDefault:"RollCall"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver    string        `env:"STORE_DRIVER"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"rollcall.db"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	FacilityName      string  `env:"FACILITY_NAME" envDefault:"the facility"`
	FacilityLatitude  string  `env:"FACILITY_LATITUDE"`
	FacilityLongitude string  `env:"FACILITY_LONGITUDE"`
	FacilityRadius    float64 `env:"FACILITY_RADIUS_METERS" envDefault:"100"`
	NetworkPrefix     string  `env:"FACILITY_NETWORK_PREFIX" envDefault:"192.168.86"`
	LoopbackDiscovery bool    `env:"LOOPBACK_DISCOVERY" envDefault:"false"`
	TrustProxyHeaders bool    `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	AdmissionEnforce  bool    `env:"ADMISSION_ENFORCE" envDefault:"true"`

	OperatorUsername     string        `env:"OPERATOR_USERNAME" envDefault:"owner"`
	OperatorPassword     string        `env:"OPERATOR_PASSWORD"`
	OperatorPasswordHash string        `env:"OPERATOR_PASSWORD_HASH"`
	OperatorTokenSecret  string        `env:"OPERATOR_TOKEN_SECRET"`
	OperatorTokenTTL     time.Duration `env:"OPERATOR_TOKEN_TTL" envDefault:"12h"`
	SignInRatePerMinute  int           `env:"SIGNIN_RATE_PER_MINUTE" envDefault:"10"`
}

// Facility describes the geofence and network the admission gate checks against.
type Facility struct {
	Name string
	// CoordinatesSet is true when both latitude and longitude were configured,
	// including an explicit 0.
	CoordinatesSet bool
	Latitude       float64
	Longitude      float64
	RadiusMeters   float64
	NetworkPrefix  string
	// LoopbackDiscovery lets a loopback client be judged by the host's own
	// interface address. Local deployments only; refused in production.
	LoopbackDiscovery bool
}

// Operator holds the credentials for the single facility operator account.
type Operator struct {
	Username     string
	Password     string
	PasswordHash string
	TokenSecret  string
	TokenTTL     time.Duration
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName             string
	AppEnv              string
	Port                string
	LogLevel            string
	StoreDriver         string
	DatabaseURL         string
	SQLitePath          string
	RedisURL            string
	ShutdownPeriod      time.Duration
	IdempotencyTTL      time.Duration
	TrustProxyHeaders   bool
	AdmissionEnforce    bool
	SignInRatePerMinute int
	Facility            Facility
	Operator            Operator
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawEnv) (Config, error) {
	cfg := Config{
		AppName:             raw.AppName,
		AppEnv:              strings.ToLower(strings.TrimSpace(raw.AppEnv)),
		Port:                raw.Port,
		LogLevel:            strings.ToLower(raw.LogLevel),
		StoreDriver:         strings.ToLower(strings.TrimSpace(raw.StoreDriver)),
		DatabaseURL:         strings.TrimSpace(raw.DatabaseURL),
		SQLitePath:          strings.TrimSpace(raw.SQLitePath),
		RedisURL:            strings.TrimSpace(raw.RedisURL),
		ShutdownPeriod:      raw.ShutdownPeriod,
		IdempotencyTTL:      raw.IdempotencyTTL,
		TrustProxyHeaders:   raw.TrustProxyHeaders,
		AdmissionEnforce:    raw.AdmissionEnforce,
		SignInRatePerMinute: raw.SignInRatePerMinute,
		Facility: Facility{
			Name:              strings.TrimSpace(raw.FacilityName),
			RadiusMeters:      raw.FacilityRadius,
			NetworkPrefix:     strings.TrimSpace(raw.NetworkPrefix),
			LoopbackDiscovery: raw.LoopbackDiscovery,
		},
		Operator: Operator{
			Username:     strings.TrimSpace(raw.OperatorUsername),
			Password:     raw.OperatorPassword,
			PasswordHash: strings.TrimSpace(raw.OperatorPasswordHash),
			TokenSecret:  raw.OperatorTokenSecret,
			TokenTTL:     raw.OperatorTokenTTL,
		},
	}

	if cfg.StoreDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = StoreDriverPostgres
		} else {
			cfg.StoreDriver = StoreDriverMemory
		}
	}

	lat, lon := strings.TrimSpace(raw.FacilityLatitude), strings.TrimSpace(raw.FacilityLongitude)
	switch {
	case lat != "" && lon != "":
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FACILITY_LATITUDE: %w", err)
		}
		lo, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FACILITY_LONGITUDE: %w", err)
		}
		if la < -90 || la > 90 || lo < -180 || lo > 180 {
			return Config{}, fmt.Errorf("facility coordinates out of range: %s,%s", lat, lon)
		}
		cfg.Facility.CoordinatesSet = true
		cfg.Facility.Latitude = la
		cfg.Facility.Longitude = lo
	case lat != "" || lon != "":
		return Config{}, fmt.Errorf("FACILITY_LATITUDE and FACILITY_LONGITUDE must be set together")
	}

	if cfg.Facility.RadiusMeters <= 0 {
		return Config{}, fmt.Errorf("FACILITY_RADIUS_METERS must be positive")
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set for STORE_DRIVER=postgres")
		}
	case StoreDriverSQLite:
		if cfg.SQLitePath == "" {
			return Config{}, fmt.Errorf("SQLITE_PATH must be set for STORE_DRIVER=sqlite")
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if !cfg.IsDev() {
		if cfg.Facility.LoopbackDiscovery {
			return Config{}, fmt.Errorf("LOOPBACK_DISCOVERY is not allowed when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.StoreDriver == StoreDriverMemory {
			return Config{}, fmt.Errorf("a persistent STORE_DRIVER is required when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.Operator.TokenSecret == "" {
			return Config{}, fmt.Errorf("OPERATOR_TOKEN_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.Operator.Password == "" && cfg.Operator.PasswordHash == "" {
			return Config{}, fmt.Errorf("OPERATOR_PASSWORD or OPERATOR_PASSWORD_HASH must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local/development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
