package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"groupings-hub/internal/scheduler"
)

const (
	sourceUpstream = "upstream"
	sourceStore    = "store"

	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

type Config struct {
	App struct {
		Env      string `mapstructure:"env"`
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	Announcements struct {
		Source string `mapstructure:"source"`
	} `mapstructure:"announcements"`
	Upstream struct {
		BaseURL     string        `mapstructure:"base_url"`
		APIKey      string        `mapstructure:"api_key"`
		Timeout     time.Duration `mapstructure:"timeout"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		RetryDelay  time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"upstream"`
	Database struct {
		Driver      string        `mapstructure:"driver"`
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Scheduler struct {
		SweepSpec string `mapstructure:"sweep_spec"`
	} `mapstructure:"scheduler"`
	Security struct {
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
	} `mapstructure:"security"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	RateLimit struct {
		AnnouncementsPerMinute int `mapstructure:"announcements_per_minute"`
	} `mapstructure:"rate_limit"`
	Tracing struct {
		Enabled     bool   `mapstructure:"enabled"`
		Endpoint    string `mapstructure:"endpoint"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`
	Debug struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
	} `mapstructure:"debug"`
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.App.Timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

func loadConfig() (Config, error) {
	return loadConfigFrom(".")
}

func loadConfigFrom(dirs ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("GROUPINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "GROUPINGS_DATABASE_URL", "DATABASE_URL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	cfg.Announcements.Source = strings.ToLower(strings.TrimSpace(cfg.Announcements.Source))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "Pacific/Honolulu")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("announcements.source", sourceUpstream)
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.retry_delay", "500ms")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("scheduler.sweep_spec", scheduler.DefaultSweepSpec)
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("rate_limit.announcements_per_minute", 120)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "groupings-hub")
	v.SetDefault("debug.pprof_enabled", false)
}

func (c Config) validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Announcements.Source {
	case sourceUpstream:
		if strings.TrimSpace(c.Upstream.BaseURL) == "" {
			return errors.New("upstream.base_url is required when announcements.source is upstream")
		}
	case sourceStore:
		if c.Database.Driver == "" {
			return errors.New("database.driver is required when announcements.source is store")
		}
	default:
		return fmt.Errorf("announcements.source must be %q or %q", sourceUpstream, sourceStore)
	}

	switch c.Database.Driver {
	case "":
	case driverPostgres, driverSQLite:
		if strings.TrimSpace(c.Database.URL) == "" {
			return errors.New("database.url is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q", driverPostgres, driverSQLite)
	}

	if c.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be greater than 0")
	}
	if c.Database.PingTimeout <= 0 {
		return errors.New("database.ping_timeout must be greater than 0")
	}
	if c.Upstream.MaxAttempts <= 0 {
		return errors.New("upstream.max_attempts must be greater than 0")
	}
	if c.RateLimit.AnnouncementsPerMinute <= 0 {
		return errors.New("rate_limit.announcements_per_minute must be greater than 0")
	}

	if err := scheduler.ParseSpec(c.Scheduler.SweepSpec); err != nil {
		return fmt.Errorf("invalid scheduler.sweep_spec: %w", err)
	}

	if len(c.CORS.AllowOrigins) == 0 {
		return errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range c.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("cors.allow_origins must not contain wildcard *")
		}
	}

	return nil
}
