package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfig_DefaultsWithUpstream(t *testing.T) {
	dir := writeConfig(t, "upstream:\n  base_url: https://groupings.example.edu/api\n")

	cfg, err := loadConfigFrom(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Announcements.Source != sourceUpstream {
		t.Fatalf("unexpected source %q", cfg.Announcements.Source)
	}
	if cfg.Upstream.Timeout != 10*time.Second || cfg.Upstream.MaxAttempts != 3 {
		t.Fatalf("unexpected upstream defaults %+v", cfg.Upstream)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Pacific/Honolulu" {
		t.Fatalf("unexpected location %v (%v)", loc, err)
	}
	if cfg.RateLimit.AnnouncementsPerMinute != 120 {
		t.Fatalf("unexpected rate limit %d", cfg.RateLimit.AnnouncementsPerMinute)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "announcements:\n  source: upstream\n")
	t.Setenv("GROUPINGS_UPSTREAM_BASE_URL", "https://env.example.edu")
	t.Setenv("GROUPINGS_ANNOUNCEMENTS_SOURCE", "STORE")
	t.Setenv("GROUPINGS_DATABASE_DRIVER", "sqlite")
	t.Setenv("GROUPINGS_DATABASE_URL", ":memory:")
	t.Setenv("GROUPINGS_SCHEDULER_SWEEP_SPEC", "*/30 * * * * *")

	cfg, err := loadConfigFrom(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Announcements.Source != sourceStore || cfg.Database.Driver != driverSQLite {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Announcements, cfg.Database)
	}
	if cfg.Scheduler.SweepSpec != "*/30 * * * * *" {
		t.Fatalf("unexpected sweep spec %q", cfg.Scheduler.SweepSpec)
	}
}

func TestLoadConfig_InternalTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	cfgDir := writeConfig(t, "upstream:\n  base_url: http://localhost:9000\nsecurity:\n  internal_token_file: "+tokenPath+"\n")

	cfg, err := loadConfigFrom(cfgDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Security.InternalToken != "from-file" {
		t.Fatalf("unexpected token %q", cfg.Security.InternalToken)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "missing upstream url", body: "announcements:\n  source: upstream\n", want: "upstream.base_url"},
		{name: "store without driver", body: "announcements:\n  source: store\n", want: "database.driver is required"},
		{name: "unknown source", body: "announcements:\n  source: ldap\n", want: "announcements.source"},
		{name: "unknown driver", body: "upstream:\n  base_url: http://x\ndatabase:\n  driver: mysql\n  url: x\n", want: "database.driver must be"},
		{name: "bad timezone", body: "app:\n  timezone: Mars/Olympus\nupstream:\n  base_url: http://x\n", want: "app.timezone"},
		{name: "bad spec", body: "upstream:\n  base_url: http://x\nscheduler:\n  sweep_spec: \"* * * * *\"\n", want: "scheduler.sweep_spec"},
		{name: "wildcard cors", body: "upstream:\n  base_url: http://x\ncors:\n  allow_origins: [\"*\"]\n", want: "wildcard"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfigFrom(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
