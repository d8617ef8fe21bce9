package config

import "testing"

type testConfig struct {
	DBPath string `env:"STOCKROOM_TEST_DB_PATH" envDefault:"data/test.db"`
	Port   int    `env:"STOCKROOM_TEST_PORT" envDefault:"8080"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "data/test.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/test.db")
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("STOCKROOM_TEST_DB_PATH", "/tmp/override.db")
	t.Setenv("STOCKROOM_TEST_PORT", "9090")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "/tmp/override.db")
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Port)
	}
}
