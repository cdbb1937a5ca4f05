package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
environment:
  log_level: debug
provider:
  mode: live
  base_url: http://localhost:9100
  timeout: 8s
  rate_per_minute: 120
catalog:
  cache_ttl: 6h
  lookback_days: 5
refresh:
  interval: 3s
  history_size: 25
  auto_start: true
selection:
  underlying: 300ETF
dashboard:
  port: 9090
  auth_token: topsecret
storage:
  path: data/snapshot.json
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Provider.Mode != "live" || cfg.Provider.BaseURL != "http://localhost:9100" {
		t.Errorf("provider config wrong: %+v", cfg.Provider)
	}
	if cfg.ProviderTimeout() != 8*time.Second {
		t.Errorf("timeout = %v, want 8s", cfg.ProviderTimeout())
	}
	if cfg.CatalogTTL() != 6*time.Hour {
		t.Errorf("cache ttl = %v, want 6h", cfg.CatalogTTL())
	}
	if cfg.RefreshInterval() != 3*time.Second {
		t.Errorf("interval = %v, want 3s", cfg.RefreshInterval())
	}
	if cfg.Refresh.HistorySize != 25 || !cfg.Refresh.AutoStart {
		t.Errorf("refresh config wrong: %+v", cfg.Refresh)
	}
	if cfg.Selection.Underlying != "300ETF" {
		t.Errorf("selection = %+v", cfg.Selection)
	}
	if cfg.Dashboard.Port != 9090 || cfg.Dashboard.AuthToken != "topsecret" {
		t.Errorf("dashboard config wrong: %+v", cfg.Dashboard)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "provider:\n  mode: mock\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment.LogLevel != "info" {
		t.Errorf("log level default = %q", cfg.Environment.LogLevel)
	}
	if cfg.RefreshInterval() != 5*time.Second {
		t.Errorf("interval default = %v", cfg.RefreshInterval())
	}
	if cfg.Refresh.HistorySize != 50 {
		t.Errorf("history size default = %d", cfg.Refresh.HistorySize)
	}
	if cfg.CatalogTTL() != 12*time.Hour {
		t.Errorf("cache ttl default = %v", cfg.CatalogTTL())
	}
	if cfg.Catalog.LookbackDays != 10 {
		t.Errorf("lookback default = %d", cfg.Catalog.LookbackDays)
	}
	if cfg.ProviderTimeout() != 10*time.Second {
		t.Errorf("timeout default = %v", cfg.ProviderTimeout())
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("port default = %d", cfg.Dashboard.Port)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PREMIUMDIFF_TOKEN", "from-env")
	cfg, err := Load(writeConfig(t, `
provider:
  mode: mock
dashboard:
  auth_token: ${PREMIUMDIFF_TOKEN}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dashboard.AuthToken != "from-env" {
		t.Errorf("auth token = %q, want from-env", cfg.Dashboard.AuthToken)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown mode",
			yaml:    "provider:\n  mode: sandbox\n",
			wantErr: "provider.mode",
		},
		{
			name:    "live without base url",
			yaml:    "provider:\n  mode: live\n",
			wantErr: "provider.base_url",
		},
		{
			name:    "bad timeout",
			yaml:    "provider:\n  mode: mock\n  timeout: soon\n",
			wantErr: "provider.timeout",
		},
		{
			name:    "sub-second interval",
			yaml:    "provider:\n  mode: mock\nrefresh:\n  interval: 200ms\n",
			wantErr: "refresh.interval",
		},
		{
			name:    "bad log level",
			yaml:    "provider:\n  mode: mock\nenvironment:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "unknown field rejected",
			yaml:    "provider:\n  mode: mock\nbroker:\n  api_key: x\n",
			wantErr: "parsing config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
