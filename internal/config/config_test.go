package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig 把 YAML 写入临时文件并返回路径
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

const validYAML = `
services:
  - nginx
  - postgresql
scan_interval_minutes: 5
alert_threshold: 3
alert_window_hours: 1
retention_hours: 168
databases:
  - type: sqlite
    enabled: true
    sqlite:
      path: /var/lib/doctor/events.db
  - type: postgres
    enabled: true
    postgres:
      host: localhost
      user: doctor
      password: secret
      database: doctor
notifications:
  - type: slack
    enabled: true
    slack:
      webhook_url: https://hooks.slack.com/services/T/B/x
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Services) != 2 {
		t.Errorf("服务数 = %d, want 2", len(cfg.Services))
	}
	if cfg.ScanInterval != 5*time.Minute {
		t.Errorf("ScanInterval = %v, want 5m", cfg.ScanInterval)
	}
	if cfg.AlertWindow != time.Hour {
		t.Errorf("AlertWindow = %v, want 1h", cfg.AlertWindow)
	}
	if cfg.Retention != 168*time.Hour {
		t.Errorf("Retention = %v, want 168h", cfg.Retention)
	}

	// 默认值
	if cfg.CheckTimeout != 10*time.Second {
		t.Errorf("CheckTimeout = %v, want 10s", cfg.CheckTimeout)
	}
	if cfg.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", cfg.MaxConcurrency)
	}
	if cfg.PruneInterval != time.Hour {
		t.Errorf("PruneInterval = %v, want 1h", cfg.PruneInterval)
	}
	if cfg.TargetTimeout != 10*time.Second {
		t.Errorf("TargetTimeout = %v, want 10s", cfg.TargetTimeout)
	}
	if cfg.NotifyRatePerSecond != 5 {
		t.Errorf("NotifyRatePerSecond = %g, want 5", cfg.NotifyRatePerSecond)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("API.Addr = %s, want :8080", cfg.API.Addr)
	}

	// Postgres 默认值
	pg := cfg.Databases[1].Postgres
	if pg.Port != 5432 || pg.SSLMode != "disable" {
		t.Errorf("Postgres 默认值错误: port=%d sslmode=%s", pg.Port, pg.SSLMode)
	}
}

func TestLoad_FractionalScanInterval(t *testing.T) {
	yaml := strings.Replace(validYAML, "scan_interval_minutes: 5", "scan_interval_minutes: 0.5", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScanInterval != 30*time.Second {
		t.Errorf("ScanInterval = %v, want 30s", cfg.ScanInterval)
	}
}

func TestLoad_ScanIntervalClamp(t *testing.T) {
	// 0.001 分钟 = 60ms，低于 1s 下限
	yaml := strings.Replace(validYAML, "scan_interval_minutes: 5", "scan_interval_minutes: 0.001", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScanInterval != time.Second {
		t.Errorf("ScanInterval = %v, want 1s（下限钳制）", cfg.ScanInterval)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "no services",
			mutate:  func(s string) string { return strings.Replace(s, "  - nginx\n  - postgresql\n", "", 1) },
			wantErr: "services",
		},
		{
			name:    "duplicate service",
			mutate:  func(s string) string { return strings.Replace(s, "  - postgresql", "  - nginx", 1) },
			wantErr: "重复",
		},
		{
			name:    "zero scan interval",
			mutate:  func(s string) string { return strings.Replace(s, "scan_interval_minutes: 5", "scan_interval_minutes: 0", 1) },
			wantErr: "scan_interval_minutes",
		},
		{
			name:    "zero threshold",
			mutate:  func(s string) string { return strings.Replace(s, "alert_threshold: 3", "alert_threshold: 0", 1) },
			wantErr: "alert_threshold",
		},
		{
			name:    "zero window",
			mutate:  func(s string) string { return strings.Replace(s, "alert_window_hours: 1", "alert_window_hours: 0", 1) },
			wantErr: "alert_window_hours",
		},
		{
			name:    "unknown database type",
			mutate:  func(s string) string { return strings.Replace(s, "type: sqlite", "type: cassandra", 1) },
			wantErr: "未知的存储类型",
		},
		{
			name:    "sqlite without path",
			mutate:  func(s string) string { return strings.Replace(s, "      path: /var/lib/doctor/events.db\n", "", 1) },
			wantErr: "sqlite.path",
		},
		{
			name:    "postgres without host",
			mutate:  func(s string) string { return strings.Replace(s, "      host: localhost\n", "", 1) },
			wantErr: "postgres.host",
		},
		{
			name:    "slack without webhook",
			mutate:  func(s string) string { return strings.Replace(s, "      webhook_url: https://hooks.slack.com/services/T/B/x\n", "", 1) },
			wantErr: "slack.webhook_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate(validYAML)))
			if err == nil {
				t.Fatal("应返回配置错误")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("错误信息 = %q, 应包含 %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// 禁用的条目不参与验证（允许留空占位）
func TestLoad_DisabledEntriesSkipValidation(t *testing.T) {
	yaml := validYAML + `
  - type: email
    enabled: false
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("禁用条目缺字段不应报错: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOCTOR_POSTGRES_PASSWORD", "from-env")
	t.Setenv("DOCTOR_POSTGRES_PORT", "5433")
	t.Setenv("DOCTOR_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/ENV/B/x")
	t.Setenv("DOCTOR_API_ADDR", ":9090")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	pg := cfg.Databases[1].Postgres
	if pg.Password != "from-env" {
		t.Errorf("Postgres 密码未被环境变量覆盖: %q", pg.Password)
	}
	if pg.Port != 5433 {
		t.Errorf("Postgres 端口 = %d, want 5433", pg.Port)
	}
	if cfg.Notifications[0].Slack.WebhookURL != "https://hooks.slack.com/services/ENV/B/x" {
		t.Error("Slack webhook 未被环境变量覆盖")
	}
	if cfg.API.Addr != ":9090" {
		t.Errorf("API.Addr = %s, want :9090", cfg.API.Addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("不存在的配置文件应返回错误")
	}
}

func TestEnabledFilters(t *testing.T) {
	cfg := &AppConfig{
		Databases: []DatabaseConfig{
			{Type: "sqlite", Enabled: true},
			{Type: "postgres", Enabled: false},
			{Type: "redis", Enabled: true},
		},
		Notifications: []NotificationConfig{
			{Type: "email", Enabled: false},
			{Type: "slack", Enabled: true},
		},
	}

	dbs := cfg.EnabledDatabases()
	if len(dbs) != 2 || dbs[0].Type != "sqlite" || dbs[1].Type != "redis" {
		t.Errorf("EnabledDatabases() = %+v", dbs)
	}
	if ns := cfg.EnabledNotifications(); len(ns) != 1 || ns[0].Type != "slack" {
		t.Errorf("EnabledNotifications() = %+v", ns)
	}
}
