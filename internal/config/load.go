package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 巡检间隔下限：防止 0 或极小值导致忙循环
const minScanInterval = time.Second

// Load 从文件加载配置，并应用环境变量覆盖
// 配置错误仅在此处致命，运行期间配置不可变
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 应用环境变量覆盖（凭证不落盘）
	cfg.applyEnvOverrides()

	// 设置默认值并解析 duration
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	// 验证配置
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides 从环境变量覆盖配置
// 格式：DOCTOR_POSTGRES_HOST、DOCTOR_EMAIL_PASSWORD 等
// 同类型的所有条目都会被覆盖
func (c *AppConfig) applyEnvOverrides() {
	for i := range c.Databases {
		db := &c.Databases[i]
		switch strings.ToLower(db.Type) {
		case "postgres":
			if v := os.Getenv("DOCTOR_POSTGRES_HOST"); v != "" {
				db.Postgres.Host = v
			}
			if v := os.Getenv("DOCTOR_POSTGRES_PORT"); v != "" {
				if port, err := strconv.Atoi(v); err == nil {
					db.Postgres.Port = port
				}
			}
			if v := os.Getenv("DOCTOR_POSTGRES_USER"); v != "" {
				db.Postgres.User = v
			}
			if v := os.Getenv("DOCTOR_POSTGRES_PASSWORD"); v != "" {
				db.Postgres.Password = v
			}
			if v := os.Getenv("DOCTOR_POSTGRES_DATABASE"); v != "" {
				db.Postgres.Database = v
			}
		case "redis":
			if v := os.Getenv("DOCTOR_REDIS_ADDR"); v != "" {
				db.Redis.Addr = v
			}
			if v := os.Getenv("DOCTOR_REDIS_PASSWORD"); v != "" {
				db.Redis.Password = v
			}
		case "sqlite":
			if v := os.Getenv("DOCTOR_SQLITE_PATH"); v != "" {
				db.SQLite.Path = v
			}
		}
	}

	for i := range c.Notifications {
		n := &c.Notifications[i]
		switch strings.ToLower(n.Type) {
		case "email":
			if v := os.Getenv("DOCTOR_EMAIL_PASSWORD"); v != "" {
				n.Email.Password = v
			}
		case "slack":
			if v := os.Getenv("DOCTOR_SLACK_WEBHOOK_URL"); v != "" {
				n.Slack.WebhookURL = v
			}
		case "teams":
			if v := os.Getenv("DOCTOR_TEAMS_WEBHOOK_URL"); v != "" {
				n.Teams.WebhookURL = v
			}
		}
	}

	if v := os.Getenv("DOCTOR_API_ADDR"); v != "" {
		c.API.Addr = v
	}
}

// normalize 填充默认值并把数值字段解析为 time.Duration
func (c *AppConfig) normalize() error {
	// 类型标签统一小写
	for i := range c.Databases {
		c.Databases[i].Type = strings.ToLower(strings.TrimSpace(c.Databases[i].Type))
	}
	for i := range c.Notifications {
		c.Notifications[i].Type = strings.ToLower(strings.TrimSpace(c.Notifications[i].Type))
	}

	// 巡检间隔（必填，下限 1s 防止忙循环）
	c.ScanInterval = time.Duration(c.ScanIntervalMinutes * float64(time.Minute))
	if c.ScanInterval > 0 && c.ScanInterval < minScanInterval {
		c.ScanInterval = minScanInterval
	}

	// 检查超时（默认 10s）
	if c.CheckTimeoutSeconds == 0 {
		c.CheckTimeoutSeconds = 10
	}
	c.CheckTimeout = time.Duration(c.CheckTimeoutSeconds * float64(time.Second))

	// 并发上限（默认 10）
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 10
	}

	// 告警窗口
	c.AlertWindow = time.Duration(c.AlertWindowHours * float64(time.Hour))

	// 重复通知间隔（0 表示恢复前不再通知）
	c.RealertInterval = time.Duration(c.RealertIntervalMinutes * float64(time.Minute))

	// 保留时长（0 表示禁用清理）
	c.Retention = time.Duration(c.RetentionHours * float64(time.Hour))

	// 清理间隔（默认 60 分钟）
	if c.PruneIntervalMinutes == 0 {
		c.PruneIntervalMinutes = 60
	}
	c.PruneInterval = time.Duration(c.PruneIntervalMinutes * float64(time.Minute))

	// 目标侧超时（默认 10s）
	if c.TargetTimeoutSeconds == 0 {
		c.TargetTimeoutSeconds = 10
	}
	c.TargetTimeout = time.Duration(c.TargetTimeoutSeconds * float64(time.Second))

	// 通知限流（默认每秒 5 次）
	if c.NotifyRatePerSecond == 0 {
		c.NotifyRatePerSecond = 5
	}

	// API 监听地址默认值
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}

	// Postgres 连接池默认值
	for i := range c.Databases {
		db := &c.Databases[i]
		if db.Type != "postgres" {
			continue
		}
		if db.Postgres.Port == 0 {
			db.Postgres.Port = 5432
		}
		if db.Postgres.SSLMode == "" {
			db.Postgres.SSLMode = "disable"
		}
		if db.Postgres.MaxOpenConns == 0 {
			db.Postgres.MaxOpenConns = 10
		}
		if db.Postgres.MaxIdleConns == 0 {
			db.Postgres.MaxIdleConns = 2
		}
	}

	return nil
}

// validate 验证配置，任何错误都会让启动失败
func (c *AppConfig) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("services 不能为空")
	}
	seen := make(map[string]bool, len(c.Services))
	for _, s := range c.Services {
		name := strings.TrimSpace(s)
		if name == "" {
			return fmt.Errorf("services 中存在空服务名")
		}
		if seen[name] {
			return fmt.Errorf("services 中存在重复服务名: %s", name)
		}
		seen[name] = true
	}

	if c.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("scan_interval_minutes 必须 > 0，当前值: %g", c.ScanIntervalMinutes)
	}
	if c.AlertThreshold < 1 {
		return fmt.Errorf("alert_threshold 必须 >= 1，当前值: %d", c.AlertThreshold)
	}
	if c.AlertWindowHours <= 0 {
		return fmt.Errorf("alert_window_hours 必须 > 0，当前值: %g", c.AlertWindowHours)
	}
	if c.RetentionHours < 0 {
		return fmt.Errorf("retention_hours 必须 >= 0，当前值: %g", c.RetentionHours)
	}
	if c.RealertIntervalMinutes < 0 {
		return fmt.Errorf("realert_interval_minutes 必须 >= 0，当前值: %g", c.RealertIntervalMinutes)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency 必须 >= 1，当前值: %d", c.MaxConcurrency)
	}

	for i, db := range c.Databases {
		if !db.Enabled {
			continue
		}
		switch db.Type {
		case "postgres":
			if db.Postgres.Host == "" {
				return fmt.Errorf("databases[%d]: postgres.host 是必需的", i)
			}
			if db.Postgres.Database == "" {
				return fmt.Errorf("databases[%d]: postgres.database 是必需的", i)
			}
		case "redis":
			if db.Redis.Addr == "" {
				return fmt.Errorf("databases[%d]: redis.addr 是必需的", i)
			}
		case "sqlite":
			if db.SQLite.Path == "" {
				return fmt.Errorf("databases[%d]: sqlite.path 是必需的", i)
			}
		default:
			return fmt.Errorf("databases[%d]: 未知的存储类型: %q", i, db.Type)
		}
	}

	for i, n := range c.Notifications {
		if !n.Enabled {
			continue
		}
		switch n.Type {
		case "email":
			if n.Email.SMTPHost == "" {
				return fmt.Errorf("notifications[%d]: email.smtp_host 是必需的", i)
			}
			if n.Email.From == "" || len(n.Email.To) == 0 {
				return fmt.Errorf("notifications[%d]: email.from 和 email.to 是必需的", i)
			}
		case "slack":
			if n.Slack.WebhookURL == "" {
				return fmt.Errorf("notifications[%d]: slack.webhook_url 是必需的", i)
			}
		case "teams":
			if n.Teams.WebhookURL == "" {
				return fmt.Errorf("notifications[%d]: teams.webhook_url 是必需的", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: 未知的通知类型: %q", i, n.Type)
		}
	}

	return nil
}
