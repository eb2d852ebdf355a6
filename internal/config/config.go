package config

import "time"

// AppConfig 应用配置
// 启动时加载一次，之后不可变（配置错误仅在启动阶段致命）
type AppConfig struct {
	// ===== 巡检配置 =====

	// 被监控的服务名列表（systemd unit 名）
	Services []string `yaml:"services"`

	// 巡检间隔（分钟，支持小数，例如 0.5 表示 30 秒）
	ScanIntervalMinutes float64 `yaml:"scan_interval_minutes"`

	// 解析后的巡检间隔（内部使用，不序列化）
	ScanInterval time.Duration `yaml:"-"`

	// 单次状态检查的超时时间（秒，默认 10）
	CheckTimeoutSeconds float64 `yaml:"check_timeout_seconds"`

	// 解析后的检查超时（内部使用）
	CheckTimeout time.Duration `yaml:"-"`

	// 并发检查/写入的最大 goroutine 数（默认 10）
	MaxConcurrency int `yaml:"max_concurrency"`

	// ===== 告警策略 =====

	// 触发告警所需的窗口内失败次数（>= 1）
	AlertThreshold int `yaml:"alert_threshold"`

	// 滑动窗口长度（小时，支持小数）
	AlertWindowHours float64 `yaml:"alert_window_hours"`

	// 解析后的窗口长度（内部使用）
	AlertWindow time.Duration `yaml:"-"`

	// 持续告警期间的重复通知间隔（分钟，0 表示恢复前不再通知）
	RealertIntervalMinutes float64 `yaml:"realert_interval_minutes"`

	// 解析后的重复通知间隔（内部使用）
	RealertInterval time.Duration `yaml:"-"`

	// 健康状态下是否记录心跳事件（默认 false）
	RecordHeartbeats bool `yaml:"record_heartbeats"`

	// ===== 数据保留 =====

	// 事件保留时长（小时，0 表示禁用清理）
	RetentionHours float64 `yaml:"retention_hours"`

	// 解析后的保留时长（内部使用）
	Retention time.Duration `yaml:"-"`

	// 清理任务执行间隔（分钟，默认 60）
	PruneIntervalMinutes float64 `yaml:"prune_interval_minutes"`

	// 解析后的清理间隔（内部使用）
	PruneInterval time.Duration `yaml:"-"`

	// ===== 目标侧超时 =====

	// 单个后端写入/单个通道发送的超时时间（秒，默认 10）
	TargetTimeoutSeconds float64 `yaml:"target_timeout_seconds"`

	// 解析后的目标超时（内部使用）
	TargetTimeout time.Duration `yaml:"-"`

	// ===== 通知限流 =====

	// 出站通知限流（每秒次数，默认 5）
	NotifyRatePerSecond float64 `yaml:"notify_rate_per_second"`

	// ===== 修复策略 =====

	// 服务不可用时的自动修复配置
	Remediation RemediationConfig `yaml:"remediation"`

	// ===== 存储目标 =====

	// 存储后端列表（允许同类型多个条目，每个条目独立生效）
	Databases []DatabaseConfig `yaml:"databases"`

	// ===== 通知目标 =====

	// 通知通道列表（允许同类型多个条目，每个条目独立生效）
	Notifications []NotificationConfig `yaml:"notifications"`

	// ===== 观测 API =====

	// 只读 HTTP API 配置（默认禁用）
	API APIConfig `yaml:"api"`
}

// RemediationConfig 自动修复配置
// 启用后，检测到服务不可用时会尝试一次 restart，结果记入事件 detail
type RemediationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DatabaseConfig 单个存储后端条目
type DatabaseConfig struct {
	Type    string `yaml:"type"` // "postgres"、"redis" 或 "sqlite"
	Enabled bool   `yaml:"enabled"`

	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password" json:"-"` // 不输出到 JSON
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db"`
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path"` // 数据库文件路径
}

// NotificationConfig 单个通知通道条目
type NotificationConfig struct {
	Type    string `yaml:"type"` // "email"、"slack" 或 "teams"
	Enabled bool   `yaml:"enabled"`

	Email EmailConfig   `yaml:"email"`
	Slack WebhookConfig `yaml:"slack"`
	Teams WebhookConfig `yaml:"teams"`
}

// EmailConfig SMTP 邮件配置
type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password" json:"-"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// WebhookConfig Webhook 通道配置（Slack / Teams）
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url" json:"-"`
}

// APIConfig 只读观测 API 配置
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // 监听地址，如 :8080
}

// EnabledDatabases 返回启用的存储后端条目（保持配置顺序）
func (c *AppConfig) EnabledDatabases() []DatabaseConfig {
	out := make([]DatabaseConfig, 0, len(c.Databases))
	for _, db := range c.Databases {
		if db.Enabled {
			out = append(out, db)
		}
	}
	return out
}

// EnabledNotifications 返回启用的通知通道条目（保持配置顺序）
func (c *AppConfig) EnabledNotifications() []NotificationConfig {
	out := make([]NotificationConfig, 0, len(c.Notifications))
	for _, n := range c.Notifications {
		if n.Enabled {
			out = append(out, n)
		}
	}
	return out
}
