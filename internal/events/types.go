package events

import "time"

// EventType 事件类型
type EventType string

const (
	// EventUp 服务正常（心跳或恢复后的首个正常观测）
	EventUp EventType = "up"

	// EventDown 观测到服务不可用
	EventDown EventType = "down"

	// EventAlert 窗口内失败次数达到阈值，进入告警
	EventAlert EventType = "alert"

	// EventRecovered 服务从不可用/告警状态恢复
	EventRecovered EventType = "recovered"
)

// Event 单次状态转移的不可变记录
// 由引擎生成，写入后不再修改，最终按保留策略清理
type Event struct {
	// Service 服务名（非空，来自配置）
	Service string `json:"service"`

	// Timestamp 观测时间（UTC）
	Timestamp time.Time `json:"timestamp"`

	// Type 事件类型
	Type EventType `json:"type"`

	// Detail 自由文本诊断信息（可为空，如重启结果）
	Detail string `json:"detail,omitempty"`
}

// ServiceStatus 服务的告警状态机状态
type ServiceStatus int

const (
	// StatusHealthy 最近一次观测为正常
	StatusHealthy ServiceStatus = iota

	// StatusDegraded 连续失败但未达阈值
	StatusDegraded

	// StatusAlerting 已达阈值且尚未恢复
	StatusAlerting
)

// String 返回状态的可读名称
func (s ServiceStatus) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusAlerting:
		return "alerting"
	default:
		return "healthy"
	}
}

// AlertState 单个服务的告警状态
// 由引擎独占持有，进程重启后从 Healthy 重新开始（状态不持久化）
type AlertState struct {
	// Service 服务名
	Service string `json:"service"`

	// Status 当前状态
	Status ServiceStatus `json:"status"`

	// FailureTimestamps 窗口内的失败时间戳，按时间升序
	// 每次更新都会驱逐窗口外的旧条目（滑动窗口）
	FailureTimestamps []time.Time `json:"failure_timestamps,omitempty"`

	// LastAlertSent 最近一次发送告警的时间（零值表示尚未发送）
	// 用于 Alerting 期间抑制重复通知
	LastAlertSent time.Time `json:"last_alert_sent,omitzero"`
}

// AlertKind 通知类型
type AlertKind string

const (
	// AlertFiring 告警触发通知
	AlertFiring AlertKind = "firing"

	// AlertRecovered 告警恢复通知
	AlertRecovered AlertKind = "recovered"
)

// Alert 一次需要外发的通知
type Alert struct {
	// ID 通知唯一标识
	ID string `json:"id"`

	// Service 服务名
	Service string `json:"service"`

	// Kind 通知类型（触发 / 恢复）
	Kind AlertKind `json:"kind"`

	// Failures 触发时窗口内的失败时间戳（恢复通知为空）
	Failures []time.Time `json:"failures,omitempty"`

	// TriggeredAt 通知产生时间
	TriggeredAt time.Time `json:"triggered_at"`
}
