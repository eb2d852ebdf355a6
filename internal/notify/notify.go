// Package notify 告警通知外发层
//
// 每个启用的通道独立接收全部通知；单个通道失败不影响其他通道，
// 也不影响告警状态机和事件持久化。
package notify

import (
	"context"
	"fmt"
	"time"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// Channel 单个通知通道
type Channel interface {
	// Name 通道标识（用于日志和发送结果聚合，同一 Fanout 内唯一）
	Name() string

	// Send 发送一条通知
	Send(ctx context.Context, alert events.Alert) error
}

// Outcome 单个通道的一次发送结果
type Outcome struct {
	// Channel 通道标识
	Channel string `json:"channel"`

	// OK 发送是否成功
	OK bool `json:"ok"`

	// Err 失败原因（成功时为空）
	Err string `json:"error,omitempty"`

	// Elapsed 发送耗时
	Elapsed time.Duration `json:"elapsed"`
}

// Build 根据配置构建所有启用的通知通道
//
// 返回顺序与配置顺序一致；同类型多个条目时名称追加序号保证唯一。
func Build(cfgs []config.NotificationConfig) ([]Channel, error) {
	channels := make([]Channel, 0, len(cfgs))
	seen := make(map[string]int)

	for _, n := range cfgs {
		seen[n.Type]++
		name := n.Type
		if seen[n.Type] > 1 {
			name = fmt.Sprintf("%s-%d", n.Type, seen[n.Type])
		}

		switch n.Type {
		case "email":
			channels = append(channels, NewEmailChannel(name, n.Email))
		case "slack":
			channels = append(channels, NewSlackChannel(name, n.Slack.WebhookURL))
		case "teams":
			channels = append(channels, NewTeamsChannel(name, n.Teams.WebhookURL))
		default:
			return nil, fmt.Errorf("未知的通知类型: %s", n.Type)
		}
	}

	return channels, nil
}
