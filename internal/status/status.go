// Package status 提供服务状态查询与重启能力
// 核心引擎只依赖这里的接口，不关心具体操作系统机制
package status

import "context"

// Status 单次观测到的服务状态
type Status int

const (
	// StatusUnknown 状态未知（检查失败或超时，不参与状态机转移）
	StatusUnknown Status = iota

	// StatusUp 服务正常运行
	StatusUp

	// StatusDown 服务不可用
	StatusDown
)

// String 返回状态的可读名称
func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}

// Source 服务状态来源
//
// CheckStatus 返回 StatusUnknown 时 err 说明原因；
// 检查失败永远不会让调用方崩溃，只会跳过本轮该服务的状态机转移。
type Source interface {
	// CheckStatus 查询指定服务当前状态
	CheckStatus(ctx context.Context, name string) (Status, error)

	// Restart 重启指定服务（可选修复能力）
	Restart(ctx context.Context, name string) error
}
