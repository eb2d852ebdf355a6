// Package storage 事件持久化层
//
// 每个启用的后端条目独立接收全部事件；单个后端失败不影响其他后端，
// 也不影响告警状态机（状态机只依赖内存状态）。
package storage

import (
	"context"
	"fmt"
	"time"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// Backend 单个存储后端
//
// 所有方法都接受 context，超时与取消由调用方（Fanout）控制。
type Backend interface {
	// Name 后端标识（用于日志和写入结果聚合，同一 Fanout 内唯一）
	Name() string

	// Init 初始化后端（建表、连通性检查）
	Init(ctx context.Context) error

	// Write 持久化一条事件
	Write(ctx context.Context, ev events.Event) error

	// QueryRecent 查询某服务自 since 以来的事件（按时间升序）
	QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error)

	// PruneOlderThan 删除早于 cutoff 的事件，返回删除条数
	// 对不存在的数据幂等：重复调用返回 0 且不报错
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Close 关闭后端连接
	Close() error
}

// Outcome 单个后端的一次操作结果
type Outcome struct {
	// Backend 后端标识
	Backend string `json:"backend"`

	// OK 操作是否成功
	OK bool `json:"ok"`

	// Err 失败原因（成功时为空）
	Err string `json:"error,omitempty"`

	// Elapsed 操作耗时
	Elapsed time.Duration `json:"elapsed"`
}

// Build 根据配置构建并初始化所有启用的后端
//
// 返回顺序与配置顺序一致（第一个即主后端，供查询使用）。
// 同类型多个条目时名称追加序号（如 sqlite、sqlite-2）保证唯一。
// 任一后端初始化失败即整体失败：存储目标不可达属于启动期致命错误。
func Build(ctx context.Context, cfgs []config.DatabaseConfig) ([]Backend, error) {
	backends := make([]Backend, 0, len(cfgs))
	seen := make(map[string]int)

	for _, db := range cfgs {
		seen[db.Type]++
		name := db.Type
		if seen[db.Type] > 1 {
			name = fmt.Sprintf("%s-%d", db.Type, seen[db.Type])
		}

		var (
			b   Backend
			err error
		)
		switch db.Type {
		case "postgres":
			b, err = NewPostgresBackend(name, db.Postgres)
		case "redis":
			b, err = NewRedisBackend(name, db.Redis)
		case "sqlite":
			b, err = NewSQLiteBackend(name, db.SQLite)
		default:
			err = fmt.Errorf("未知的存储类型: %s", db.Type)
		}
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("创建存储后端 %s 失败: %w", name, err)
		}

		if err := b.Init(ctx); err != nil {
			_ = b.Close()
			closeAll(backends)
			return nil, fmt.Errorf("初始化存储后端 %s 失败: %w", name, err)
		}

		backends = append(backends, b)
	}

	return backends, nil
}

func closeAll(backends []Backend) {
	for _, b := range backends {
		_ = b.Close()
	}
}
