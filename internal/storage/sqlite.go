package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // 纯Go实现的SQLite驱动

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// SQLiteBackend SQLite 存储后端（事件以 JSON 文档形式落盘）
type SQLiteBackend struct {
	name string
	db   *sql.DB
}

// NewSQLiteBackend 创建 SQLite 后端
func NewSQLiteBackend(name string, cfg config.SQLiteConfig) (*SQLiteBackend, error) {
	// 使用WAL模式和其他参数解决并发锁问题
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite建议单个写连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteBackend{name: name, db: db}, nil
}

// Name 返回后端标识
func (s *SQLiteBackend) Name() string {
	return s.name
}

// Init 初始化数据库表
//
// service 与 timestamp 单独成列用于查询和清理，
// 事件完整内容保存在 doc 列（JSON），避免后续字段变化引发表迁移。
func (s *SQLiteBackend) Init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS service_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_service_events_service_timestamp
	ON service_events(service, timestamp DESC);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}

	return nil
}

// Close 关闭数据库
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Write 持久化一条事件
func (s *SQLiteBackend) Write(ctx context.Context, ev events.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	query := `
		INSERT INTO service_events (service, timestamp, doc)
		VALUES (?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, ev.Service, ev.Timestamp.Unix(), string(doc)); err != nil {
		return fmt.Errorf("写入 SQLite 事件失败: %w", err)
	}

	return nil
}

// QueryRecent 查询某服务自 since 以来的事件（时间升序）
func (s *SQLiteBackend) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	// DESC 取数利用索引，返回前翻转为时间升序
	query := `
		SELECT doc
		FROM service_events
		WHERE service = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, service, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("查询 SQLite 事件失败: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("扫描 SQLite 事件失败: %w", err)
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("反序列化 SQLite 事件失败: %w", err)
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代 SQLite 事件失败: %w", err)
	}

	reverseEvents(out)
	return out, nil
}

// PruneOlderThan 删除早于 cutoff 的事件
func (s *SQLiteBackend) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM service_events WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("清理 SQLite 事件失败: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取清理影响行数失败: %w", err)
	}

	return deleted, nil
}
