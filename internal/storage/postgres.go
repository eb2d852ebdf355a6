package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// PostgresBackend PostgreSQL 存储后端（时序事件主存储）
type PostgresBackend struct {
	name string
	pool *pgxpool.Pool
}

// NewPostgresBackend 创建 PostgreSQL 后端
func NewPostgresBackend(name string, cfg config.PostgresConfig) (*PostgresBackend, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 PostgreSQL 连接配置失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 PostgreSQL 连接池失败: %w", err)
	}

	return &PostgresBackend{name: name, pool: pool}, nil
}

// Name 返回后端标识
func (s *PostgresBackend) Name() string {
	return s.name
}

// Init 建表并检查连通性
func (s *PostgresBackend) Init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS service_events (
		id BIGSERIAL PRIMARY KEY,
		service TEXT NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		timestamp BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_service_events_service_timestamp
	ON service_events(service, timestamp DESC);
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("初始化 PostgreSQL 数据库失败: %w", err)
	}

	return nil
}

// Close 关闭连接池
func (s *PostgresBackend) Close() error {
	s.pool.Close()
	return nil
}

// Write 持久化一条事件
func (s *PostgresBackend) Write(ctx context.Context, ev events.Event) error {
	query := `
		INSERT INTO service_events (service, event_type, detail, timestamp)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query,
		ev.Service,
		string(ev.Type),
		ev.Detail,
		ev.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("写入 PostgreSQL 事件失败: %w", err)
	}

	return nil
}

// QueryRecent 查询某服务自 since 以来的事件（时间升序）
func (s *PostgresBackend) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	// DESC 取数利用索引，返回前翻转为时间升序
	query := `
		SELECT service, event_type, detail, timestamp
		FROM service_events
		WHERE service = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`

	rows, err := s.pool.Query(ctx, query, service, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("查询 PostgreSQL 事件失败: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev        events.Event
			eventType string
			ts        int64
		)
		if err := rows.Scan(&ev.Service, &eventType, &ev.Detail, &ts); err != nil {
			return nil, fmt.Errorf("扫描 PostgreSQL 事件失败: %w", err)
		}
		ev.Type = events.EventType(eventType)
		ev.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代 PostgreSQL 事件失败: %w", err)
	}

	reverseEvents(out)
	return out, nil
}

// PruneOlderThan 删除早于 cutoff 的事件
func (s *PostgresBackend) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM service_events WHERE timestamp < $1`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("清理 PostgreSQL 事件失败: %w", err)
	}
	return tag.RowsAffected(), nil
}

// reverseEvents 原地翻转事件切片
func reverseEvents(evs []events.Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}
