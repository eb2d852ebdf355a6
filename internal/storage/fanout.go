package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"servicedoctor/internal/events"
	"servicedoctor/internal/logger"
)

// Fanout 多后端事件扇出
//
// 一条事件写入所有后端；每个后端独立超时、独立成败，
// 结果按后端标识聚合返回。配置中的第一个后端为主后端，
// 负责回答查询（其余后端只做冗余写入）。
type Fanout struct {
	backends []Backend
	timeout  time.Duration
}

// NewFanout 创建扇出器（至少需要一个后端）
func NewFanout(backends []Backend, timeout time.Duration) (*Fanout, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("至少需要配置一个启用的存储后端")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("后端操作超时必须 > 0，当前值: %v", timeout)
	}
	return &Fanout{backends: backends, timeout: timeout}, nil
}

// Write 将一条事件写入所有后端，返回每个后端的独立结果
//
// 并发写入，每个后端有独立的超时 context；
// 本方法等待所有后端完成后才返回，不会留下游离的写入 goroutine。
func (f *Fanout) Write(ctx context.Context, ev events.Event) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(f.backends))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, b := range f.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()

			opCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			err := b.Write(opCtx, ev)
			out := Outcome{
				Backend: b.Name(),
				OK:      err == nil,
				Elapsed: time.Since(start),
			}
			if err != nil {
				out.Err = err.Error()
				logger.Warn("storage", "事件写入失败",
					"backend", b.Name(), "service", ev.Service, "type", string(ev.Type), "error", err)
			}

			mu.Lock()
			outcomes[b.Name()] = out
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	if !AnyOK(outcomes) {
		logger.Error("storage", "事件写入在所有后端均失败",
			"service", ev.Service, "type", string(ev.Type), "backends", len(f.backends))
	}

	return outcomes
}

// AnyOK 判断聚合结果中是否至少有一个后端成功
func AnyOK(outcomes map[string]Outcome) bool {
	for _, out := range outcomes {
		if out.OK {
			return true
		}
	}
	return false
}

// QueryRecent 从主后端查询某服务自 since 以来的事件
func (f *Fanout) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	opCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return f.backends[0].QueryRecent(opCtx, service, since)
}

// Primary 返回主后端标识
func (f *Fanout) Primary() string {
	return f.backends[0].Name()
}

// PruneOlderThan 在所有后端上执行保留期清理（尽力而为）
//
// 单个后端清理失败只记日志，不影响其他后端。
func (f *Fanout) PruneOlderThan(ctx context.Context, cutoff time.Time) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(f.backends))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, b := range f.backends {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()

			opCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			deleted, err := b.PruneOlderThan(opCtx, cutoff)
			out := Outcome{
				Backend: b.Name(),
				OK:      err == nil,
				Elapsed: time.Since(start),
			}
			if err != nil {
				out.Err = err.Error()
				logger.Warn("storage", "保留期清理失败", "backend", b.Name(), "error", err)
			} else if deleted > 0 {
				logger.Info("storage", "保留期清理完成",
					"backend", b.Name(), "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
			}

			mu.Lock()
			outcomes[b.Name()] = out
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	return outcomes
}

// Close 关闭所有后端，返回最后一个遇到的错误
func (f *Fanout) Close() error {
	var last error
	for _, b := range f.backends {
		if err := b.Close(); err != nil {
			logger.Warn("storage", "关闭后端失败", "backend", b.Name(), "error", err)
			last = err
		}
	}
	return last
}
