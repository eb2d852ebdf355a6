// Package scheduler 巡检调度器
//
// 按固定间隔对所有配置的服务做一轮状态检查，驱动告警状态机，
// 并把产生的事件和通知交给持久化/通知扇出层。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
	"servicedoctor/internal/logger"
	"servicedoctor/internal/notify"
	"servicedoctor/internal/status"
	"servicedoctor/internal/storage"
)

// Doctor 巡检调度器
type Doctor struct {
	cfg      *config.AppConfig
	source   status.Source
	engine   *events.Engine
	store    *storage.Fanout
	notifier *notify.Fanout

	pruning  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New 创建巡检调度器
func New(cfg *config.AppConfig, source status.Source, engine *events.Engine, store *storage.Fanout, notifier *notify.Fanout) (*Doctor, error) {
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("巡检间隔必须 > 0，当前值: %v", cfg.ScanInterval)
	}
	return &Doctor{
		cfg:      cfg,
		source:   source,
		engine:   engine,
		store:    store,
		notifier: notifier,
		stopCh:   make(chan struct{}),
	}, nil
}

// Run 启动巡检主循环（阻塞，应在 goroutine 中调用）
//
// 优雅退出：收到取消/停止信号后，等待进行中的一轮完成再返回，
// 不会留下写到一半的事件或发到一半的通知。
func (d *Doctor) Run(ctx context.Context) {
	logger.Info("scheduler", "巡检调度器启动",
		"services", len(d.cfg.Services),
		"scan_interval", d.cfg.ScanInterval,
		"max_concurrency", d.cfg.MaxConcurrency)

	scanTicker := time.NewTicker(d.cfg.ScanInterval)
	defer scanTicker.Stop()

	// 保留期清理：retention 为 0 时禁用
	var pruneCh <-chan time.Time
	if d.cfg.Retention > 0 {
		pruneTicker := time.NewTicker(d.cfg.PruneInterval)
		defer pruneTicker.Stop()
		pruneCh = pruneTicker.C
	}

	// 启动后立即执行首轮巡检
	d.runCycle(ctx)

	for {
		select {
		case <-scanTicker.C:
			d.runCycle(ctx)
		case <-pruneCh:
			d.runPrune(ctx)
		case <-ctx.Done():
			logger.Info("scheduler", "巡检调度器收到取消信号，正在退出")
			return
		case <-d.stopCh:
			logger.Info("scheduler", "巡检调度器收到停止信号，正在退出")
			return
		}
	}
}

// Stop 停止调度器（幂等，可重复调用）
func (d *Doctor) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// runCycle 执行一轮巡检
//
// 每个服务一个 goroutine，总并发受 max_concurrency 限制；
// 本轮所有服务的检查、写入、通知全部完成后才返回。
func (d *Doctor) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()

	g := &errgroup.Group{}
	g.SetLimit(d.cfg.MaxConcurrency)
	for _, name := range d.cfg.Services {
		g.Go(func() error {
			d.checkService(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug("scheduler", "本轮巡检完成",
		"services", len(d.cfg.Services), "elapsed", time.Since(start))
}

// checkService 检查单个服务并处理结果
//
// 检查失败（超时等）产出 Unknown 观测，状态机对其不做任何转移，
// 因此单个服务的检查故障永远不会污染其告警状态。
func (d *Doctor) checkService(ctx context.Context, name string) {
	checkCtx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	st, err := d.source.CheckStatus(checkCtx, name)
	cancel()

	if err != nil {
		logger.Warn("scheduler", "状态检查失败，跳过本轮该服务",
			"service", name, "error", err)
		st = status.StatusUnknown
	}

	// 检测到不可用时按配置尝试一次自动重启；
	// 重启结果只记入事件 detail，本轮观测仍按 Down 进入状态机
	// （是否真恢复由下一轮检查说了算）
	var detail string
	if st == status.StatusDown && d.cfg.Remediation.Enabled {
		detail = d.tryRestart(ctx, name)
	}

	now := time.Now().UTC()
	evs, alert := d.engine.Observe(name, st, now, detail)

	for _, ev := range evs {
		d.store.Write(ctx, ev)
	}
	if alert != nil {
		d.notifier.Send(ctx, *alert)
	}
}

// tryRestart 尝试重启服务，返回记入事件 detail 的结果描述
func (d *Doctor) tryRestart(ctx context.Context, name string) string {
	restartCtx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	defer cancel()

	if err := d.source.Restart(restartCtx, name); err != nil {
		logger.Warn("scheduler", "自动重启失败", "service", name, "error", err)
		return fmt.Sprintf("restart attempted: %v", err)
	}
	return "restart attempted: ok"
}

// runPrune 执行一轮保留期清理（防重入）
func (d *Doctor) runPrune(ctx context.Context) {
	if !d.pruning.CompareAndSwap(false, true) {
		logger.Info("scheduler", "清理任务仍在运行，跳过本轮")
		return
	}
	defer d.pruning.Store(false)

	cutoff := time.Now().UTC().Add(-d.cfg.Retention)
	d.store.PruneOlderThan(ctx, cutoff)
}
