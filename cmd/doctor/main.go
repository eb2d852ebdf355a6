package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"servicedoctor/internal/api"
	"servicedoctor/internal/buildinfo"
	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
	"servicedoctor/internal/logger"
	"servicedoctor/internal/notify"
	"servicedoctor/internal/scheduler"
	"servicedoctor/internal/status"
	"servicedoctor/internal/storage"
)

func main() {
	// .env 可选加载（凭据类环境变量覆盖配置文件）
	if err := godotenv.Load(); err == nil {
		logger.Info("main", "已加载 .env 文件")
	}

	logger.Info("main", "Service Doctor 启动",
		"version", buildinfo.GetVersion(),
		"git_commit", buildinfo.GetGitCommit(),
		"build_time", buildinfo.GetBuildTime())

	// 配置文件路径
	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	// 配置只在启动时加载一次，之后不可变；任何配置错误都在这里终止进程
	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("main", "无法加载配置文件", "file", configFile, "error", err)
		os.Exit(1)
	}

	logger.Info("main", "配置加载完成",
		"services", len(cfg.Services),
		"scan_interval", cfg.ScanInterval,
		"alert_threshold", cfg.AlertThreshold,
		"alert_window", cfg.AlertWindow,
		"databases", len(cfg.EnabledDatabases()),
		"notifications", len(cfg.EnabledNotifications()),
		"remediation", cfg.Remediation.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化存储后端（任一后端不可达即启动失败）
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	backends, err := storage.Build(initCtx, cfg.EnabledDatabases())
	initCancel()
	if err != nil {
		logger.Error("main", "初始化存储失败", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewFanout(backends, cfg.TargetTimeout)
	if err != nil {
		logger.Error("main", "创建存储扇出失败", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("main", "存储已就绪", "backends", len(backends), "primary", store.Primary())

	// 通知通道
	channels, err := notify.Build(cfg.EnabledNotifications())
	if err != nil {
		logger.Error("main", "初始化通知通道失败", "error", err)
		os.Exit(1)
	}

	notifier, err := notify.NewFanout(channels, cfg.TargetTimeout, cfg.NotifyRatePerSecond)
	if err != nil {
		logger.Error("main", "创建通知扇出失败", "error", err)
		os.Exit(1)
	}
	if len(channels) == 0 {
		logger.Warn("main", "未配置任何通知通道，告警只落库不外发")
	}

	// 告警状态机
	engine, err := events.NewEngine(events.EngineConfig{
		Threshold:        cfg.AlertThreshold,
		Window:           cfg.AlertWindow,
		RealertInterval:  cfg.RealertInterval,
		RecordHeartbeats: cfg.RecordHeartbeats,
	})
	if err != nil {
		logger.Error("main", "创建告警引擎失败", "error", err)
		os.Exit(1)
	}

	// 巡检调度器
	doctor, err := scheduler.New(cfg, status.NewSystemdSource(), engine, store, notifier)
	if err != nil {
		logger.Error("main", "创建调度器失败", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		doctor.Run(ctx)
	}()

	// 监听中断信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 观测 API（可选）
	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg, engine, store)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("main", "HTTP服务器错误", "error", err)
				cancel()
				sigChan <- syscall.SIGTERM
			}
		}()
	}

	// 等待中断信号
	<-sigChan
	logger.Info("main", "收到关闭信号，正在优雅退出")

	// 先停调度器：等待进行中的一轮巡检（含写入和通知）完成，
	// 再取消 context，避免截断进行中的写入
	doctor.Stop()
	wg.Wait()
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("main", "HTTP服务器关闭错误", "error", err)
		}
	}

	logger.Info("main", "服务已安全退出")
}
