package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaopang/compareai/internal/adapter"
	"github.com/xiaopang/compareai/internal/api"
	"github.com/xiaopang/compareai/internal/config"
	"github.com/xiaopang/compareai/internal/core"
	"github.com/xiaopang/compareai/internal/logger"
	"github.com/xiaopang/compareai/internal/store"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	log.Printf("Config loaded from %s (%d models)", *configPath, len(cfg.Models))

	// 初始化存储
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	// 模型注册表：按配置填表，新增模型只需加一个表项
	registry := adapter.NewRegistryFromConfig(cfg.Models)
	log.Printf("Adapter registry initialized: %v", registry.IDs())

	// 准确性评审
	judge := adapter.NewJudge(cfg.Judge)

	// 准入闸门（限流 + 每日配额）
	gate := core.NewGate(cfg.Limits)
	defer gate.Stop()

	// 后端就绪监控
	monitor := core.NewMonitor(cfg.Models)
	monitor.Start()
	defer monitor.Stop()

	// 流式对比编排器
	orch := core.NewOrchestrator(registry, judge, gate, db, cfg)

	// 过期记录清理
	go cleanLogsLoop(db, cfg.Logging.RetentionDays)

	// 设置路由
	streamHandler := api.NewStreamHandler(orch, judge)
	systemHandler := api.NewSystemHandler(monitor)
	adminHandler := api.NewAdminHandler(db)
	r := api.SetupRouter(streamHandler, systemHandler, adminHandler)

	// 使用 http.Server 以支持 Graceful Shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 创建一个 context，监听 SIGINT / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 在 goroutine 中启动 HTTP server
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("CompareAI starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	// 等待信号或服务器错误
	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received, draining connections...")
	}

	// 给在途流式请求 15 秒的时间完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Server stopped gracefully")
}

// cleanLogsLoop 每日清理一次过期结算记录
func cleanLogsLoop(db *store.Store, retentionDays int) {
	clean := func() {
		if n, err := db.CleanOldLogs(retentionDays); err != nil {
			logger.Warn("log cleanup failed", "error", err.Error())
		} else if n > 0 {
			logger.Info("cleaned old comparison logs", "removed", n)
		}
	}

	clean()
	ticker := time.NewTicker(24 * time.Hour)
	for range ticker.C {
		clean()
	}
}
