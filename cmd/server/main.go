// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/api"
	"github.com/wannabe/moviestudio/internal/app"
	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/di"
)

func main() {
	// 1. 初始化日志
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	logrus.Info("🚀 启动电影生成服务器...")

	// 2. 加载配置
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if cfg.DebugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.Infof("✅ 配置加载完成，端口: %s", cfg.Port)

	// 3. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(cfg); err != nil {
		logrus.Fatalf("初始化服务失败: %v", err)
	}

	// 4. 服务健康检查
	if err := performHealthCheck(); err != nil {
		logrus.Warnf("⚠️ 服务健康检查警告: %v", err)
	}

	// 5. 设置路由（只获取服务，不创建）
	router, err := api.SetupRouter(cfg)
	if err != nil {
		logrus.Fatalf("❌ 设置路由失败: %v", err)
	}
	logrus.Info("✅ 路由设置完成")

	// 6. 启动服务器
	logrus.Infof("🌐 服务器启动在端口 %s", cfg.Port)
	logrus.Infof("🔗 生成入口: http://localhost:%s/api/movies", cfg.Port)
	logrus.Infof("🔗 健康检查: http://localhost:%s/api/health", cfg.Port)

	setupGracefulShutdown(router, cfg.Port)
}

// 健康检查函数
func performHealthCheck() error {
	container := di.GetContainer()

	// 检查关键服务是否已注册
	criticalServices := []string{"llm", "script", "movie", "progress", "storage"}

	for _, serviceName := range criticalServices {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	logrus.Info("✅ 服务健康检查通过")
	return nil
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 正在关闭服务器...")

	// 给定超时时间关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("❌ 服务器强制关闭: %v", err)
	}

	logrus.Info("✅ 服务器优雅关闭完成")
}
