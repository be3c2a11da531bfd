// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/di"
	"github.com/wannabe/moviestudio/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	movieService, ok := container.Get("movie").(*services.MovieService)
	if !ok {
		return nil, fmt.Errorf("电影生成服务未正确初始化")
	}

	ttsService, ok := container.Get("tts").(*services.TTSService)
	if !ok {
		return nil, fmt.Errorf("配音服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	// 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(movieService, ttsService, progressService, cfg)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	r := gin.Default()

	// 启用CORS与请求追踪
	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())

	// 生成的媒体文件（音频/音乐/视频/成片）直接静态托管
	r.Static("/media", cfg.MediaDir)

	// WebSocket 进度订阅
	r.GET("/ws/tasks/:id", handler.TaskProgressWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// 电影生成：同步与异步两条入口，生成端点单独收紧限流
		moviesGroup := api.Group("/movies")
		{
			moviesGroup.POST("", GenerationRateLimit(), handler.GenerateMovie)
			moviesGroup.POST("/async", GenerationRateLimit(), handler.GenerateMovieAsync)
			moviesGroup.POST("/test-video", GenerationRateLimit(), handler.TestVideo)
		}

		// 异步任务状态查询
		api.GET("/tasks/:id", handler.GetTaskStatus)

		// 音色目录
		api.GET("/voices", handler.GetVoices)

		// 健康检查
		api.GET("/health", handler.HealthCheck)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
