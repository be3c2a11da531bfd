// internal/app/app.go
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/di"
	"github.com/wannabe/moviestudio/internal/services"
	"github.com/wannabe/moviestudio/internal/storage"

	// 注册LLM提供商
	_ "github.com/wannabe/moviestudio/internal/llm/providers/google"
	_ "github.com/wannabe/moviestudio/internal/llm/providers/openai"
)

// InitServices 按依赖顺序初始化所有服务并注册到DI容器
// 顺序：存储 → LLM → 各生成服务 → 剪辑 → 协调服务 → 进度
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()

	// 媒体存储是大多数服务的公共依赖
	mediaStorage, err := storage.NewMediaStorage(cfg.MediaDir)
	if err != nil {
		return fmt.Errorf("初始化媒体存储失败: %w", err)
	}
	container.Register("storage", mediaStorage)

	// LLM服务：没有密钥时注册空服务，请求阶段再报错
	llmService := buildLLMService(cfg)
	container.Register("llm", llmService)

	scriptService := services.NewScriptService(llmService, cfg)
	container.Register("script", scriptService)

	ttsService := services.NewTTSService(cfg, mediaStorage)
	container.Register("tts", ttsService)

	musicService := services.NewMusicService(cfg, mediaStorage)
	container.Register("music", musicService)

	videoService, err := services.NewVideoService(cfg, mediaStorage)
	if err != nil {
		return fmt.Errorf("初始化视频服务失败: %w", err)
	}
	container.Register("video", videoService)

	editingService := services.NewEditingService(cfg, mediaStorage)
	container.Register("editing", editingService)

	movieService := services.NewMovieService(scriptService, ttsService, musicService, videoService, editingService, cfg)
	container.Register("movie", movieService)

	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	logrus.WithField("services", len(container.GetNames())).Info("✅ 所有服务初始化完成")
	return nil
}

// buildLLMService 根据配置选择LLM提供商
func buildLLMService(cfg *config.Config) *services.LLMService {
	providerConfig := map[string]string{
		"default_model": cfg.LLMModel,
	}

	switch cfg.LLMProvider {
	case "google":
		providerConfig["api_key"] = cfg.GoogleAPIKey
	default:
		providerConfig["api_key"] = cfg.OpenAIAPIKey
	}

	if providerConfig["api_key"] == "" {
		logrus.Warn("⚠️ LLM提供商未配置密钥，使用空服务")
		return services.NewEmptyLLMService()
	}

	llmService, err := services.NewLLMService(cfg.LLMProvider, providerConfig)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ LLM服务初始化失败，使用空服务")
		return services.NewEmptyLLMService()
	}

	return llmService
}
