// internal/services/llm_service.go
package services

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/llm"
)

var providerDefaultModels = map[string]string{
	"openai": "gpt-5-mini",
	"google": "gemini-2.5-flash",
}

// LLMService 提供统一的大语言模型调用接口
// 提供者通过注册表按名称创建，测试可直接替换provider字段
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	defaultModel  string
	isReady       bool
}

// NewLLMService 创建并初始化LLM服务
func NewLLMService(providerName string, config map[string]string) (*LLMService, error) {
	provider, err := llm.GetProvider(providerName, config)
	if err != nil {
		return nil, err
	}

	model := config["default_model"]
	if model == "" {
		model = providerDefaultModels[providerName]
	}

	logrus.WithFields(logrus.Fields{
		"provider": providerName,
		"model":    model,
	}).Info("🤖 LLM服务初始化完成")

	return &LLMService{
		provider:     provider,
		providerName: providerName,
		defaultModel: model,
		isReady:      true,
	}, nil
}

// NewEmptyLLMService 创建未配置密钥的占位服务
// 服务可以无密钥启动，生成请求会得到明确的未就绪错误
func NewEmptyLLMService() *LLMService {
	return &LLMService{isReady: false}
}

// SetProvider 替换底层提供者（测试用）
func (s *LLMService) SetProvider(provider llm.Provider, name string) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = name
	s.isReady = provider != nil
}

// IsReady 服务是否已配置可用的提供者
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.isReady && s.provider != nil
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.providerName
}

// Complete 执行一次文本补全，并把提供者错误归类为应用错误
func (s *LLMService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.providerMutex.RLock()
	provider := s.provider
	model := s.defaultModel
	s.providerMutex.RUnlock()

	if provider == nil {
		return "", apperrors.NewUnauthorizedError("LLM服务未配置API密钥", nil)
	}

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       userPrompt,
		SystemPrompt: systemPrompt,
		Model:        model,
	})
	if err != nil {
		return "", classifyLLMError(err)
	}

	return resp.Text, nil
}

// classifyLLMError 按厂商错误文本归类：配额/限流/鉴权/其他
func classifyLLMError(err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "insufficient_quota"):
		return apperrors.NewRateLimitedError("API配额已用尽，请稍后再试", err)
	case strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return apperrors.NewRateLimitedError("请求过于频繁，请稍后再试", err)
	case strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized"):
		return apperrors.NewUnauthorizedError("API密钥无效，请检查配置", err)
	default:
		return apperrors.NewScriptGenerationError("LLM调用失败", err)
	}
}
