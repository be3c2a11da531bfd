// internal/services/tts_service.go
package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/models"
	"github.com/wannabe/moviestudio/internal/storage"
)

// 语速假设：150词/分钟，用于估算台词音频时长
const wordsPerMinute = 150

// speechAPI 语音合成能力接口，*openai.Client 直接满足
type speechAPI interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// VoiceInfo 可用音色描述
type VoiceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TTSService 把台词文本转成语音文件
type TTSService struct {
	client  speechAPI
	storage *storage.MediaStorage
	model   string
}

// NewTTSService 创建语音合成服务
func NewTTSService(cfg *config.Config, mediaStorage *storage.MediaStorage) *TTSService {
	var client speechAPI
	if cfg.OpenAIAPIKey != "" {
		client = openai.NewClient(cfg.OpenAIAPIKey)
	}

	return &TTSService{
		client:  client,
		storage: mediaStorage,
		model:   cfg.TTSModel,
	}
}

// NewTTSServiceWithClient 注入自定义客户端（测试用）
func NewTTSServiceWithClient(client speechAPI, mediaStorage *storage.MediaStorage, model string) *TTSService {
	return &TTSService{
		client:  client,
		storage: mediaStorage,
		model:   model,
	}
}

// GenerateSpeech 为一条台词生成语音
// 失败记录在结果的Error字段里，不向上抛出——单条台词失败不中断整部电影
func (s *TTSService) GenerateSpeech(ctx context.Context, line models.DialogueLine) models.DialogueResult {
	result := models.DialogueResult{DialogueLine: line}

	voice := SelectVoice(line.Description)
	result.Voice = voice

	logrus.WithFields(logrus.Fields{
		"scene":    line.SceneIndex,
		"dialogue": line.DialogueIndex,
		"voice":    voice,
	}).Info("🔊 生成台词语音")

	if s.client == nil {
		result.Error = "TTS服务未配置API密钥"
		return result
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.SpeechVoice(voice),
		Input:          line.Dialogue,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          1.0,
	})
	if err != nil {
		result.Error = fmt.Sprintf("语音合成失败: %v", err)
		return result
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		result.Error = fmt.Sprintf("读取语音数据失败: %v", err)
		return result
	}

	asset, err := s.storage.SaveAsset(storage.ClassAudio, "audio", ".mp3", data)
	if err != nil {
		result.Error = fmt.Sprintf("保存语音文件失败: %v", err)
		return result
	}

	// 时长估算只是调度提示，from词数推算，不与实际解码时长比对
	asset.Duration = EstimateDuration(line.Dialogue)
	result.Audio = asset

	return result
}

// SelectVoice 根据声音描述选择音色，大小写不敏感的关键词匹配
// 优先级固定：男声→alloy，女声→nova，儿童→echo，旁白/低沉→onyx，默认alloy
func SelectVoice(description string) string {
	desc := strings.ToLower(description)

	switch {
	case strings.Contains(desc, "male") || strings.Contains(desc, "man") || strings.Contains(desc, "guy"):
		return "alloy"
	case strings.Contains(desc, "female") || strings.Contains(desc, "woman") || strings.Contains(desc, "girl"):
		return "nova"
	case strings.Contains(desc, "child") || strings.Contains(desc, "kid") || strings.Contains(desc, "young"):
		return "echo"
	case strings.Contains(desc, "narrator") || strings.Contains(desc, "story") || strings.Contains(desc, "deep"):
		return "onyx"
	default:
		return "alloy"
	}
}

// EstimateDuration 按150词/分钟估算口播秒数，下限1秒
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	seconds := math.Round(float64(words) / wordsPerMinute * 60)
	return math.Max(1, seconds)
}

// AvailableVoices 返回可用音色列表
func (s *TTSService) AvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "alloy", Name: "Alloy", Description: "Neutral, balanced voice"},
		{ID: "echo", Name: "Echo", Description: "Warm, friendly voice"},
		{ID: "fable", Name: "Fable", Description: "Storytelling voice"},
		{ID: "onyx", Name: "Onyx", Description: "Deep, authoritative voice"},
		{ID: "nova", Name: "Nova", Description: "Clear, expressive voice"},
		{ID: "shimmer", Name: "Shimmer", Description: "Bright, energetic voice"},
	}
}
