// internal/services/music_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/models"
	"github.com/wannabe/moviestudio/internal/storage"
)

// MusicService 调用MusicGPT生成整部电影的音乐床
// 所有失败都折叠为 MusicResult{Success:false}：没有音乐不阻塞成片
type MusicService struct {
	client  *http.Client
	storage *storage.MediaStorage

	apiKey       string
	baseURL      string
	initialDelay time.Duration
	pollInterval time.Duration
	maxAttempts  int
}

// NewMusicService 创建音乐生成服务
func NewMusicService(cfg *config.Config, mediaStorage *storage.MediaStorage) *MusicService {
	return &MusicService{
		client:       &http.Client{Timeout: 60 * time.Second},
		storage:      mediaStorage,
		apiKey:       cfg.MusicAPIKey,
		baseURL:      cfg.MusicBaseURL,
		initialDelay: cfg.MusicInitialDelay,
		pollInterval: cfg.MusicPollInterval,
		maxAttempts:  cfg.MusicPollMaxAttempts,
	}
}

// submitResponse 生成请求的响应
// 两种完成路径：直接给出下载地址，或给出需要轮询的conversion ID
type submitResponse struct {
	ConversionID  string `json:"conversion_id"`
	ConversionID2 string `json:"conversion_id_2"`
	AudioURL      string `json:"audio_url"`
	AudioURL2     string `json:"audio_url_2"`
}

// pollResponse 状态查询的响应
type pollResponse struct {
	Success    bool `json:"success"`
	Conversion struct {
		Status   string  `json:"status"` // PROCESSING / COMPLETED / FAILED
		AudioURL string  `json:"audio_url"`
		Duration float64 `json:"duration"`
	} `json:"conversion"`
}

// GenerateMusic 提交一个音乐生成任务并取回音频文件
func (s *MusicService) GenerateMusic(ctx context.Context, prompt, musicStyle string) *models.MusicResult {
	result := &models.MusicResult{Style: musicStyle}

	logrus.WithFields(logrus.Fields{
		"style":  musicStyle,
		"prompt": truncate(prompt, 50),
	}).Info("🎵 开始生成音乐")

	// 按传播策略音乐失败折叠为数据：分类错误只进result.Error，不向上抛
	fail := func(message string, cause error) *models.MusicResult {
		appErr := apperrors.NewMusicGenerationError(message, cause)
		logrus.WithError(appErr).Warn("⚠️ 音乐生成失败，成片将没有音乐床")
		result.Error = appErr.Error()
		return result
	}

	if s.apiKey == "" {
		return fail("音乐服务未配置API密钥", nil)
	}

	submitted, err := s.submit(ctx, prompt, musicStyle)
	if err != nil {
		return fail("音乐生成提交失败", err)
	}

	// 直接下载路径：提交响应里已带音频地址
	audioURL := submitted.AudioURL
	if audioURL == "" {
		audioURL = submitted.AudioURL2
	}

	var pollMeta *pollResponse
	if audioURL == "" {
		conversionID := submitted.ConversionID
		if conversionID == "" {
			conversionID = submitted.ConversionID2
		}
		if conversionID == "" {
			return fail("音乐生成响应缺少conversion ID", nil)
		}

		audioURL, pollMeta, err = s.pollUntilReady(ctx, conversionID)
		if err != nil {
			return fail("音乐生成轮询失败", err)
		}
	}

	asset, err := s.download(ctx, audioURL)
	if err != nil {
		return fail("音乐下载失败", err)
	}
	if pollMeta != nil {
		asset.Duration = pollMeta.Conversion.Duration
		s.storage.SaveMetadata(asset.FilePath, pollMeta)
	}

	logrus.WithField("file", asset.Filename).Info("✅ 音乐生成完成")

	result.Success = true
	result.Asset = asset
	return result
}

// submit 提交生成请求
func (s *MusicService) submit(ctx context.Context, prompt, musicStyle string) (*submitResponse, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"prompt":            prompt,
		"music_style":       musicStyle,
		"lyrics":            "",
		"make_instrumental": true,
		"vocal_only":        false,
		"voice_id":          "",
		"webhook_url":       "",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/public/v1/MusicAI", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("MusicGPT API错误: %s", resp.Status)
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, fmt.Errorf("解析提交响应失败: %w", err)
	}

	return &submitted, nil
}

// pollUntilReady 固定间隔轮询直到COMPLETED，尝试次数有上限
// FAILED状态与超出尝试次数都是该任务的终态失败
func (s *MusicService) pollUntilReady(ctx context.Context, conversionID string) (string, *pollResponse, error) {
	// 先等一小段时间让服务端开始处理
	select {
	case <-time.After(s.initialDelay):
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}

	var audioURL string
	var meta *pollResponse
	attempt := 0

	operation := func() error {
		attempt++
		logrus.WithFields(logrus.Fields{
			"conversion": conversionID,
			"attempt":    fmt.Sprintf("%d/%d", attempt, s.maxAttempts),
		}).Info("🔄 查询音乐生成状态")

		polled, err := s.pollOnce(ctx, conversionID)
		if err != nil {
			return err
		}

		switch polled.Conversion.Status {
		case "COMPLETED":
			if polled.Conversion.AudioURL == "" {
				return backoff.Permanent(fmt.Errorf("任务完成但缺少音频地址"))
			}
			audioURL = polled.Conversion.AudioURL
			meta = polled
			return nil
		case "FAILED":
			return backoff.Permanent(fmt.Errorf("音乐生成任务失败"))
		default:
			return fmt.Errorf("音乐仍在处理中: %s", polled.Conversion.Status)
		}
	}

	interval := backoff.WithContext(backoff.NewConstantBackOff(s.pollInterval), ctx)
	if err := backoff.Retry(operation, backoff.WithMaxRetries(interval, uint64(s.maxAttempts-1))); err != nil {
		return "", nil, err
	}

	return audioURL, meta, nil
}

// pollOnce 查询一次任务状态
func (s *MusicService) pollOnce(ctx context.Context, conversionID string) (*pollResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/api/public/v1/byId?conversion_id="+conversionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("MusicGPT状态查询错误: %s", resp.Status)
	}

	var polled pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&polled); err != nil {
		return nil, fmt.Errorf("解析状态响应失败: %w", err)
	}

	return &polled, nil
}

// download 下载生成好的音频并落盘
func (s *MusicService) download(ctx context.Context, audioURL string) (*models.MediaAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("下载失败: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return s.storage.SaveAsset(storage.ClassMusic, "music_movie", ".mp3", data)
}

// DetermineMusicStyle 根据电影描述与音乐提示词的关键词决定风格
// 桶的顺序即优先级，首个命中的桶生效；无命中时回落到cinematic
func DetermineMusicStyle(sceneDescription, musicPrompt string) string {
	combined := strings.ToLower(sceneDescription + " " + musicPrompt)

	styleBuckets := []struct {
		style    string
		keywords []string
	}{
		{"action", []string{"action", "chase", "battle"}},
		{"romantic", []string{"romantic", "love", "tender"}},
		{"emotional", []string{"sad", "melancholy", "emotional"}},
		{"mystery", []string{"mystery", "suspense", "thriller"}},
		{"comedy", []string{"comedy", "funny", "light"}},
		{"epic", []string{"epic", "grand", "heroic"}},
		{"ambient", []string{"calm", "peaceful", "ambient"}},
	}

	for _, bucket := range styleBuckets {
		for _, keyword := range bucket.keywords {
			if strings.Contains(combined, keyword) {
				return bucket.style
			}
		}
	}

	return "cinematic"
}
