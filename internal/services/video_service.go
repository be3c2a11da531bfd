// internal/services/video_service.go
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/models"
	"github.com/wannabe/moviestudio/internal/storage"
)

// 提示词低于该长度时追加通用的画面丰富度修饰
const minPromptLength = 100

// veoClient 视频生成能力接口，生产实现包装 *genai.Client，测试注入假实现
type veoClient interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// genaiVeoClient 基于genai SDK的生产实现
type genaiVeoClient struct {
	client *genai.Client
}

func (c *genaiVeoClient) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return c.client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (c *genaiVeoClient) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return c.client.Operations.GetVideosOperation(ctx, op, nil)
}

// VideoService 为每个场景生成视频片段（Veo）
// 提交遇到限流按递增退避重试；提交成功后定间隔轮询直到完成或超出尝试上限
type VideoService struct {
	veo        veoClient
	storage    *storage.MediaStorage
	httpClient *http.Client

	apiKey        string
	model         string
	pollInterval  time.Duration
	maxAttempts   int
	submitRetries int
	backoffStep   time.Duration
}

// NewVideoService 创建视频生成服务
func NewVideoService(cfg *config.Config, mediaStorage *storage.MediaStorage) (*VideoService, error) {
	s := &VideoService{
		storage:       mediaStorage,
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
		apiKey:        cfg.GoogleAPIKey,
		model:         cfg.VideoModel,
		pollInterval:  cfg.VideoPollInterval,
		maxAttempts:   cfg.VideoPollMaxAttempts,
		submitRetries: cfg.VideoSubmitRetries,
		backoffStep:   cfg.VideoBackoffStep,
	}

	if cfg.GoogleAPIKey != "" {
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  cfg.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("创建Veo客户端失败: %w", err)
		}
		s.veo = &genaiVeoClient{client: client}
		logrus.WithField("model", cfg.VideoModel).Info("🔑 Veo客户端初始化完成")
	}

	return s, nil
}

// NewVideoServiceWithClient 注入自定义Veo客户端（测试用）
func NewVideoServiceWithClient(veo veoClient, mediaStorage *storage.MediaStorage, cfg *config.Config) *VideoService {
	return &VideoService{
		veo:           veo,
		storage:       mediaStorage,
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
		apiKey:        cfg.GoogleAPIKey,
		model:         cfg.VideoModel,
		pollInterval:  cfg.VideoPollInterval,
		maxAttempts:   cfg.VideoPollMaxAttempts,
		submitRetries: cfg.VideoSubmitRetries,
		backoffStep:   cfg.VideoBackoffStep,
	}
}

// GenerateSceneVideo 为一个场景生成视频
// 任何失败（提交重试耗尽、轮询超时、下载失败）都记录在结果里，
// 不影响其他场景，也不阻止流水线用已成功的场景继续合成
func (s *VideoService) GenerateSceneVideo(ctx context.Context, scene models.Scene, continuity *models.ContinuityProfile) models.SceneVideoResult {
	result := models.SceneVideoResult{
		SceneIndex: scene.Index,
		SceneTitle: scene.Title,
	}

	prompt := CreateCinematicPrompt(scene.Description, scene.Title, scene.Dialogues, continuity)
	result.Prompt = prompt

	logrus.WithFields(logrus.Fields{
		"scene": scene.Index,
		"title": scene.Title,
	}).Info("🎬 开始生成场景视频")

	if s.veo == nil {
		result.Error = "视频服务未配置API密钥"
		return result
	}

	op, err := s.submitWithRetry(ctx, prompt, continuity)
	if err != nil {
		result.Error = apperrors.NewSceneVideoError(
			fmt.Sprintf("场景%d视频提交失败", scene.Index), err).Error()
		return result
	}

	finalOp, err := s.pollOperation(ctx, scene.Index, op)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	asset, err := s.downloadVideo(ctx, scene, prompt, finalOp)
	if err != nil {
		result.Error = apperrors.NewSceneVideoError(
			fmt.Sprintf("场景%d视频下载失败", scene.Index), err).Error()
		return result
	}

	logrus.WithFields(logrus.Fields{
		"scene": scene.Index,
		"file":  asset.Filename,
	}).Info("✅ 场景视频生成完成")

	result.Video = asset
	return result
}

// submitWithRetry 提交生成任务
// 只对限流（429/RESOURCE_EXHAUSTED）重试，退避时长递增：step、2*step、3*step
func (s *VideoService) submitWithRetry(ctx context.Context, prompt string, continuity *models.ContinuityProfile) (*genai.GenerateVideosOperation, error) {
	image, err := s.referenceImage(continuity)
	if err != nil {
		// 参考图读取失败降级为纯文本提交
		logrus.WithError(err).Warn("⚠️ 参考图读取失败，改用纯文本生成")
		image = nil
	}

	for attempt := 0; ; attempt++ {
		op, err := s.veo.GenerateVideos(ctx, s.model, prompt, image, nil)
		if err == nil {
			return op, nil
		}

		if attempt >= s.submitRetries || !isRateLimited(err) {
			return nil, err
		}

		wait := time.Duration(attempt+1) * s.backoffStep
		logrus.WithFields(logrus.Fields{
			"wait":    wait,
			"attempt": attempt + 1,
		}).Warn("⚠️ 视频提交被限流，退避后重试")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pollOperation 定间隔轮询任务状态，尝试次数有上限
func (s *VideoService) pollOperation(ctx context.Context, sceneIndex int, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	attempt := 0

	operation := func() error {
		attempt++
		logrus.WithFields(logrus.Fields{
			"scene":   sceneIndex,
			"attempt": fmt.Sprintf("%d/%d", attempt, s.maxAttempts),
		}).Info("⏳ 等待视频生成")

		polled, err := s.veo.GetVideosOperation(ctx, op)
		if err != nil {
			// 状态查询出错继续轮询，任务可能仍在推进
			return fmt.Errorf("查询任务状态失败: %w", err)
		}
		op = polled

		if !op.Done {
			return fmt.Errorf("视频仍在生成中")
		}
		return nil
	}

	interval := backoff.WithContext(backoff.NewConstantBackOff(s.pollInterval), ctx)
	if err := backoff.Retry(operation, backoff.WithMaxRetries(interval, uint64(s.maxAttempts-1))); err != nil {
		return nil, apperrors.NewTimeoutError(
			fmt.Sprintf("场景%d视频生成超时（%d次尝试后）", sceneIndex, s.maxAttempts), err)
	}

	return op, nil
}

// downloadVideo 下载生成好的视频
// 优先使用响应内联的视频字节；否则用带密钥的HTTP请求手动拉取
func (s *VideoService) downloadVideo(ctx context.Context, scene models.Scene, prompt string, op *genai.GenerateVideosOperation) (*models.MediaAsset, error) {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("任务响应里没有视频引用")
	}

	video := op.Response.GeneratedVideos[0].Video

	var data []byte
	switch {
	case len(video.VideoBytes) > 0:
		data = video.VideoBytes
	case video.URI != "":
		fetched, err := s.fetchVideo(ctx, video.URI)
		if err != nil {
			return nil, err
		}
		data = fetched
	default:
		return nil, fmt.Errorf("视频引用既无字节也无URI")
	}

	asset, err := s.storage.SaveAsset(storage.ClassVideo,
		fmt.Sprintf("video_scene_%d", scene.Index), ".mp4", data)
	if err != nil {
		return nil, err
	}

	s.storage.SaveMetadata(asset.FilePath, map[string]interface{}{
		"scene_index":   scene.Index,
		"scene_title":   scene.Title,
		"prompt":        prompt,
		"download_time": time.Now().UTC().Format(time.RFC3339),
	})

	return asset, nil
}

// fetchVideo 手动下载路径：带API密钥请求视频URI
func (s *VideoService) fetchVideo(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("视频下载失败: %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// referenceImage 读取参考照片用于图生视频，没有照片时返回nil
func (s *VideoService) referenceImage(continuity *models.ContinuityProfile) (*genai.Image, error) {
	if continuity == nil || continuity.ReferenceImage == "" {
		return nil, nil
	}

	data, err := os.ReadFile(continuity.ReferenceImage)
	if err != nil {
		return nil, err
	}

	mimeType := "image/jpeg"
	if strings.EqualFold(filepath.Ext(continuity.ReferenceImage), ".png") {
		mimeType = "image/png"
	}

	return &genai.Image{
		ImageBytes: data,
		MIMEType:   mimeType,
	}, nil
}

// isRateLimited 识别限流类错误
func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// CreateCinematicPrompt 构建场景的最终视频提示词
// 依次叠加：电影感修饰（缺少摄影语言时）、角色一致性档案、场景标题、
// 从台词派生的叙事节拍，最后对过短的提示词补充画面丰富度修饰
func CreateCinematicPrompt(sceneDescription, sceneTitle string, dialogues []models.Dialogue, continuity *models.ContinuityProfile) string {
	prompt := sceneDescription

	lower := strings.ToLower(prompt)
	if !strings.Contains(lower, "cinematic") && !strings.Contains(lower, "camera") {
		prompt = fmt.Sprintf("Cinematic shot: %s. Professional lighting, high quality, smooth camera movement.", prompt)
	}

	if continuity != nil && continuity.CharacterProfile != "" {
		prompt = fmt.Sprintf("%s Maintain character continuity: %s.", prompt, continuity.CharacterProfile)
	}

	prompt = fmt.Sprintf("%s Scene: %s.", prompt, sceneTitle)

	if len(dialogues) > 0 {
		beats := make([]string, 0, len(dialogues))
		for i, d := range dialogues {
			who := d.Name
			if who == "" {
				who = "character"
			}
			tone := d.Description
			if tone == "" {
				tone = "neutral tone"
			}
			beats = append(beats, fmt.Sprintf("beat %d: %s speaks with %s", i+1, who, tone))
		}
		prompt = fmt.Sprintf("%s Narrative beats: %s.", prompt, strings.Join(beats, "; "))
	}

	if len(prompt) < minPromptLength {
		prompt = prompt + " Rich visual details, atmospheric lighting, professional cinematography."
	}

	return prompt
}
