// internal/api/handlers.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/services"
)

// 参考照片上传限制
const (
	maxPhotoSize = 10 << 20 // 10MB
)

var allowedPhotoExts = []string{".jpg", ".jpeg", ".png"}

// Handler 处理API请求
type Handler struct {
	MovieService    *services.MovieService    // 电影生成协调服务
	TTSService      *services.TTSService      // 配音服务（音色目录查询）
	ProgressService *services.ProgressService // 进度跟踪服务
	Config          *config.Config            // 应用配置
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(movie *services.MovieService, tts *services.TTSService, progress *services.ProgressService, cfg *config.Config) *Handler {
	return &Handler{
		MovieService:    movie,
		TTSService:      tts,
		ProgressService: progress,
		Config:          cfg,
		Response:        NewResponseHelper(),
	}
}

// GenerateMovieRequest 电影生成请求结构（JSON载荷时使用）
type GenerateMovieRequest struct {
	Idea string `json:"idea"` // 用户的电影创意
}

// TestVideoRequest 单场景视频冒烟测试请求
type TestVideoRequest struct {
	Description string `json:"description"` // 场景描述
}

// ========================================
// 电影生成
// ========================================

// GenerateMovie 同步生成电影
// 支持两种载荷：JSON {"idea": "..."} 或 multipart表单（idea字段 + 可选photo参考照片）
func (h *Handler) GenerateMovie(c *gin.Context) {
	idea, photoPath, ok := h.parseGenerateRequest(c)
	if !ok {
		return
	}

	result, err := h.MovieService.GenerateMovie(c.Request.Context(), idea, photoPath, nil)
	if err != nil {
		h.Response.AppErrorResponse(c, err)
		return
	}

	h.Response.Success(c, result, "电影生成完成")
}

// GenerateMovieAsync 异步生成电影，立即返回任务ID
// 进度通过 GET /api/tasks/:id 轮询或 /ws/tasks/:id 订阅
func (h *Handler) GenerateMovieAsync(c *gin.Context) {
	idea, photoPath, ok := h.parseGenerateRequest(c)
	if !ok {
		return
	}

	taskID := uuid.NewString()
	tracker := h.ProgressService.CreateTracker(taskID)

	// 任务生命周期不依附请求，请求断开后继续生成
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if _, err := h.MovieService.GenerateMovie(ctx, idea, photoPath, tracker); err != nil {
			logrus.WithError(err).WithField("task_id", taskID).Error("❌ 异步电影生成失败")
		}
	}()

	h.Response.Accepted(c, gin.H{"task_id": taskID}, "电影生成任务已启动")
}

// GetTaskStatus 查询异步任务状态
func (h *Handler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	tracker, exists := h.ProgressService.GetTracker(taskID)
	if !exists {
		h.Response.Error(c, http.StatusNotFound, ErrorTaskNotFound, "任务不存在", taskID)
		return
	}

	h.Response.Success(c, tracker.Snapshot())
}

// TestVideo 单场景视频冒烟测试
// 跳过剧本生成，直接用给定描述走一遍Veo提交/轮询/下载链路
func (h *Handler) TestVideo(c *gin.Context) {
	var req TestVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "A serene mountain lake at sunrise, mist rising from the water"
	}

	result := h.MovieService.GenerateTestVideo(c.Request.Context(), description)
	if !result.Succeeded() {
		h.Response.Error(c, http.StatusInternalServerError, ErrorSceneVideo, "测试视频生成失败", result.Error)
		return
	}

	h.Response.Success(c, result, "测试视频生成完成")
}

// ========================================
// 辅助查询
// ========================================

// GetVoices 返回可用的TTS音色目录
func (h *Handler) GetVoices(c *gin.Context) {
	h.Response.Success(c, gin.H{"voices": h.TTSService.AvailableVoices()})
}

// HealthCheck 健康检查，报告各外部服务的密钥配置状态
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "Movie Generator API",
		"timestamp": time.Now().Format(time.RFC3339),
		"openai":    h.Config.OpenAIAPIKey != "",
		"google":    h.Config.GoogleAPIKey != "",
		"music":     h.Config.MusicAPIKey != "",
	})
}

// ========================================
// 请求解析
// ========================================

// parseGenerateRequest 解析电影生成请求
// multipart表单时顺带保存可选的参考照片，返回照片落盘路径
func (h *Handler) parseGenerateRequest(c *gin.Context) (idea, photoPath string, ok bool) {
	contentType := c.GetHeader("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		idea = strings.TrimSpace(c.PostForm("idea"))

		file, err := c.FormFile("photo")
		if err == nil && file != nil {
			saved, saveErr := h.savePhoto(c, file.Filename, file.Size)
			if saveErr != nil {
				h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, saveErr.Error())
				return "", "", false
			}
			if err := c.SaveUploadedFile(file, saved); err != nil {
				h.Response.Error(c, http.StatusInternalServerError, ErrorFileUploadFailed, "保存参考照片失败", err.Error())
				return "", "", false
			}
			photoPath = saved
		}
	} else {
		var req GenerateMovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "无效的请求格式", err.Error())
			return "", "", false
		}
		idea = strings.TrimSpace(req.Idea)
	}

	if idea == "" {
		h.Response.BadRequest(c, "缺少电影创意", "请求必须包含非空的idea字段")
		return "", "", false
	}

	return idea, photoPath, true
}

// savePhoto 校验参考照片并分配落盘路径
func (h *Handler) savePhoto(c *gin.Context, filename string, size int64) (string, error) {
	if size > maxPhotoSize {
		return "", fmt.Errorf("参考照片超过大小限制 (%dMB)", maxPhotoSize>>20)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(allowedPhotoExts, ext) {
		return "", fmt.Errorf("不支持的图片格式 %s，仅支持 jpg/jpeg/png", ext)
	}

	name := fmt.Sprintf("ref_%d_%s%s", time.Now().UnixMilli(),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8], ext)
	return filepath.Join(h.Config.UploadDir, name), nil
}
