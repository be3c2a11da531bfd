// internal/services/editing_service.go
package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/models"
	"github.com/wannabe/moviestudio/internal/storage"
)

// 音乐床混音音量，台词必须压过音乐
const musicBedVolume = 0.25

// commandRunner 外部命令执行接口，测试注入假实现
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner 生产实现，直接调用系统ffmpeg
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DialogueOffset 一条台词音频在成片时间轴上的播放位置
type DialogueOffset struct {
	FilePath string
	OffsetMs int
}

// EditingService 用ffmpeg把场景视频、台词音频、音乐床合成最终成片
// 完整滤镜图失败时降级为纯视频拼接，保证總能产出成片
type EditingService struct {
	runner  commandRunner
	storage *storage.MediaStorage

	targetDuration   time.Duration
	sceneDuration    time.Duration
	musicPlaceholder string
}

// NewEditingService 创建剪辑服务
func NewEditingService(cfg *config.Config, mediaStorage *storage.MediaStorage) *EditingService {
	return &EditingService{
		runner:           execRunner{},
		storage:          mediaStorage,
		targetDuration:   cfg.TargetDuration,
		sceneDuration:    cfg.SceneDuration,
		musicPlaceholder: cfg.MusicPlaceholderPath,
	}
}

// NewEditingServiceWithRunner 注入自定义命令执行器（测试用）
func NewEditingServiceWithRunner(runner commandRunner, mediaStorage *storage.MediaStorage, cfg *config.Config) *EditingService {
	svc := NewEditingService(cfg, mediaStorage)
	svc.runner = runner
	return svc
}

// ComputeDialogueOffsets 计算每条台词在成片时间轴上的起播时刻
// 场景内count条台词把场景时长均分为count+1段，台词落在分段点上：
// offset = sceneIndex*场景时长 + (场景内序号+1)*(场景时长/(count+1))
func ComputeDialogueOffsets(dialogues []models.DialogueResult, sceneDuration time.Duration) []DialogueOffset {
	perScene := sceneDuration.Seconds()

	// 按场景分组，只保留有可用音频的台词
	byScene := make(map[int][]models.DialogueResult)
	for _, d := range dialogues {
		if d.Succeeded() {
			byScene[d.SceneIndex] = append(byScene[d.SceneIndex], d)
		}
	}

	sceneIndexes := make([]int, 0, len(byScene))
	for idx := range byScene {
		sceneIndexes = append(sceneIndexes, idx)
	}
	sort.Ints(sceneIndexes)

	var offsets []DialogueOffset
	for _, sceneIdx := range sceneIndexes {
		group := byScene[sceneIdx]
		sort.Slice(group, func(i, j int) bool {
			return group[i].DialogueIndex < group[j].DialogueIndex
		})

		slot := perScene / float64(len(group)+1)
		for i, d := range group {
			offsetSec := float64(sceneIdx)*perScene + float64(i+1)*slot
			offsets = append(offsets, DialogueOffset{
				FilePath: d.Audio.FilePath,
				OffsetMs: int(offsetSec * 1000),
			})
		}
	}

	return offsets
}

// AssembleMovie 合成最终成片
// 成功的场景按索引排序拼接；台词按计算偏移叠加；音乐降音量垫底。
// 没有任何可用场景视频时直接报错，这是唯一的致命失败
func (s *EditingService) AssembleMovie(ctx context.Context, videos []models.SceneVideoResult, dialogues []models.DialogueResult, music *models.MusicResult) (*models.AssemblyResult, error) {
	usable := make([]models.SceneVideoResult, 0, len(videos))
	for _, v := range videos {
		if v.Succeeded() {
			usable = append(usable, v)
		}
	}
	if len(usable) == 0 {
		return nil, apperrors.NewNoScenesError("没有任何可用的场景视频，无法合成")
	}
	sort.Slice(usable, func(i, j int) bool {
		return usable[i].SceneIndex < usable[j].SceneIndex
	})

	musicPath := s.resolveMusicPath(music)
	offsets := ComputeDialogueOffsets(dialogues, s.sceneDuration)

	outPath, filename := s.storage.AllocatePath(storage.ClassFinal, "movie_final", ".mp4")

	logrus.WithFields(logrus.Fields{
		"scenes":    len(usable),
		"dialogues": len(offsets),
		"music":     musicPath != "",
	}).Info("🎞️ 开始合成最终成片")

	args := s.buildAssemblyArgs(usable, offsets, musicPath, outPath)
	if output, err := s.runner.Run(ctx, "ffmpeg", args...); err != nil {
		logrus.WithError(err).WithField("output", truncate(string(output), 500)).
			Warn("⚠️ 完整合成失败，降级为纯视频拼接")

		if err := s.fallbackConcat(ctx, usable, outPath); err != nil {
			return nil, apperrors.NewAssemblyError("成片合成失败", err)
		}
	}

	logrus.WithField("file", filename).Info("✅ 成片合成完成")
	return &models.AssemblyResult{FilePath: outPath, Filename: filename}, nil
}

// resolveMusicPath 确定音乐床文件：生成成功用生成结果，否则用配置的占位音乐
func (s *EditingService) resolveMusicPath(music *models.MusicResult) string {
	if music != nil && music.Success && music.Asset != nil {
		return music.Asset.FilePath
	}
	if s.musicPlaceholder != "" {
		if _, err := os.Stat(s.musicPlaceholder); err == nil {
			logrus.Info("🎵 使用占位音乐作为音乐床")
			return s.musicPlaceholder
		}
	}
	return ""
}

// buildAssemblyArgs 构造完整滤镜图的ffmpeg参数
// 输入顺序：场景视频、台词音频、音乐；输出统一转码并截断到目标时长
func (s *EditingService) buildAssemblyArgs(videos []models.SceneVideoResult, offsets []DialogueOffset, musicPath, outPath string) []string {
	args := []string{"-y"}

	for _, v := range videos {
		args = append(args, "-i", v.Video.FilePath)
	}
	for _, o := range offsets {
		args = append(args, "-i", o.FilePath)
	}
	if musicPath != "" {
		args = append(args, "-i", musicPath)
	}

	var filters []string

	// 视频链：多场景顺序拼接，单场景原样通过
	if len(videos) > 1 {
		var b strings.Builder
		for i := range videos {
			fmt.Fprintf(&b, "[%d:v]", i)
		}
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[outv]", len(videos))
		filters = append(filters, b.String())
	} else {
		filters = append(filters, "[0:v]null[outv]")
	}

	// 音频链：台词按偏移延迟，音乐降音量并补齐长度，最后混音截断
	var audioLabels []string
	for i, o := range offsets {
		inputIdx := len(videos) + i
		label := fmt.Sprintf("d%d", i)
		filters = append(filters, fmt.Sprintf("[%d:a]adelay=%d|%d[%s]", inputIdx, o.OffsetMs, o.OffsetMs, label))
		audioLabels = append(audioLabels, "["+label+"]")
	}
	if musicPath != "" {
		inputIdx := len(videos) + len(offsets)
		filters = append(filters, fmt.Sprintf("[%d:a]volume=%g,apad[bg]", inputIdx, musicBedVolume))
		audioLabels = append(audioLabels, "[bg]")
	}

	targetSec := s.targetDuration.Seconds()
	hasAudio := len(audioLabels) > 0
	if hasAudio {
		filters = append(filters, fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0,atrim=0:%g[outa]",
			strings.Join(audioLabels, ""), len(audioLabels), targetSec))
	}

	args = append(args, "-filter_complex", strings.Join(filters, ";"))
	args = append(args, "-map", "[outv]")
	if hasAudio {
		args = append(args, "-map", "[outa]", "-c:a", "aac")
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-t", fmt.Sprintf("%g", targetSec),
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

// fallbackConcat 降级路径：concat分离器直接拼接视频流，不转码不混音
func (s *EditingService) fallbackConcat(ctx context.Context, videos []models.SceneVideoResult, outPath string) error {
	listPath := outPath + ".txt"

	var b strings.Builder
	for _, v := range videos {
		fmt.Fprintf(&b, "file '%s'\n", v.Video.FilePath)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("写入拼接清单失败: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y", "-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy",
		"-t", fmt.Sprintf("%g", s.targetDuration.Seconds()),
		"-movflags", "+faststart",
		outPath,
	}
	if output, err := s.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("降级拼接失败: %w (%s)", err, truncate(string(output), 500))
	}
	return nil
}
