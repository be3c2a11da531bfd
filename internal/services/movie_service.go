// internal/services/movie_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	"github.com/wannabe/moviestudio/internal/models"
)

// MovieService 电影生成流水线的总协调者
// 流程：剧本（致命失败）→ 台词TTS并行 + 音乐并行 + 场景视频（默认串行规避限流）→ 合成
// 除剧本和合成外的任何局部失败都只记录在结果里，流水线继续推进
type MovieService struct {
	script  *ScriptService
	tts     *TTSService
	music   *MusicService
	video   *VideoService
	editing *EditingService
	cfg     *config.Config
}

// NewMovieService 创建电影生成协调服务
func NewMovieService(script *ScriptService, tts *TTSService, music *MusicService, video *VideoService, editing *EditingService, cfg *config.Config) *MovieService {
	return &MovieService{
		script:  script,
		tts:     tts,
		music:   music,
		video:   video,
		editing: editing,
		cfg:     cfg,
	}
}

// BuildCharacterContinuity 构建角色一致性档案
// 每个剧本派生一次，注入到所有场景的视频提示词里；有参考照片时追加照片引用
func BuildCharacterContinuity(referenceImagePath string) *models.ContinuityProfile {
	profile := &models.ContinuityProfile{
		CharacterProfile: "Maintain the same main character appearance, face, clothing style, hair, and color palette across scenes. Keep consistent proportions and identity even when the camera, lighting, and backgrounds change. Avoid adding text overlays or subtitles.",
	}
	if referenceImagePath != "" {
		profile.ReferenceImage = referenceImagePath
		profile.CharacterProfile += " Use the uploaded photo as a visual reference for identity continuity."
	}
	return profile
}

// GenerateMovie 执行一次完整的电影生成
// tracker可以为nil（同步接口不需要进度推送）
func (s *MovieService) GenerateMovie(ctx context.Context, idea, referenceImagePath string, tracker *ProgressTracker) (*models.MovieResult, error) {
	start := time.Now()

	report := func(stage string, progress int, message string) {
		if tracker != nil {
			tracker.UpdateProgress(stage, progress, message)
		}
	}

	// 阶段一：剧本生成，唯一的前置致命失败
	report(StageScript, 5, "正在生成电影剧本")
	logrus.WithField("idea", truncate(idea, 80)).Info("🎬 开始电影生成流水线")

	story, err := s.script.GenerateScript(ctx, idea, referenceImagePath != "")
	if err != nil {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return nil, err
	}
	report(StageScript, 15, "剧本生成完成: "+story.Title)

	continuity := BuildCharacterContinuity(referenceImagePath)
	lines := FlattenDialogues(story)

	// 阶段二：台词TTS与音乐并行启动，视频随后推进
	report(StageTTS, 20, "正在并行生成台词配音与音乐")

	var wg sync.WaitGroup
	dialogueResults := make([]models.DialogueResult, len(lines))
	for i, line := range lines {
		wg.Add(1)
		go func(idx int, l models.DialogueLine) {
			defer wg.Done()
			dialogueResults[idx] = s.tts.GenerateSpeech(ctx, l)
		}(i, line)
	}

	var musicResult *models.MusicResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		style := DetermineMusicStyle(story.Description, story.Music)
		musicResult = s.music.GenerateMusic(ctx, story.Music, style)
	}()

	// 阶段三：场景视频，默认串行提交以规避限流，可配置全并行
	report(StageVideo, 30, "正在生成场景视频")
	videoResults := s.generateSceneVideos(ctx, story, continuity, report)

	wg.Wait()

	logrus.WithFields(logrus.Fields{
		"dialogues": countSucceededDialogues(dialogueResults),
		"total":     len(dialogueResults),
		"music":     musicResult.Success,
		"videos":    countSucceededVideos(videoResults),
		"scenes":    len(videoResults),
	}).Info("✅ 素材生成阶段完成")

	result := &models.MovieResult{
		Story:           story,
		Continuity:      continuity,
		DialogueResults: dialogueResults,
		MusicResult:     musicResult,
		VideoResults:    videoResults,
	}

	// 阶段四：成片合成
	report(StageAssembly, 85, "正在合成最终成片")
	assembled, err := s.editing.AssembleMovie(ctx, videoResults, dialogueResults, musicResult)
	if err != nil {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return nil, err
	}

	result.FinalMovie = assembled
	result.GenerationTimeMs = time.Since(start).Milliseconds()

	if tracker != nil {
		tracker.Complete("电影生成完成", result)
	}
	logrus.WithFields(logrus.Fields{
		"title":   story.Title,
		"file":    assembled.Filename,
		"time_ms": result.GenerationTimeMs,
	}).Info("🎉 电影生成完成")

	return result, nil
}

// generateSceneVideos 按配置串行或并行地为每个场景生成视频
func (s *MovieService) generateSceneVideos(ctx context.Context, story *models.Story, continuity *models.ContinuityProfile, report func(string, int, string)) []models.SceneVideoResult {
	results := make([]models.SceneVideoResult, len(story.Scenes))

	if s.cfg.SequentialVideo {
		for i, scene := range story.Scenes {
			progress := 30 + (50*i)/len(story.Scenes)
			report(StageVideo, progress, "正在生成场景视频: "+scene.Title)
			results[i] = s.video.GenerateSceneVideo(ctx, scene, continuity)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, scene := range story.Scenes {
		wg.Add(1)
		go func(idx int, sc models.Scene) {
			defer wg.Done()
			results[idx] = s.video.GenerateSceneVideo(ctx, sc, continuity)
		}(i, scene)
	}
	wg.Wait()
	return results
}

// GenerateTestVideo 单场景冒烟测试：不走剧本，直接用给定描述生成一段视频
func (s *MovieService) GenerateTestVideo(ctx context.Context, description string) models.SceneVideoResult {
	scene := models.Scene{
		Index:       0,
		Title:       "Test Scene",
		Description: description,
	}
	return s.video.GenerateSceneVideo(ctx, scene, nil)
}

func countSucceededDialogues(results []models.DialogueResult) int {
	n := 0
	for i := range results {
		if results[i].Succeeded() {
			n++
		}
	}
	return n
}

func countSucceededVideos(results []models.SceneVideoResult) int {
	n := 0
	for i := range results {
		if results[i].Succeeded() {
			n++
		}
	}
	return n
}

// truncate 截断过长文本用于日志输出
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
