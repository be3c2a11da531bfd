// internal/services/movie_service_test.go
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
)

func TestBuildCharacterContinuity(t *testing.T) {
	profile := BuildCharacterContinuity("")
	if profile.ReferenceImage != "" {
		t.Error("没有照片时不应设置参考图")
	}
	if !strings.Contains(profile.CharacterProfile, "appearance, face, clothing style") {
		t.Errorf("档案应该包含一致性约束: %s", profile.CharacterProfile)
	}
	if strings.Contains(profile.CharacterProfile, "uploaded photo") {
		t.Error("没有照片时档案不应提到照片")
	}

	withPhoto := BuildCharacterContinuity("uploads/reference/ref_1.jpg")
	if withPhoto.ReferenceImage != "uploads/reference/ref_1.jpg" {
		t.Errorf("参考图路径不正确: %s", withPhoto.ReferenceImage)
	}
	if !strings.Contains(withPhoto.CharacterProfile, "uploaded photo as a visual reference") {
		t.Errorf("有照片时档案应该提到照片: %s", withPhoto.CharacterProfile)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("短文本不应截断: %s", got)
	}
	if got := truncate("hello world", 5); got != "hello..." {
		t.Errorf("截断结果不正确: %s", got)
	}
}

// newPipelineService 用全量假依赖组装电影生成服务
func newPipelineService(t *testing.T, provider *fakeProvider, veo *fakeVeo, runner *fakeRunner) (*MovieService, *config.Config) {
	t.Helper()

	// 音乐服务走直接下载路径的假服务端
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/v1/MusicAI", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"audio_url": "http://" + r.Host + "/audio.mp3"})
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		TargetDuration:       30 * time.Second,
		SceneDuration:        8 * time.Second,
		SceneCount:           4,
		SequentialVideo:      true,
		MusicAPIKey:          "test-key",
		MusicBaseURL:         server.URL,
		MusicInitialDelay:    time.Millisecond,
		MusicPollInterval:    time.Millisecond,
		MusicPollMaxAttempts: 3,
		VideoModel:           "veo-test",
		VideoPollInterval:    time.Millisecond,
		VideoPollMaxAttempts: 5,
		VideoSubmitRetries:   3,
		VideoBackoffStep:     time.Millisecond,
	}

	mediaStorage := newTestStorage(t)

	llmService := NewEmptyLLMService()
	llmService.SetProvider(provider, "fake")

	movieService := NewMovieService(
		NewScriptService(llmService, cfg),
		NewTTSServiceWithClient(&fakeSpeechClient{audio: []byte("mp3")}, mediaStorage, "tts-test"),
		NewMusicService(cfg, mediaStorage),
		NewVideoServiceWithClient(veo, mediaStorage, cfg),
		NewEditingServiceWithRunner(runner, mediaStorage, cfg),
		cfg,
	)

	return movieService, cfg
}

func TestGenerateMovie_FullPipeline(t *testing.T) {
	provider := &fakeProvider{response: validStoryJSON}
	veo := &fakeVeo{pollsUntilDone: 1, videoBytes: []byte("mp4")}
	runner := &fakeRunner{}

	service, _ := newPipelineService(t, provider, veo, runner)

	progress := NewProgressService()
	tracker := progress.CreateTracker("task-1")

	result, err := service.GenerateMovie(context.Background(), "an astronaut finds a signal", "", tracker)
	if err != nil {
		t.Fatalf("流水线应该成功: %v", err)
	}

	if result.Story.Title != "The Last Signal" {
		t.Errorf("剧本标题不正确: %s", result.Story.Title)
	}
	if len(result.DialogueResults) != 2 {
		t.Errorf("台词结果数量不正确: %d", len(result.DialogueResults))
	}
	if !result.MusicResult.Success {
		t.Errorf("音乐应该生成成功: %s", result.MusicResult.Error)
	}
	if len(result.VideoResults) != 2 {
		t.Errorf("场景视频结果数量不正确: %d", len(result.VideoResults))
	}
	if result.FinalMovie == nil {
		t.Fatal("应该有最终成片")
	}
	if result.GenerationTimeMs < 0 {
		t.Errorf("生成耗时不正确: %d", result.GenerationTimeMs)
	}

	snapshot := tracker.Snapshot()
	if snapshot.Status != "completed" {
		t.Errorf("任务状态应该是completed: %s", snapshot.Status)
	}
	if snapshot.Progress != 100 {
		t.Errorf("任务进度应该是100: %d", snapshot.Progress)
	}
	if snapshot.Result == nil {
		t.Error("任务快照应该携带结果")
	}
}

func TestGenerateMovie_ScriptFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{response: "not json at all, no braces"}
	veo := &fakeVeo{pollsUntilDone: 1, videoBytes: []byte("mp4")}
	runner := &fakeRunner{}

	service, _ := newPipelineService(t, provider, veo, runner)

	progress := NewProgressService()
	tracker := progress.CreateTracker("task-2")

	_, err := service.GenerateMovie(context.Background(), "a movie", "", tracker)
	if err == nil {
		t.Fatal("剧本生成失败时整个流水线应该失败")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeScriptGeneration) {
		t.Errorf("错误类型应该是剧本生成错误: %v", apperrors.TypeOf(err))
	}

	if tracker.Snapshot().Status != "failed" {
		t.Errorf("任务状态应该是failed: %s", tracker.Snapshot().Status)
	}
	// 剧本失败后不应触发任何下游生成
	if veo.submitCalls != 0 {
		t.Error("剧本失败后不应提交视频任务")
	}
	if len(runner.calls) != 0 {
		t.Error("剧本失败后不应调用ffmpeg")
	}
}

func TestGenerateMovie_PartialVideoFailureStillAssembles(t *testing.T) {
	provider := &fakeProvider{response: validStoryJSON}
	// 第一个场景提交失败（非限流），第二个成功
	veo := &fakeVeo{
		submitErrs:     []error{context.DeadlineExceeded},
		pollsUntilDone: 1,
		videoBytes:     []byte("mp4"),
	}
	runner := &fakeRunner{}

	service, _ := newPipelineService(t, provider, veo, runner)

	result, err := service.GenerateMovie(context.Background(), "a movie", "", nil)
	if err != nil {
		t.Fatalf("部分场景失败不应中断流水线: %v", err)
	}

	if result.VideoResults[0].Succeeded() {
		t.Error("场景0应该记录为失败")
	}
	if !result.VideoResults[1].Succeeded() {
		t.Errorf("场景1应该成功: %s", result.VideoResults[1].Error)
	}
	if result.FinalMovie == nil {
		t.Fatal("剩余场景应该照常合成")
	}
}

func TestGenerateMovie_NilTracker(t *testing.T) {
	provider := &fakeProvider{response: validStoryJSON}
	veo := &fakeVeo{pollsUntilDone: 1, videoBytes: []byte("mp4")}
	runner := &fakeRunner{}

	service, _ := newPipelineService(t, provider, veo, runner)

	// 同步接口不传进度跟踪器
	result, err := service.GenerateMovie(context.Background(), "a movie", "", nil)
	if err != nil {
		t.Fatalf("无跟踪器时流水线也应该成功: %v", err)
	}
	if result.FinalMovie == nil {
		t.Fatal("应该有最终成片")
	}
}
