// internal/services/editing_service_test.go
package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/models"
)

// fakeRunner 记录ffmpeg调用并按序返回预设错误
type fakeRunner struct {
	calls [][]string
	errs  []error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, args)

	idx := len(r.calls) - 1
	if idx < len(r.errs) && r.errs[idx] != nil {
		return []byte("ffmpeg error output"), r.errs[idx]
	}
	return []byte("ok"), nil
}

func editingTestConfig() *config.Config {
	return &config.Config{
		TargetDuration: 30 * time.Second,
		SceneDuration:  8 * time.Second,
	}
}

func audioResult(sceneIdx, dialogueIdx int, path string) models.DialogueResult {
	return models.DialogueResult{
		DialogueLine: models.DialogueLine{SceneIndex: sceneIdx, DialogueIndex: dialogueIdx},
		Audio:        &models.MediaAsset{FilePath: path},
	}
}

func videoResult(sceneIdx int, path string) models.SceneVideoResult {
	return models.SceneVideoResult{
		SceneIndex: sceneIdx,
		Video:      &models.MediaAsset{FilePath: path},
	}
}

func TestComputeDialogueOffsets(t *testing.T) {
	dialogues := []models.DialogueResult{
		audioResult(0, 0, "a0.mp3"),
		audioResult(0, 1, "a1.mp3"),
		audioResult(1, 0, "b0.mp3"),
	}

	offsets := ComputeDialogueOffsets(dialogues, 8*time.Second)
	if len(offsets) != 3 {
		t.Fatalf("偏移数量不正确: %d", len(offsets))
	}

	// 场景内2条台词把8秒均分为3段：约2.67秒和5.33秒
	if offsets[0].OffsetMs != 2666 {
		t.Errorf("场景0第1条台词偏移不正确: %d", offsets[0].OffsetMs)
	}
	if offsets[1].OffsetMs != 5333 {
		t.Errorf("场景0第2条台词偏移不正确: %d", offsets[1].OffsetMs)
	}
	// 场景1的单条台词落在场景中点：8s + 4s
	if offsets[2].OffsetMs != 12000 {
		t.Errorf("场景1台词偏移不正确: %d", offsets[2].OffsetMs)
	}
}

func TestComputeDialogueOffsets_SkipsFailed(t *testing.T) {
	dialogues := []models.DialogueResult{
		audioResult(0, 0, "ok.mp3"),
		{DialogueLine: models.DialogueLine{SceneIndex: 0, DialogueIndex: 1}, Error: "tts failed"},
	}

	offsets := ComputeDialogueOffsets(dialogues, 8*time.Second)
	if len(offsets) != 1 {
		t.Fatalf("失败的台词不应参与排期，实际数量: %d", len(offsets))
	}
	// 只剩1条可用台词，落在场景中点
	if offsets[0].OffsetMs != 4000 {
		t.Errorf("偏移应该按可用台词数重新均分: %d", offsets[0].OffsetMs)
	}
}

func TestComputeDialogueOffsets_OrderedByDialogueIndex(t *testing.T) {
	dialogues := []models.DialogueResult{
		audioResult(0, 1, "second.mp3"),
		audioResult(0, 0, "first.mp3"),
	}

	offsets := ComputeDialogueOffsets(dialogues, 8*time.Second)
	if offsets[0].FilePath != "first.mp3" {
		t.Errorf("偏移应该按场景内序号排序: %s", offsets[0].FilePath)
	}
	if offsets[0].OffsetMs >= offsets[1].OffsetMs {
		t.Error("偏移应该单调递增")
	}
}

func TestAssembleMovie_FullGraph(t *testing.T) {
	runner := &fakeRunner{}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), editingTestConfig())

	videos := []models.SceneVideoResult{
		videoResult(1, "scene1.mp4"),
		videoResult(0, "scene0.mp4"),
	}
	dialogues := []models.DialogueResult{audioResult(0, 0, "d0.mp3")}
	music := &models.MusicResult{Success: true, Asset: &models.MediaAsset{FilePath: "music.mp3"}}

	result, err := service.AssembleMovie(context.Background(), videos, dialogues, music)
	if err != nil {
		t.Fatalf("合成失败: %v", err)
	}
	if !strings.HasPrefix(result.Filename, "movie_final") {
		t.Errorf("成片文件名不正确: %s", result.Filename)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("完整合成成功时应该只调用一次ffmpeg: %d", len(runner.calls))
	}

	args := strings.Join(runner.calls[0], " ")

	// 场景视频按索引排序后作为输入
	if !strings.Contains(args, "-i scene0.mp4 -i scene1.mp4") {
		t.Errorf("视频输入应该按场景索引排序: %s", args)
	}
	if !strings.Contains(args, "concat=n=2:v=1:a=0[outv]") {
		t.Errorf("滤镜图应该拼接两个场景: %s", args)
	}
	if !strings.Contains(args, "adelay=4000|4000") {
		t.Errorf("台词应该按计算偏移延迟: %s", args)
	}
	if !strings.Contains(args, "volume=0.25,apad[bg]") {
		t.Errorf("音乐床应该降音量并补齐长度: %s", args)
	}
	if !strings.Contains(args, "amix=inputs=2") {
		t.Errorf("台词与音乐应该混音: %s", args)
	}
	if !strings.Contains(args, "-t 30") {
		t.Errorf("成片应该截断到目标时长: %s", args)
	}
	if !strings.Contains(args, "-movflags +faststart") {
		t.Errorf("成片应该启用faststart: %s", args)
	}
}

func TestAssembleMovie_SingleSceneNoAudio(t *testing.T) {
	runner := &fakeRunner{}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), editingTestConfig())

	result, err := service.AssembleMovie(context.Background(),
		[]models.SceneVideoResult{videoResult(0, "only.mp4")}, nil, nil)
	if err != nil {
		t.Fatalf("合成失败: %v", err)
	}
	if result == nil {
		t.Fatal("结果不应为nil")
	}

	args := strings.Join(runner.calls[0], " ")
	if strings.Contains(args, "concat=") {
		t.Errorf("单场景不应使用concat滤镜: %s", args)
	}
	if !strings.Contains(args, "-an") {
		t.Errorf("没有任何音频输入时应该禁用音轨: %s", args)
	}
}

func TestAssembleMovie_FallbackConcat(t *testing.T) {
	tempDir := t.TempDir()
	v0 := filepath.Join(tempDir, "v0.mp4")
	os.WriteFile(v0, []byte("x"), 0644)

	runner := &fakeRunner{errs: []error{errors.New("filter graph failed")}}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), editingTestConfig())

	result, err := service.AssembleMovie(context.Background(),
		[]models.SceneVideoResult{videoResult(0, v0)}, nil, nil)
	if err != nil {
		t.Fatalf("降级拼接应该成功: %v", err)
	}
	if result == nil {
		t.Fatal("结果不应为nil")
	}
	if len(runner.calls) != 2 {
		t.Fatalf("完整合成失败后应该走降级路径: %d次调用", len(runner.calls))
	}

	fallbackArgs := strings.Join(runner.calls[1], " ")
	if !strings.Contains(fallbackArgs, "-f concat") || !strings.Contains(fallbackArgs, "-c copy") {
		t.Errorf("降级路径应该使用concat分离器直接拷贝: %s", fallbackArgs)
	}
	// 降级产物同样必须裁剪到目标时长
	if !strings.Contains(fallbackArgs, "-t 30") {
		t.Errorf("降级路径缺少目标时长裁剪: %s", fallbackArgs)
	}
	if !strings.Contains(fallbackArgs, "-movflags +faststart") {
		t.Errorf("降级路径缺少faststart标记: %s", fallbackArgs)
	}
}

func TestAssembleMovie_BothPathsFail(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("boom"), errors.New("boom again")}}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), editingTestConfig())

	_, err := service.AssembleMovie(context.Background(),
		[]models.SceneVideoResult{videoResult(0, "v.mp4")}, nil, nil)
	if err == nil {
		t.Fatal("两条路径都失败时应该返回错误")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeAssembly) {
		t.Errorf("错误类型应该是合成错误: %v", apperrors.TypeOf(err))
	}
}

func TestAssembleMovie_NoUsableScenes(t *testing.T) {
	runner := &fakeRunner{}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), editingTestConfig())

	videos := []models.SceneVideoResult{
		{SceneIndex: 0, Error: "veo failed"},
	}

	_, err := service.AssembleMovie(context.Background(), videos, nil, nil)
	if err == nil {
		t.Fatal("没有可用场景时应该返回错误")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNoScenes) {
		t.Errorf("错误类型应该是无可用场景: %v", apperrors.TypeOf(err))
	}
	if len(runner.calls) != 0 {
		t.Error("没有可用场景时不应调用ffmpeg")
	}
}

func TestAssembleMovie_MusicPlaceholder(t *testing.T) {
	tempDir := t.TempDir()
	placeholder := filepath.Join(tempDir, "fallback.mp3")
	os.WriteFile(placeholder, []byte("mp3"), 0644)

	cfg := editingTestConfig()
	cfg.MusicPlaceholderPath = placeholder

	runner := &fakeRunner{}
	service := NewEditingServiceWithRunner(runner, newTestStorage(t), cfg)

	failedMusic := &models.MusicResult{Success: false, Error: "music api down"}
	_, err := service.AssembleMovie(context.Background(),
		[]models.SceneVideoResult{videoResult(0, "v.mp4")}, nil, failedMusic)
	if err != nil {
		t.Fatalf("合成失败: %v", err)
	}

	args := strings.Join(runner.calls[0], " ")
	if !strings.Contains(args, placeholder) {
		t.Errorf("音乐生成失败时应该使用占位音乐: %s", args)
	}
	if !strings.Contains(args, "volume=0.25") {
		t.Errorf("占位音乐也应该走音乐床音量: %s", args)
	}
}
