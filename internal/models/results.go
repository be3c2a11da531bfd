// internal/models/results.go
package models

// DialogueResult 单条台词的TTS结果
// 局部失败以Error字段记录，不中断整体流水线
type DialogueResult struct {
	DialogueLine
	Voice string      `json:"voice,omitempty"`
	Audio *MediaAsset `json:"audio,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Succeeded 该台词是否生成了可用音频
func (r *DialogueResult) Succeeded() bool {
	return r.Audio != nil && r.Error == ""
}

// SceneVideoResult 单个场景的视频生成结果
type SceneVideoResult struct {
	SceneIndex int         `json:"scene_index"`
	SceneTitle string      `json:"scene_title"`
	Prompt     string      `json:"prompt,omitempty"`
	Video      *MediaAsset `json:"video,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Succeeded 该场景是否生成了可用视频
func (r *SceneVideoResult) Succeeded() bool {
	return r.Video != nil && r.Error == ""
}

// MusicResult 整部电影的音乐生成结果
// 失败时Success为false，流水线继续进行（无音乐床）
type MusicResult struct {
	Success bool        `json:"success"`
	Style   string      `json:"style,omitempty"`
	Asset   *MediaAsset `json:"asset,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MovieResult 一次完整电影生成的汇总结果
type MovieResult struct {
	Story            *Story             `json:"story"`
	Continuity       *ContinuityProfile `json:"continuity,omitempty"`
	DialogueResults  []DialogueResult   `json:"dialogue_results"`
	MusicResult      *MusicResult       `json:"music_result"`
	VideoResults     []SceneVideoResult `json:"video_results"`
	FinalMovie       *AssemblyResult    `json:"final_movie,omitempty"`
	GenerationTimeMs int64              `json:"generation_time_ms"`
}
