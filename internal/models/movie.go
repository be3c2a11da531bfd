// internal/models/movie.go
package models

// Story 表示LLM生成的完整电影剧本
// 由ScriptService生成后不再修改，生命周期归属单次请求
type Story struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Music       string  `json:"music"` // 音乐生成提示词
	Scenes      []Scene `json:"scenes"`
}

// Scene 表示电影中一个固定时长的场景
// Index 与数组位置一致（0起始、连续），解析时强制归一化
type Scene struct {
	Index       int        `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"` // 视频生成提示词
	Dialogues   []Dialogue `json:"dialogues"`
	FX          string     `json:"fx"`
}

// Dialogue 场景内的一句台词
type Dialogue struct {
	Name        string `json:"name"`        // 角色名
	Description string `json:"description"` // 声音/语气描述，用于选择TTS音色
	Dialogue    string `json:"dialogue"`    // 台词文本
}

// DialogueLine 从所有场景展平出来的台词行，用于并行TTS调度
// 保留来源场景索引，供剪辑阶段计算播放偏移
type DialogueLine struct {
	SceneIndex    int    `json:"scene_index"`
	DialogueIndex int    `json:"dialogue_index"` // 场景内序号
	Name          string `json:"name"`
	Description   string `json:"description"`
	Dialogue      string `json:"dialogue"`
}

// ContinuityProfile 角色一致性上下文
// 每个Story派生一次，只读注入到每个场景的视频提示词中
type ContinuityProfile struct {
	CharacterProfile string `json:"character_profile"`
	ReferenceImage   string `json:"reference_image,omitempty"` // 本地参考照片路径，可选
}

// MediaAsset 表示一个已落盘的媒体文件
// 由下载它的组件持有，剪辑阶段只引用不修改
type MediaAsset struct {
	FilePath string  `json:"file_path"`
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"` // 估算或服务端报告的秒数
}

// AssemblyResult 最终合成产物
type AssemblyResult struct {
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
}
