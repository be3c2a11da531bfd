// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 存储应用配置
// 流水线的所有节奏参数（时长、轮询间隔、重试次数）都是具名配置，
// 不允许散落在代码里当魔法数字
type Config struct {
	Port      string
	MediaDir  string
	UploadDir string
	DebugMode bool

	// LLM相关配置
	LLMProvider  string
	LLMModel     string
	OpenAIAPIKey string
	GoogleAPIKey string

	// TTS配置
	TTSModel string

	// 音乐生成配置（MusicGPT）
	MusicAPIKey          string
	MusicBaseURL         string
	MusicInitialDelay    time.Duration
	MusicPollInterval    time.Duration
	MusicPollMaxAttempts int
	MusicPlaceholderPath string

	// 视频生成配置（Veo）
	VideoModel           string
	VideoPollInterval    time.Duration
	VideoPollMaxAttempts int
	VideoSubmitRetries   int
	VideoBackoffStep     time.Duration
	SequentialVideo      bool // true=逐场景串行提交以规避429，false=全并行

	// 成片时长契约：总时长与单场景时长是耦合配置
	TargetDuration time.Duration
	SceneDuration  time.Duration
	SceneCount     int
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "3000"),
		MediaDir:  getEnvPath("MEDIA_DIR", "uploads"),
		UploadDir: getEnvPath("UPLOAD_DIR", "uploads/reference"),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		LLMProvider:  getEnv("LLM_PROVIDER", "openai"),
		LLMModel:     getEnv("LLM_MODEL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GoogleAPIKey: getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),

		TTSModel: getEnv("TTS_MODEL", "gpt-4o-mini-tts"),

		MusicAPIKey:          getEnv("MUSIC_KEY", ""),
		MusicBaseURL:         getEnv("MUSIC_BASE_URL", "https://api.musicgpt.com"),
		MusicInitialDelay:    getEnvSeconds("MUSIC_INITIAL_DELAY_SEC", 2),
		MusicPollInterval:    getEnvSeconds("MUSIC_POLL_INTERVAL_SEC", 3),
		MusicPollMaxAttempts: getEnvInt("MUSIC_POLL_MAX_ATTEMPTS", 10),
		MusicPlaceholderPath: getEnv("MUSIC_PLACEHOLDER_PATH", ""),

		VideoModel:           getEnv("VEO_MODEL", "veo-3.0-fast-generate-preview"),
		VideoPollInterval:    getEnvSeconds("VIDEO_POLL_INTERVAL_SEC", 10),
		VideoPollMaxAttempts: getEnvInt("VIDEO_POLL_MAX_ATTEMPTS", 60),
		VideoSubmitRetries:   getEnvInt("VIDEO_SUBMIT_RETRIES", 3),
		VideoBackoffStep:     getEnvSeconds("VIDEO_BACKOFF_STEP_SEC", 20),
		SequentialVideo:      getEnvBool("SEQUENTIAL_VIDEO", true),

		TargetDuration: getEnvSeconds("TARGET_DURATION_SEC", 30),
		SceneDuration:  getEnvSeconds("SCENE_DURATION_SEC", 8),
		SceneCount:     getEnvInt("SCENE_COUNT", 4),
	}

	if cfg.OpenAIAPIKey == "" {
		// 只记录警告：没有密钥时服务可以启动，生成请求会被拒绝
		logrus.Warn("未设置OPENAI_API_KEY，剧本与配音生成将不可用")
	}
	if cfg.MusicAPIKey == "" {
		logrus.Warn("未设置MUSIC_KEY，成片将没有音乐床")
	}

	return cfg, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvSeconds 获取以秒为单位的时长环境变量
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
