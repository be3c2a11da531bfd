// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMITED"
	ErrorTimeout       = "TIMEOUT"

	// 流水线各阶段错误
	ErrorScriptGeneration = "SCRIPT_GENERATION_FAILED"
	ErrorDialogueTTS      = "DIALOGUE_TTS_FAILED"
	ErrorMusicGeneration  = "MUSIC_GENERATION_FAILED"
	ErrorSceneVideo       = "SCENE_VIDEO_FAILED"
	ErrorAssembly         = "ASSEMBLY_FAILED"
	ErrorNoScenes         = "NO_SCENES_AVAILABLE"

	// 任务相关错误
	ErrorTaskNotFound = "TASK_NOT_FOUND"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"

	// 服务配置相关
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
)
