// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeTimeout      ErrorType = "timeout"

	// 流水线错误类型，对应各生成阶段
	ErrorTypeScriptGeneration  ErrorType = "script_generation_error"
	ErrorTypeDialogueSynthesis ErrorType = "dialogue_synthesis_error"
	ErrorTypeMusicGeneration   ErrorType = "music_generation_error"
	ErrorTypeSceneVideo        ErrorType = "scene_video_error"
	ErrorTypeAssembly          ErrorType = "assembly_error"
	ErrorTypeNoScenes          ErrorType = "no_scenes_available"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建指定类型的 AppError
func New(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return New(ErrorTypeValidation, message, originalError)
}

// NewScriptGenerationError 创建剧本生成错误（对整个请求致命）
func NewScriptGenerationError(message string, originalError error) *AppError {
	return New(ErrorTypeScriptGeneration, message, originalError)
}

// NewMusicGenerationError 创建音乐生成错误（局部可恢复）
func NewMusicGenerationError(message string, originalError error) *AppError {
	return New(ErrorTypeMusicGeneration, message, originalError)
}

// NewSceneVideoError 创建场景视频错误（局部可恢复）
func NewSceneVideoError(message string, originalError error) *AppError {
	return New(ErrorTypeSceneVideo, message, originalError)
}

// NewAssemblyError 创建剪辑合成错误
func NewAssemblyError(message string, originalError error) *AppError {
	return New(ErrorTypeAssembly, message, originalError)
}

// NewNoScenesError 创建无可用场景错误（对整个请求致命）
func NewNoScenesError(message string) *AppError {
	return New(ErrorTypeNoScenes, message, nil)
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string, originalError error) *AppError {
	return New(ErrorTypeUnauthorized, message, originalError)
}

// NewRateLimitedError 创建限流错误
func NewRateLimitedError(message string, originalError error) *AppError {
	return New(ErrorTypeRateLimited, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return New(ErrorTypeTimeout, message, originalError)
}

// TypeOf 返回错误的类型，非 AppError 返回空串
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsType 检查错误是否为指定类型
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
