// internal/storage/media_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wannabe/moviestudio/internal/models"
)

// 资产类别，每类各占一个子目录
const (
	ClassAudio = "audio"
	ClassMusic = "music"
	ClassVideo = "videos"
	ClassFinal = "final"
)

// MediaStorage 管理本地媒体文件目录树
// 每个组件只写自己命名的文件（时间戳+随机后缀防碰撞），因此不需要文件锁
type MediaStorage struct {
	BaseDir string
}

// NewMediaStorage 创建媒体存储服务
func NewMediaStorage(baseDir string) (*MediaStorage, error) {
	for _, class := range []string{ClassAudio, ClassMusic, ClassVideo, ClassFinal} {
		if err := os.MkdirAll(filepath.Join(baseDir, class), 0755); err != nil {
			return nil, fmt.Errorf("创建存储目录失败: %w", err)
		}
	}

	return &MediaStorage{BaseDir: baseDir}, nil
}

// UniqueFilename 生成防碰撞文件名，如 audio_1716461315000_1a2b3c4d.mp3
func (ms *MediaStorage) UniqueFilename(prefix, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s%s", prefix, time.Now().UnixMilli(), suffix, ext)
}

// AllocatePath 为后续下载分配一个新文件路径
func (ms *MediaStorage) AllocatePath(class, prefix, ext string) (string, string) {
	filename := ms.UniqueFilename(prefix, ext)
	return filepath.Join(ms.BaseDir, class, filename), filename
}

// SaveAsset 将媒体字节落盘并返回资产描述
func (ms *MediaStorage) SaveAsset(class, prefix, ext string, data []byte) (*models.MediaAsset, error) {
	fullPath, filename := ms.AllocatePath(class, prefix, ext)

	// 原子性文件写入
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return nil, fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("保存文件失败: %w", err)
	}

	return &models.MediaAsset{
		FilePath: fullPath,
		Filename: filename,
		Size:     int64(len(data)),
	}, nil
}

// SaveMetadata 在媒体文件旁写入 _metadata.json
func (ms *MediaStorage) SaveMetadata(assetPath string, metadata interface{}) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}

	ext := filepath.Ext(assetPath)
	metaPath := strings.TrimSuffix(assetPath, ext) + "_metadata.json"
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("保存元数据失败: %w", err)
	}

	return nil
}

// Stat 补全已有文件的资产描述
func (ms *MediaStorage) Stat(fullPath string) (*models.MediaAsset, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, err
	}

	return &models.MediaAsset{
		FilePath: fullPath,
		Filename: filepath.Base(fullPath),
		Size:     info.Size(),
	}, nil
}
