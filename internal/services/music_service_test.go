// internal/services/music_service_test.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wannabe/moviestudio/internal/config"
)

func TestDetermineMusicStyle(t *testing.T) {
	tests := []struct {
		description string
		prompt      string
		want        string
	}{
		{"a high speed chase through the city", "", "action"},
		{"", "tender love theme", "romantic"},
		{"a melancholy farewell", "", "emotional"},
		{"detective thriller", "", "mystery"},
		{"funny misunderstanding at a cafe", "", "comedy"},
		{"a grand heroic quest", "", "epic"},
		{"peaceful morning by the lake", "", "ambient"},
		{"an astronaut in space", "orchestral score", "cinematic"},
		// 桶的顺序即优先级：action在epic之前
		{"epic battle scene", "", "action"},
	}

	for _, tt := range tests {
		if got := DetermineMusicStyle(tt.description, tt.prompt); got != tt.want {
			t.Errorf("DetermineMusicStyle(%q, %q) = %s, 期望 %s",
				tt.description, tt.prompt, got, tt.want)
		}
	}
}

func musicTestConfig(baseURL string) *config.Config {
	return &config.Config{
		MusicAPIKey:          "test-key",
		MusicBaseURL:         baseURL,
		MusicInitialDelay:    time.Millisecond,
		MusicPollInterval:    time.Millisecond,
		MusicPollMaxAttempts: 5,
	}
}

func TestGenerateMusic_DirectPath(t *testing.T) {
	var pollCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/v1/MusicAI", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			t.Error("提交请求缺少Authorization头")
		}
		json.NewEncoder(w).Encode(map[string]string{"audio_url": "http://" + r.Host + "/audio.mp3"})
	})
	mux.HandleFunc("/api/public/v1/byId", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pollCalls, 1)
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-data"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service := NewMusicService(musicTestConfig(server.URL), newTestStorage(t))

	result := service.GenerateMusic(context.Background(), "tense score", "cinematic")
	if !result.Success {
		t.Fatalf("直接下载路径应该成功，错误: %s", result.Error)
	}
	if result.Asset.Size != int64(len("mp3-data")) {
		t.Errorf("音频文件大小不正确: %d", result.Asset.Size)
	}
	if atomic.LoadInt32(&pollCalls) != 0 {
		t.Error("提交响应已带音频地址时不应该轮询")
	}
}

func TestGenerateMusic_PollingPath(t *testing.T) {
	var pollCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/v1/MusicAI", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"conversion_id": "conv-123"})
	})
	mux.HandleFunc("/api/public/v1/byId", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conversion_id") != "conv-123" {
			t.Errorf("轮询请求的conversion_id不正确: %s", r.URL.Query().Get("conversion_id"))
		}

		n := atomic.AddInt32(&pollCalls, 1)
		status := "PROCESSING"
		audioURL := ""
		if n >= 3 {
			status = "COMPLETED"
			audioURL = "http://" + r.Host + "/audio.mp3"
		}
		fmt.Fprintf(w, `{"success": true, "conversion": {"status": %q, "audio_url": %q, "duration": 42.5}}`,
			status, audioURL)
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-data"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service := NewMusicService(musicTestConfig(server.URL), newTestStorage(t))

	result := service.GenerateMusic(context.Background(), "tense score", "mystery")
	if !result.Success {
		t.Fatalf("轮询路径应该成功，错误: %s", result.Error)
	}
	if atomic.LoadInt32(&pollCalls) != 3 {
		t.Errorf("轮询次数不正确: %d", pollCalls)
	}
	if result.Asset.Duration != 42.5 {
		t.Errorf("音频时长应该采用服务端报告的值: %v", result.Asset.Duration)
	}
	if result.Style != "mystery" {
		t.Errorf("结果应该记录音乐风格: %s", result.Style)
	}
}

func TestGenerateMusic_PollingExhausted(t *testing.T) {
	var pollCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/v1/MusicAI", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"conversion_id": "conv-slow"})
	})
	mux.HandleFunc("/api/public/v1/byId", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pollCalls, 1)
		fmt.Fprint(w, `{"success": true, "conversion": {"status": "PROCESSING"}}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := musicTestConfig(server.URL)
	cfg.MusicPollMaxAttempts = 3
	service := NewMusicService(cfg, newTestStorage(t))

	result := service.GenerateMusic(context.Background(), "slow track", "ambient")
	if result.Success {
		t.Fatal("超出轮询次数上限后不应标记为成功")
	}
	if atomic.LoadInt32(&pollCalls) != 3 {
		t.Errorf("应该恰好轮询%d次，实际: %d", 3, pollCalls)
	}
}

func TestGenerateMusic_JobFailed(t *testing.T) {
	var pollCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/v1/MusicAI", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"conversion_id": "conv-bad"})
	})
	mux.HandleFunc("/api/public/v1/byId", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pollCalls, 1)
		fmt.Fprint(w, `{"success": false, "conversion": {"status": "FAILED"}}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	service := NewMusicService(musicTestConfig(server.URL), newTestStorage(t))

	result := service.GenerateMusic(context.Background(), "track", "epic")
	if result.Success {
		t.Fatal("FAILED状态不应标记为成功")
	}
	// FAILED是终态，不应继续轮询
	if atomic.LoadInt32(&pollCalls) != 1 {
		t.Errorf("FAILED后不应继续轮询，实际轮询次数: %d", pollCalls)
	}
	if !strings.Contains(result.Error, "音乐生成轮询失败") {
		t.Errorf("错误信息应该标明失败阶段: %s", result.Error)
	}
}

func TestGenerateMusic_NoAPIKey(t *testing.T) {
	cfg := musicTestConfig("http://unused")
	cfg.MusicAPIKey = ""
	service := NewMusicService(cfg, newTestStorage(t))

	result := service.GenerateMusic(context.Background(), "track", "cinematic")
	if result.Success {
		t.Fatal("未配置密钥时不应标记为成功")
	}
	if result.Error == "" {
		t.Error("失败结果应该携带错误信息")
	}
}
