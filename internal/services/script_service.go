// internal/services/script_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/wannabe/moviestudio/internal/config"
	apperrors "github.com/wannabe/moviestudio/internal/errors"
	"github.com/wannabe/moviestudio/internal/models"
)

// 用户输入的最大长度，超出部分截断
const maxIdeaLength = 2000

// ScriptService 调用LLM把一句话的电影想法扩写成结构化剧本
type ScriptService struct {
	llm *LLMService
	cfg *config.Config
}

// NewScriptService 创建剧本生成服务
func NewScriptService(llmService *LLMService, cfg *config.Config) *ScriptService {
	return &ScriptService{
		llm: llmService,
		cfg: cfg,
	}
}

// GenerateScript 生成一部电影的完整剧本
// LLM失败或输出无法解析时返回剧本生成错误，对整个请求致命
func (s *ScriptService) GenerateScript(ctx context.Context, idea string, hasReferencePhoto bool) (*models.Story, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, apperrors.NewValidationError("电影描述不能为空", nil)
	}
	if len(idea) > maxIdeaLength {
		cut := maxIdeaLength
		// 回退到rune起始字节，避免截出半个多字节字符
		for cut > 0 && !utf8.RuneStart(idea[cut]) {
			cut--
		}
		idea = idea[:cut]
	}

	systemPrompt := s.buildSystemPrompt(hasReferencePhoto)
	userPrompt := s.buildUserPrompt(idea)

	logrus.WithField("idea", idea).Info("🎬 开始生成剧本")

	raw, err := s.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	story, err := ParseStory(raw)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"title":  story.Title,
		"scenes": len(story.Scenes),
	}).Info("✅ 剧本生成成功")

	return story, nil
}

// buildSystemPrompt 构建系统指令：总时长、固定场景数、三幕结构、用户即主角
func (s *ScriptService) buildSystemPrompt(hasReferencePhoto bool) string {
	totalSec := int(s.cfg.TargetDuration.Seconds())
	sceneSec := int(s.cfg.SceneDuration.Seconds())
	photoClause := ""
	if hasReferencePhoto {
		photoClause = "has uploaded a photo of themselves and "
	}

	return fmt.Sprintf(`You are a creative movie script writer. Create engaging, personalized short movie stories based on user descriptions.

Guidelines:
- Create a complete short story that lasts about %d seconds in total.
- Structure into %d scenes of ~%d seconds each to align with fixed-length video generation.
- Make it cinematic and engaging; include clear camera language and visual details.
- The user is the protagonist always.
- Ensure character, face, clothing, and identity continuity across scenes.
- Include a satisfying conclusion (three-act arc mapped across the %d scenes).
- Make it suitable for all audiences unless specifically requested otherwise.

The user %swants you to create a movie story.`,
		totalSec, s.cfg.SceneCount, sceneSec, s.cfg.SceneCount, photoClause)
}

// buildUserPrompt 构建用户指令，内含严格的JSON输出格式约定
func (s *ScriptService) buildUserPrompt(idea string) string {
	return fmt.Sprintf(`Create a movie story based on this description: "%s"

Please write a complete, engaging short movie story using the three acts structure.

Use a JSON format for the output:
{
    "title": "Title of the movie",
    "description": "Description of the movie",
    "music": "description as a prompt to generate music",

    "scenes": [
        {
            "title": "Title of the scene",
            "description": "Description of the scene as a prompt to generate video",
            "dialogues": [
                {
                    "name": "Name of the character",
                    "description": "Description of the gender, tone, accent and other elements of the audio, as a prompt to generate audio from text",
                    "dialogue": "Dialogue of the character"
                }
            ],
            "fx": "description to generate the fx"
        }
    ]
}`, idea)
}

// ParseStory 解析LLM返回的剧本文本
// 先尝试整体解析；失败后截取首个'{'到末个'}'之间的子串再试，
// 以容忍模型在JSON前后附加的说明文字
func ParseStory(raw string) (*models.Story, error) {
	var story models.Story

	if err := json.Unmarshal([]byte(raw), &story); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, apperrors.NewScriptGenerationError("LLM输出不是有效的JSON", err)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &story); err != nil {
			return nil, apperrors.NewScriptGenerationError("无法从LLM输出中提取JSON剧本", err)
		}
	}

	if err := validateStory(&story); err != nil {
		return nil, err
	}

	// 场景索引以数组位置为准，强制0起始、连续
	for i := range story.Scenes {
		story.Scenes[i].Index = i
	}

	return &story, nil
}

// validateStory 校验必需字段：scenes非空，每个场景的dialogues数组存在
func validateStory(story *models.Story) error {
	if len(story.Scenes) == 0 {
		return apperrors.NewScriptGenerationError("剧本缺少scenes字段", nil)
	}

	for i, scene := range story.Scenes {
		if scene.Dialogues == nil {
			return apperrors.NewScriptGenerationError(
				fmt.Sprintf("场景%d缺少dialogues数组", i), nil)
		}
		if strings.TrimSpace(scene.Description) == "" {
			return apperrors.NewScriptGenerationError(
				fmt.Sprintf("场景%d缺少视频描述", i), nil)
		}
	}

	return nil
}

// FlattenDialogues 把所有场景的台词展平成一个有序列表，供并行TTS调度
// 每行保留来源场景索引与场景内序号
func FlattenDialogues(story *models.Story) []models.DialogueLine {
	var lines []models.DialogueLine
	for sceneIndex, scene := range story.Scenes {
		for dialogueIndex, d := range scene.Dialogues {
			lines = append(lines, models.DialogueLine{
				SceneIndex:    sceneIndex,
				DialogueIndex: dialogueIndex,
				Name:          d.Name,
				Description:   d.Description,
				Dialogue:      d.Dialogue,
			})
		}
	}
	return lines
}
