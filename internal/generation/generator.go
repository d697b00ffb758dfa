// Package generation turns an assignment into post content through the Generation API.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hihihowru/forum-autoposter-sub005/internal/llm"
	"github.com/hihihowru/forum-autoposter-sub005/internal/prompts"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schemas"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

const promptFile = "generation.json"

// Request is one generation call
type Request struct {
	WorkID  string
	Topic   types.Topic
	Persona types.PersonaProfile
	// Diversify asks for a title unlike AvoidTitles
	Diversify     bool
	AvoidTitles   []string
	MaxTitleChars int
	MinBodyChars  int
}

// Content is the generated post
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Generator is the Generation API: one synchronous call per attempt
type Generator interface {
	GenerateContent(ctx context.Context, req Request) (Content, error)
}

// LLMGenerator implements Generator on an llm.Client
type LLMGenerator struct {
	client llm.Client
	tier   llm.ModelTier
}

// NewLLMGenerator creates a generator using the standard model tier
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client, tier: llm.TierStandard}
}

// WithTier returns a copy of g that uses tier
func (g *LLMGenerator) WithTier(tier llm.ModelTier) *LLMGenerator {
	c := *g
	c.tier = tier
	return &c
}

// GenerateContent implements Generator
func (g *LLMGenerator) GenerateContent(ctx context.Context, req Request) (Content, error) {
	system, prompt, err := BuildPrompts(req)
	if err != nil {
		return Content{}, err
	}

	text, err := g.client.Generate(ctx, llm.Request{
		System: system,
		Prompt: prompt,
		Tier:   g.tier,
		JSON:   true,
	})
	if err != nil {
		return Content{}, err
	}

	cleaned := llm.CleanJSONBlock(text)
	if err := schemas.ValidateJSONString(schemas.GenerationOutput, cleaned); err != nil {
		return Content{}, fmt.Errorf("invalid generation output: %w", err)
	}

	var out Content
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return Content{}, fmt.Errorf("failed to decode generation output: %w", err)
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Body = strings.TrimSpace(out.Body)
	return out, nil
}

// BuildPrompts renders the system and user prompts for req
func BuildPrompts(req Request) (system, prompt string, err error) {
	systemTpl, err := prompts.Get(promptFile, "system")
	if err != nil {
		return "", "", err
	}
	postTpl, err := prompts.Get(promptFile, "post")
	if err != nil {
		return "", "", err
	}

	displayName := req.Persona.DisplayName
	if displayName == "" {
		displayName = req.Persona.Serial
	}
	system = prompts.Format(systemTpl, map[string]string{
		"DisplayName": displayName,
		"Style":       formatStyle(req.Persona.StyleParams),
	})

	prompt = prompts.Format(postTpl, map[string]string{
		"TopicTitle":    req.Topic.Title,
		"TopicBody":     orNone(req.Topic.Body),
		"Origin":        string(req.Topic.Origin),
		"Tags":          orNone(strings.Join(req.Topic.Tags.All(), ", ")),
		"Instruments":   orNone(strings.Join(req.Topic.Tags.InstrumentTags, ", ")),
		"MaxTitleChars": strconv.Itoa(req.MaxTitleChars),
		"MinBodyChars":  strconv.Itoa(req.MinBodyChars),
	})

	if req.Diversify && len(req.AvoidTitles) > 0 {
		diversifyTpl, err := prompts.Get(promptFile, "diversify")
		if err != nil {
			return "", "", err
		}
		prompt += prompts.Format(diversifyTpl, map[string]string{
			"AvoidTitles": "- " + strings.Join(req.AvoidTitles, "\n- "),
		})
	}
	return system, prompt, nil
}

func formatStyle(params map[string]string) string {
	if len(params) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, params[k]))
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
