package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/llm"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schemas"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

type fakeLLM struct {
	response string
	err      error
	last     llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.response, f.err
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake" }
func (f *fakeLLM) Close() error                  { return nil }

func TestLLMGenerator_GenerateContent(t *testing.T) {
	client := &fakeLLM{response: "```json\n{\"title\": \" 台積電還能追嗎 \", \"body\": \"內文\"}\n```"}
	g := NewLLMGenerator(client)

	out, err := g.GenerateContent(context.Background(), Request{
		Topic:         testTopic(),
		Persona:       types.PersonaProfile{Serial: "kol-1", DisplayName: "小明", StyleParams: map[string]string{"tone": "humorous"}},
		MaxTitleChars: 80,
		MinBodyChars:  80,
	})

	require.NoError(t, err)
	assert.Equal(t, "台積電還能追嗎", out.Title)
	assert.Equal(t, "內文", out.Body)
	assert.True(t, client.last.JSON)
	assert.Equal(t, llm.TierStandard, client.last.Tier)
	assert.Contains(t, client.last.System, "小明")
	assert.Contains(t, client.last.System, "- tone: humorous")
	assert.Contains(t, client.last.Prompt, "台積電法說會")
}

func TestLLMGenerator_RejectsInvalidOutput(t *testing.T) {
	client := &fakeLLM{response: `{"title": "only a title"}`}
	g := NewLLMGenerator(client)

	_, err := g.GenerateContent(context.Background(), Request{Topic: testTopic(), Persona: persona("kol-1")})

	require.Error(t, err)
	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBuildPrompts_Diversify(t *testing.T) {
	req := Request{Topic: testTopic(), Persona: persona("kol-1"), MaxTitleChars: 60, MinBodyChars: 120}

	_, plain, err := BuildPrompts(req)
	require.NoError(t, err)
	assert.Contains(t, plain, "60")
	assert.Contains(t, plain, "120")
	assert.Contains(t, plain, "semiconductor")
	assert.NotContains(t, plain, "{{.")

	req.Diversify = true
	req.AvoidTitles = []string{"X", "Y"}
	_, diversified, err := BuildPrompts(req)
	require.NoError(t, err)
	assert.Contains(t, diversified, "- X\n- Y")
	assert.True(t, len(diversified) > len(plain))
}
