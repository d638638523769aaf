package classifier

import (
	"encoding/json"
	"testing"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
	"github.com/stretchr/testify/require"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestClassifyQuotaProbe(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 1,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("ping")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagQuotaProbe, res.Tag)
}

func TestClassifyQuotaProbeEmptyMessages(t *testing.T) {
	req := &anthropic.Request{MaxTokens: 1}
	res := Classify(req)
	require.Equal(t, TagQuotaProbe, res.Tag)
}

func TestClassifyTitleGeneration(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 40,
		System:    rawString("Analyze if this message indicates a new conversation topic."),
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("hello there")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagTitleGeneration, res.Tag)
}

func TestClassifySuggestionModeMarker(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("[SUGGESTION MODE: on] what next?")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagSuggestionMode, res.Tag)
}

func TestClassifyHistoricalAnalysis(t *testing.T) {
	msgs := make([]anthropic.Message, 0, 9)
	for i := 0; i < 8; i++ {
		msgs = append(msgs, anthropic.Message{Role: "assistant", Content: rawString("did a thing")})
	}
	msgs = append(msgs, anthropic.Message{Role: "user", Content: rawString("provide a retrospective summary of this session")})
	req := &anthropic.Request{MaxTokens: 500, Messages: msgs}
	res := Classify(req)
	require.Equal(t, TagHistoricalAnalysis, res.Tag)
}

func TestClassifyFilepathExtraction(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("Command: grep -rn TODO src\nOutput: <src/main.go:12:TODO fix this\n\nend")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagFilepathExtraction, res.Tag)
	require.Equal(t, "grep -rn TODO src", res.Command)
	require.Equal(t, "src/main.go:12:TODO fix this", res.Output)
}

func TestClassifyFastPrefix(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("git status --short")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagFastPrefix, res.Tag)
	require.Equal(t, "git status", res.CommandPrefix)
}

func TestClassifyFastPrefixTwoWordStopsBeforeFlag(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("npm --silent install")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagFastPrefix, res.Tag)
	require.Equal(t, "npm", res.CommandPrefix)
}

func TestClassifyFastPrefixSkippedWithTools(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Tools:     []anthropic.Tool{{Name: "Bash"}},
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("git status --short")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagForward, res.Tag)
}

func TestClassifyForwardDefault(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 500,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("write me a poem about the sea")},
		},
	}
	res := Classify(req)
	require.Equal(t, TagForward, res.Tag)
}

func TestClassifyIsPure(t *testing.T) {
	req := &anthropic.Request{
		MaxTokens: 1,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("quota check")},
		},
	}
	first := Classify(req)
	second := Classify(req)
	require.Equal(t, first, second)
}
