package translate

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestAnthropicToOpenAICollapsesSystemBlocks(t *testing.T) {
	sys, _ := json.Marshal([]anthropic.SystemBlock{
		{Type: "text", Text: "first"},
		{Type: "text", Text: "second"},
	})
	req := &anthropic.Request{
		MaxTokens: 256,
		System:    sys,
		Messages: []anthropic.Message{
			{Role: "user", Content: rawString("hello")},
		},
	}
	out, err := AnthropicToOpenAI(req, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", out.Model)
	require.Equal(t, 256, out.MaxTokens)
	require.Len(t, out.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, out.Messages[0].Role)
	require.Equal(t, "first\n\nsecond", out.Messages[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, out.Messages[1].Role)
	require.Equal(t, "hello", out.Messages[1].Content)
}

func TestAnthropicToOpenAIToolUseBecomesToolCalls(t *testing.T) {
	toolUse, _ := json.Marshal([]anthropic.ContentBlock{
		{Type: "tool_use", ID: "call_1", Name: "Bash", Input: json.RawMessage(`{"command":"ls"}`)},
	})
	toolResult, _ := json.Marshal([]anthropic.ContentBlock{
		{Type: "tool_result", ToolUseID: "call_1", Content: rawString("file1\nfile2")},
	})
	req := &anthropic.Request{
		Messages: []anthropic.Message{
			{Role: "assistant", Content: toolUse},
			{Role: "user", Content: toolResult},
		},
	}
	out, err := AnthropicToOpenAI(req, "gpt-4o")
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)

	assistant := out.Messages[0]
	require.Equal(t, openai.ChatMessageRoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	require.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	require.Equal(t, "Bash", assistant.ToolCalls[0].Function.Name)
	require.JSONEq(t, `{"command":"ls"}`, assistant.ToolCalls[0].Function.Arguments)

	toolMsg := out.Messages[1]
	require.Equal(t, openai.ChatMessageRoleTool, toolMsg.Role)
	require.Equal(t, "call_1", toolMsg.ToolCallID)
	require.Equal(t, "file1\nfile2", toolMsg.Content)
}

func TestAnthropicToOpenAIImageBecomesDataURI(t *testing.T) {
	img, _ := json.Marshal([]anthropic.ContentBlock{
		{Type: "image", Source: &anthropic.ImageSource{Type: "base64", MediaType: "image/png", Data: "aGVsbG8="}},
	})
	req := &anthropic.Request{
		Messages: []anthropic.Message{{Role: "user", Content: img}},
	}
	out, err := AnthropicToOpenAI(req, "gpt-4o")
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	require.Len(t, out.Messages[0].MultiContent, 1)
	require.Equal(t, "data:image/png;base64,aGVsbG8=", out.Messages[0].MultiContent[0].ImageURL.URL)
}

func TestAnthropicToOpenAIWrapsToolSchema(t *testing.T) {
	req := &anthropic.Request{
		Tools: []anthropic.Tool{
			{Name: "Bash", Description: "run a shell command", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
		Messages: []anthropic.Message{{Role: "user", Content: rawString("hi")}},
	}
	out, err := AnthropicToOpenAI(req, "gpt-4o")
	require.NoError(t, err)
	require.Len(t, out.Tools, 1)
	require.Equal(t, openai.ToolTypeFunction, out.Tools[0].Type)
	require.Equal(t, "Bash", out.Tools[0].Function.Name)
}

func TestAnthropicToOpenAIStopSequences(t *testing.T) {
	req := &anthropic.Request{
		StopSequences: []string{"\n\nHuman:"},
		Messages:      []anthropic.Message{{Role: "user", Content: rawString("hi")}},
	}
	out, err := AnthropicToOpenAI(req, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, []string{"\n\nHuman:"}, out.Stop)
}
