package translate

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestOpenAIToAnthropicMapsTextResponse(t *testing.T) {
	resp := &openai.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o",
		Choices: []openai.ChatCompletionChoice{
			{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hi there"},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 3},
	}
	out, err := OpenAIToAnthropic(resp, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "chatcmpl-1", out.ID)
	require.Equal(t, "assistant", out.Role)
	require.Equal(t, "end_turn", out.StopReason)
	require.Len(t, out.Content, 1)
	require.Equal(t, "text", out.Content[0].Type)
	require.Equal(t, "hi there", out.Content[0].Text)
	require.Equal(t, 10, out.Usage.InputTokens)
	require.Equal(t, 3, out.Usage.OutputTokens)
}

func TestOpenAIToAnthropicMapsToolCalls(t *testing.T) {
	resp := &openai.ChatCompletionResponse{
		ID: "chatcmpl-2",
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{
						{ID: "call_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "Bash", Arguments: `{"command":"ls"}`}},
					},
				},
				FinishReason: openai.FinishReasonToolCalls,
			},
		},
	}
	out, err := OpenAIToAnthropic(resp, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "tool_use", out.StopReason)
	require.Len(t, out.Content, 1)
	require.Equal(t, "tool_use", out.Content[0].Type)
	require.Equal(t, "Bash", out.Content[0].Name)
	require.JSONEq(t, `{"command":"ls"}`, string(out.Content[0].Input))
}

func TestOpenAIToAnthropicMapsLengthFinish(t *testing.T) {
	resp := &openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "truncated"}, FinishReason: openai.FinishReasonLength},
		},
	}
	out, err := OpenAIToAnthropic(resp, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "max_tokens", out.StopReason)
}

func TestOpenAIToAnthropicErrorsOnNoChoices(t *testing.T) {
	_, err := OpenAIToAnthropic(&openai.ChatCompletionResponse{}, "gpt-4o")
	require.Error(t, err)
}
