package translate

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
)

// OpenAIToAnthropic reconstructs a non-streamed Anthropic Messages response
// from an OpenAI Chat Completions response, per §4.H's response-side
// mapping table.
func OpenAIToAnthropic(resp *openai.ChatCompletionResponse, requestedModel string) (*anthropic.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}
	choice := resp.Choices[0]

	blocks, err := choiceToBlocks(choice.Message)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	return &anthropic.Response{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    blocks,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage:      mapUsage(resp.Usage),
	}, nil
}

func choiceToBlocks(msg openai.ChatCompletionMessage) ([]anthropic.ContentBlock, error) {
	var blocks []anthropic.ContentBlock
	if msg.Content != "" {
		blocks = append(blocks, anthropic.ContentBlock{Type: "text", Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var input json.RawMessage
		if tc.Function.Arguments != "" {
			input = json.RawMessage(tc.Function.Arguments)
		} else {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, anthropic.ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	if len(blocks) == 0 {
		blocks = []anthropic.ContentBlock{{Type: "text", Text: ""}}
	}
	return blocks, nil
}

// mapFinishReason maps OpenAI's finish_reason onto Anthropic's stop_reason
// vocabulary per §4.H: stop→end_turn, length→max_tokens, tool_calls→tool_use.
func mapFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonStop:
		return "end_turn"
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_use"
	case openai.FinishReasonContentFilter:
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// mapUsage maps OpenAI's prompt_tokens/completion_tokens onto Anthropic's
// input_tokens/output_tokens naming, per §4.H's usage fallback-naming note.
func mapUsage(u openai.Usage) anthropic.Usage {
	return anthropic.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
}
