// Package translate implements the bidirectional Anthropic Messages ↔
// OpenAI Chat Completions conversion engaged whenever the selected
// upstream's dialect is openai. The OpenAI-side shapes are the structs
// go-openai already defines, not hand-rolled map[string]any walking.
package translate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
)

// AnthropicToOpenAI converts an inbound Anthropic Messages request into the
// OpenAI Chat Completions shape the selected upstream expects, per §4.H.
// model is the upstream's forced model override, already resolved by the
// selector.
func AnthropicToOpenAI(req *anthropic.Request, model string) (*openai.ChatCompletionRequest, error) {
	out := &openai.ChatCompletionRequest{
		Model:  model,
		Stream: req.Stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	out.Stop = mapStopSequences(req.StopSequences)

	messages, err := convertMessages(req)
	if err != nil {
		return nil, fmt.Errorf("translate messages: %w", err)
	}
	out.Messages = messages

	if len(req.Tools) > 0 {
		out.Tools = convertTools(req.Tools)
	}

	return out, nil
}

// mapStopSequences collapses the stop_sequences array per the OpenAI
// field's own cardinality rules: omit when empty (handled by the caller
// leaving out.Stop nil), pass through otherwise. go-openai's Stop field is
// already []string, so no single-vs-array special casing is needed on the
// Go side — only the wire encoder cares, and that's encoding/json's job.
func mapStopSequences(stop []string) []string {
	if len(stop) == 0 {
		return nil
	}
	return stop
}

func convertMessages(req *anthropic.Request) ([]openai.ChatCompletionMessage, error) {
	var out []openai.ChatCompletionMessage

	if sysTexts := anthropic.SystemTexts(req.System); len(sysTexts) > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(sysTexts, "\n\n"),
		})
	}

	for _, m := range req.Messages {
		blocks := anthropic.ContentBlocks(m.Content)
		converted, err := convertOneMessage(m.Role, blocks)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

// convertOneMessage fans one Anthropic message out into one or more OpenAI
// messages: plain text/media stays attached to the role message; tool_use
// blocks become an assistant message carrying tool_calls; tool_result
// blocks become standalone tool messages keyed by tool_use_id.
func convertOneMessage(role string, blocks []anthropic.ContentBlock) ([]openai.ChatCompletionMessage, error) {
	var (
		parts     []openai.ChatMessagePart
		toolCalls []openai.ToolCall
		toolMsgs  []openai.ChatCompletionMessage
		plainText strings.Builder
		hasMedia  bool
	)

	for _, b := range blocks {
		switch b.Type {
		case "text":
			plainText.WriteString(b.Text)
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
		case "image":
			hasMedia = true
			url, err := imageBlockToDataURI(b)
			if err != nil {
				return nil, err
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		case "tool_use":
			args, _ := json.Marshal(rawOrEmptyObject(b.Input))
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   b.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		case "tool_result":
			toolMsgs = append(toolMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: b.ToolUseID,
				Content:    toolResultText(b),
			})
		}
	}

	var out []openai.ChatCompletionMessage
	if len(toolCalls) > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   plainText.String(),
			ToolCalls: toolCalls,
		})
	} else if hasMedia {
		out = append(out, openai.ChatCompletionMessage{Role: mapRole(role), MultiContent: parts})
	} else if plainText.Len() > 0 || len(blocks) == 0 {
		out = append(out, openai.ChatCompletionMessage{Role: mapRole(role), Content: plainText.String()})
	}
	out = append(out, toolMsgs...)
	return out, nil
}

func mapRole(role string) string {
	switch role {
	case "user":
		return openai.ChatMessageRoleUser
	case "assistant":
		return openai.ChatMessageRoleAssistant
	default:
		return role
	}
}

func toolResultText(b anthropic.ContentBlock) string {
	if len(b.Content) == 0 {
		return ""
	}
	return anthropic.ExtractText(b.Content)
}

func rawOrEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

// imageBlockToDataURI converts a base64 image source into a data: URI;
// URL-sourced images pass through unchanged, per §4.H.
func imageBlockToDataURI(b anthropic.ContentBlock) (string, error) {
	if b.Source == nil {
		return "", fmt.Errorf("image block missing source")
	}
	switch b.Source.Type {
	case "url":
		return b.Source.URL, nil
	case "base64":
		if _, err := base64.StdEncoding.DecodeString(b.Source.Data); err != nil {
			return "", fmt.Errorf("invalid base64 image data: %w", err)
		}
		mediaType := b.Source.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		return fmt.Sprintf("data:%s;base64,%s", mediaType, b.Source.Data), nil
	default:
		return "", fmt.Errorf("unsupported image source type %q", b.Source.Type)
	}
}

// convertTools wraps Anthropic's flat tool schema into OpenAI's
// {type:"function", function:{...}} shape.
func convertTools(tools []anthropic.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.InputSchema) > 0 {
			params = json.RawMessage(t.InputSchema)
		} else {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
