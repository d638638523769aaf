package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSEEvent frames one Server-Sent Event in the shape both the mock
// response builder and the streaming translator emit: "event: <name>\n
// data: <json>\n\n". Returns an error on the underlying write failing, not
// on marshal failure of a well-formed payload (callers pass map[string]any
// literals here, never user-controlled values that could fail to marshal).
func WriteSSEEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload for %s: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// MessageStartEvent is the first event of every Anthropic SSE stream.
func MessageStartEvent(id, model string) map[string]any {
	return map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            id,
			"type":          "message",
			"role":          "assistant",
			"model":         model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	}
}

// ContentBlockStartEvent opens a content block at index with the given
// block shape (e.g. {"type":"text","text":""} or a tool_use stub).
func ContentBlockStartEvent(index int, block map[string]any) map[string]any {
	return map[string]any{
		"type":          "content_block_start",
		"index":         index,
		"content_block": block,
	}
}

// TextDeltaEvent emits one chunk of streamed text for the block at index.
func TextDeltaEvent(index int, text string) map[string]any {
	return map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "text_delta", "text": text},
	}
}

// InputJSONDeltaEvent emits one chunk of a streamed tool_use argument blob.
func InputJSONDeltaEvent(index int, partialJSON string) map[string]any {
	return map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": partialJSON},
	}
}

// ContentBlockStopEvent closes the block at index.
func ContentBlockStopEvent(index int) map[string]any {
	return map[string]any{"type": "content_block_stop", "index": index}
}

// MessageDeltaEvent carries the terminal stop_reason and usage totals.
func MessageDeltaEvent(stopReason string, usage Usage) map[string]any {
	return map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   stopReason,
			"stop_sequence": nil,
		},
		"usage": usage,
	}
}

// MessageStopEvent is the final event of every Anthropic SSE stream.
func MessageStopEvent() map[string]any {
	return map[string]any{"type": "message_stop"}
}
