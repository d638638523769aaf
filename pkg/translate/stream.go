package translate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
)

// blockKind tracks what the currently open Anthropic content block is, so
// Feed knows whether to emit a text_delta or an input_json_delta for
// the next fragment it sees.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockToolUse
)

// openToolCall records one tool call's id, name, and Anthropic block index
// across however many OpenAI stream chunks it arrives split over —
// go-openai's delta shape sends the id and name once, then streams
// arguments incrementally. Argument fragments are not accumulated here;
// each one is emitted as an input_json_delta as soon as it arrives.
type openToolCall struct {
	id    string
	name  string
	index int
}

// StreamState is the per-connection state a streaming OpenAI→Anthropic
// translation accumulates across chunks. One StreamState is created per
// forwarded request and fed every chunk in order.
type StreamState struct {
	messageID    string
	model        string
	started      bool
	blockOpen    blockKind
	blockIndex   int
	nextIndex    int
	toolCalls    map[int]*openToolCall // keyed by OpenAI's tool_calls array index
	usage        anthropic.Usage
	finishReason openai.FinishReason
}

// NewStreamState begins tracking a new streamed response. messageID is
// used verbatim as the message_start id; the gateway handler passes
// msg_<unix-millis>, which differs from the mock builder's
// msg_<unix-millis>_<sequence> shape.
func NewStreamState(messageID, model string) *StreamState {
	return &StreamState{
		messageID: messageID,
		model:     model,
		toolCalls: make(map[int]*openToolCall),
	}
}

// Feed consumes one OpenAI stream chunk and writes the equivalent Anthropic
// SSE events to w, opening/closing content blocks as the chunk's delta
// shape transitions between plain text and tool-call argument fragments.
func (s *StreamState) Feed(w io.Writer, chunk *openai.ChatCompletionStreamResponse) error {
	if !s.started {
		s.started = true
		if err := anthropic.WriteSSEEvent(w, "message_start", anthropic.MessageStartEvent(s.messageID, s.model)); err != nil {
			return err
		}
	}
	if chunk.Usage != nil {
		s.usage = mapUsage(*chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		s.finishReason = choice.FinishReason
	}

	delta := choice.Delta
	if delta.Content != "" {
		if err := s.ensureBlock(w, blockText, nil); err != nil {
			return err
		}
		if err := anthropic.WriteSSEEvent(w, "content_block_delta", anthropic.TextDeltaEvent(s.blockIndex, delta.Content)); err != nil {
			return err
		}
	}
	for _, tc := range delta.ToolCalls {
		if err := s.feedToolCallDelta(w, tc); err != nil {
			return err
		}
	}
	return nil
}

func (s *StreamState) feedToolCallDelta(w io.Writer, tc openai.ToolCall) error {
	idx := tc.Index
	if idx == nil {
		zero := 0
		idx = &zero
	}
	entry, known := s.toolCalls[*idx]
	if !known {
		entry = &openToolCall{id: tc.ID, name: tc.Function.Name}
		s.toolCalls[*idx] = entry
		stub := map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Function.Name, "input": map[string]any{}}
		if err := s.ensureBlock(w, blockToolUse, stub); err != nil {
			return err
		}
		entry.index = s.blockIndex
	}
	if tc.Function.Arguments == "" {
		return nil
	}
	return anthropic.WriteSSEEvent(w, "content_block_delta", anthropic.InputJSONDeltaEvent(entry.index, tc.Function.Arguments))
}

// ensureBlock closes whatever block is open when the kind changes, then
// opens a fresh block of the requested kind. block is the content_block
// stub used only when opening a tool_use block; text blocks use a fixed
// empty-text stub.
func (s *StreamState) ensureBlock(w io.Writer, kind blockKind, block map[string]any) error {
	if s.blockOpen == kind && kind == blockText {
		return nil
	}
	if kind == blockToolUse {
		// Each tool call is its own block; opening one never reuses the
		// previous index even if the previous block was also a tool_use.
		if s.blockOpen != blockNone {
			if err := anthropic.WriteSSEEvent(w, "content_block_stop", anthropic.ContentBlockStopEvent(s.blockIndex)); err != nil {
				return err
			}
		}
		s.blockIndex = s.nextIndex
		s.nextIndex++
		s.blockOpen = blockToolUse
		return anthropic.WriteSSEEvent(w, "content_block_start", anthropic.ContentBlockStartEvent(s.blockIndex, block))
	}

	if s.blockOpen != blockNone {
		if s.blockOpen == blockText {
			return nil
		}
		if err := anthropic.WriteSSEEvent(w, "content_block_stop", anthropic.ContentBlockStopEvent(s.blockIndex)); err != nil {
			return err
		}
	}
	s.blockIndex = s.nextIndex
	s.nextIndex++
	s.blockOpen = blockText
	return anthropic.WriteSSEEvent(w, "content_block_start", anthropic.ContentBlockStartEvent(s.blockIndex, map[string]any{"type": "text", "text": ""}))
}

// Close emits the terminal content_block_stop (if a block is still open),
// message_delta, and message_stop events, completing the canonical
// six-stage sequence regardless of how many content blocks were streamed.
func (s *StreamState) Close(w io.Writer) error {
	if s.blockOpen != blockNone {
		if err := anthropic.WriteSSEEvent(w, "content_block_stop", anthropic.ContentBlockStopEvent(s.blockIndex)); err != nil {
			return err
		}
		s.blockOpen = blockNone
	}
	stopReason := mapFinishReason(s.finishReason)
	if err := anthropic.WriteSSEEvent(w, "message_delta", anthropic.MessageDeltaEvent(stopReason, s.usage)); err != nil {
		return err
	}
	return anthropic.WriteSSEEvent(w, "message_stop", anthropic.MessageStopEvent())
}

// ParseSSELine scans one line of an OpenAI SSE stream and, if it carries a
// data payload, unmarshals it into a ChatCompletionStreamResponse. Returns
// ok=false for blank lines, comments, and the terminal "[DONE]" marker.
func ParseSSELine(line string) (chunk *openai.ChatCompletionStreamResponse, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return nil, false, nil
	}
	data, found := strings.CutPrefix(line, "data:")
	if !found {
		return nil, false, nil
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return nil, false, nil
	}
	var c openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, false, fmt.Errorf("parse openai stream chunk: %w", err)
	}
	return &c, true, nil
}

// StreamOpenAIToAnthropic reads a raw OpenAI SSE body from r line by line
// and writes the translated canonical Anthropic SSE sequence to w, driving
// one StreamState from start to Close.
func StreamOpenAIToAnthropic(w io.Writer, r io.Reader, messageID, model string) error {
	state := NewStreamState(messageID, model)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		chunk, ok, err := ParseSSELine(scanner.Text())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := state.Feed(w, chunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read openai stream: %w", err)
	}
	return state.Close(w)
}
