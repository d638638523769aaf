// Package mockresponse synthesizes protocol-faithful Anthropic Messages
// API replies for requests the classifier intercepted, without ever
// contacting an upstream. It inspects only (tag, request), matching the
// pure-functional interception policy described alongside the classifier.
package mockresponse

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
	"github.com/lkarlslund/claude-gateway/pkg/classifier"
)

const (
	titleGenerationText    = "Untitled"
	historicalAnalysisText = "historical analysis passed."
	quotaProbeText         = "ok"
)

var filepathInOutputRe = regexp.MustCompile(`(?m)^\s*(?:\./)?[\w./-]+\.\w+`)

// estimateTokens is the naive length/4 estimate §4.F calls for when
// accounting for locally-synthesized responses.
func estimateTokens(s string) int {
	return len(s) / 4
}

// contentText derives the payload text for every tag per the §4.F table,
// using whatever the classifier already extracted into res.
func contentText(res classifier.Result, req *anthropic.Request) (text string) {
	switch res.Tag {
	case classifier.TagQuotaProbe:
		return quotaProbeText
	case classifier.TagTitleGeneration:
		return titleGenerationText
	case classifier.TagSuggestionMode:
		return ""
	case classifier.TagHistoricalAnalysis:
		return historicalAnalysisText
	case classifier.TagFilepathExtraction:
		return filepathExtractionJSON(res)
	case classifier.TagFastPrefix:
		return res.CommandPrefix
	default:
		return ""
	}
}

func filepathExtractionJSON(res classifier.Result) string {
	paths := extractFilepaths(res.Command)
	if len(paths) == 0 {
		paths = fallbackScanOutput(res.Output)
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// fallbackScanOutput is used whenever the command dispatch in filepaths.go
// yields no paths (a listing command, an unrecognized or malformed
// command, or a reading command without file arguments): it surfaces the
// bare file paths that start lines of the captured output.
func fallbackScanOutput(output string) []string {
	matches := filepathInOutputRe.FindAllString(output, -1)
	if matches == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func inputTokensFor(req *anthropic.Request) int {
	var total int
	for _, m := range req.Messages {
		total += estimateTokens(anthropic.ExtractText(m.Content))
	}
	for _, s := range anthropic.SystemTexts(req.System) {
		total += estimateTokens(s)
	}
	if total < 1 {
		total = 1
	}
	return total
}

// BuildNonStream produces the single-JSON-object response shape from
// §4.F for a non-streamed intercepted request.
func BuildNonStream(res classifier.Result, req *anthropic.Request) *anthropic.Response {
	text := contentText(res, req)
	return &anthropic.Response{
		ID:         nextMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage: anthropic.Usage{
			InputTokens:  inputTokensFor(req),
			OutputTokens: estimateTokens(text),
		},
	}
}

// sseChunkSize bounds how much text each content_block_delta event carries;
// the mock text is short enough that most tags emit in a single chunk, but
// chunking keeps the stream shape identical to a real multi-delta reply.
const sseChunkSize = 64

// WriteSSE emits the canonical event sequence from §4.F for a streamed
// intercepted request: message_start, content_block_start, one or more
// content_block_delta, content_block_stop, message_delta, message_stop.
func WriteSSE(w io.Writer, res classifier.Result, req *anthropic.Request) error {
	text := contentText(res, req)
	id := nextMessageID()

	if err := anthropic.WriteSSEEvent(w, "message_start", anthropic.MessageStartEvent(id, req.Model)); err != nil {
		return err
	}
	if err := anthropic.WriteSSEEvent(w, "content_block_start", anthropic.ContentBlockStartEvent(0, map[string]any{"type": "text", "text": ""})); err != nil {
		return err
	}
	for _, chunk := range chunkText(text, sseChunkSize) {
		if err := anthropic.WriteSSEEvent(w, "content_block_delta", anthropic.TextDeltaEvent(0, chunk)); err != nil {
			return err
		}
	}
	if err := anthropic.WriteSSEEvent(w, "content_block_stop", anthropic.ContentBlockStopEvent(0)); err != nil {
		return err
	}
	usage := anthropic.Usage{InputTokens: inputTokensFor(req), OutputTokens: estimateTokens(text)}
	if err := anthropic.WriteSSEEvent(w, "message_delta", anthropic.MessageDeltaEvent("end_turn", usage)); err != nil {
		return err
	}
	if err := anthropic.WriteSSEEvent(w, "message_stop", anthropic.MessageStopEvent()); err != nil {
		return err
	}
	return nil
}

func chunkText(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// Describe returns a short human-readable reason string for logging,
// mirroring original_source's OptimizationResponse.reason field.
func Describe(res classifier.Result) string {
	return fmt.Sprintf("intercepted as %s", res.Tag)
}
