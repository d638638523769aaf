// Package rewriter applies the in-place transformations forward-bound
// requests go through before the upstream selector and translator see
// them: system-prompt pruning, tool-definition pruning, content-tag
// stripping, and thinking-block patching. Every rewrite only removes or
// normalizes; none introduces content, and re-applying the full pipeline
// to an already-rewritten request is a no-op.
package rewriter

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
)

// Rewrite mutates req in place, applying every transformation in §4.G
// against the selected upstream's declared endpoint/model capabilities.
func Rewrite(req *anthropic.Request, upstream gwconfig.Upstream) {
	req.System = pruneSystemPrompts(req.System)
	req.Tools = pruneTools(req.Tools, req.Messages)
	for i := range req.Messages {
		req.Messages[i].Content = stripContentTagsFromContent(req.Messages[i].Content)
	}
	host := hostOf(upstream.Endpoint)
	req.Thinking = patchThinking(req.Thinking, host, upstream.Model)
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Host
}

// pruneSystemPrompts drops any system block whose text matches the
// block-list exactly or as a prefix, retaining everything else (including
// user-supplied project context, which never matches the catalog).
func pruneSystemPrompts(raw json.RawMessage) json.RawMessage {
	texts := anthropic.SystemTexts(raw)
	if texts == nil {
		return raw
	}
	kept := make([]anthropic.SystemBlock, 0, len(texts))
	for _, t := range texts {
		if matchesAnyPrefix(t, systemPromptFilterMarkers) {
			continue
		}
		kept = append(kept, anthropic.SystemBlock{Type: "text", Text: t})
	}
	out, err := json.Marshal(kept)
	if err != nil {
		return raw
	}
	return out
}

func matchesAnyPrefix(text string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(text, m) {
			return true
		}
	}
	return false
}

// pruneTools drops rarely-used tools unless their name is referenced by a
// tool_use block anywhere in the message history.
func pruneTools(tools []anthropic.Tool, messages []anthropic.Message) []anthropic.Tool {
	if len(tools) == 0 {
		return tools
	}
	referenced := referencedToolNames(messages)
	kept := make([]anthropic.Tool, 0, len(tools))
	for _, t := range tools {
		if isRarelyUsed(t.Name) && !referenced[t.Name] {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func referencedToolNames(messages []anthropic.Message) map[string]bool {
	referenced := make(map[string]bool)
	for _, m := range messages {
		for _, b := range anthropic.ContentBlocks(m.Content) {
			if b.Type == "tool_use" && b.Name != "" {
				referenced[b.Name] = true
			}
		}
	}
	return referenced
}

func isRarelyUsed(name string) bool {
	for _, kw := range toolsDescriptionFilterKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// stripContentTagsFromContent removes every configured wrapper tag from
// every text block in a message's content, preserving inner content and
// the original content shape (string stays a string, blocks stay blocks).
func stripContentTagsFromContent(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		stripped := stripContentTags(s)
		out, _ := json.Marshal(stripped)
		return out
	}
	var blocks []anthropic.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return raw
	}
	for i := range blocks {
		if blocks[i].Type == "text" {
			blocks[i].Text = stripContentTags(blocks[i].Text)
		}
	}
	out, err := json.Marshal(blocks)
	if err != nil {
		return raw
	}
	return out
}

// stripContentTags removes every <tag>...</tag> pair in contentTagFilters
// from text, keeping whatever was between the tags.
func stripContentTags(text string) string {
	for _, f := range contentTagFilters {
		text = stripTagPairs(text, f.Open, f.Close)
	}
	return text
}

func stripTagPairs(text, open, close string) string {
	for {
		oi := strings.Index(text, open)
		if oi < 0 {
			return text
		}
		ci := strings.Index(text[oi+len(open):], close)
		if ci < 0 {
			return text
		}
		innerStart := oi + len(open)
		innerEnd := innerStart + ci
		inner := text[innerStart:innerEnd]
		text = text[:oi] + inner + text[innerEnd+len(close):]
	}
}
