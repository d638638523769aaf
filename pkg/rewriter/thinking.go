package rewriter

import (
	"encoding/json"
	"strings"
)

// thinkingSupport classifies how an upstream handles the Anthropic
// `thinking` request field.
type thinkingSupport int

const (
	// thinkingPassthrough forwards whatever the client sent, unmodified —
	// the default for any upstream not present in the capability table.
	thinkingPassthrough thinkingSupport = iota
	// thinkingUnsupported means the upstream rejects the field entirely; it
	// must be stripped.
	thinkingUnsupported
	// thinkingRequiresInjection means the upstream needs an explicit
	// enabled block even if the client didn't ask for one.
	thinkingRequiresInjection
)

type capabilityKey struct {
	hostSubstring string
	modelPrefix   string
}

// thinkingCapabilities is the constant table Design Notes §9 calls for,
// keyed by (endpoint host substring, model prefix). Seeded with the hosts
// represented in this repo's example upstream configs; operators extend it
// as providers evolve.
var thinkingCapabilities = map[capabilityKey]thinkingSupport{
	{hostSubstring: "api.openai.com", modelPrefix: "gpt-"}:        thinkingUnsupported,
	{hostSubstring: "api.openai.com", modelPrefix: "o1"}:          thinkingRequiresInjection,
	{hostSubstring: "api.openai.com", modelPrefix: "o3"}:          thinkingRequiresInjection,
	{hostSubstring: "openrouter.ai", modelPrefix: "anthropic/"}:   thinkingPassthrough,
}

const defaultThinkingBudgetTokens = 10000

func capabilityFor(host, model string) thinkingSupport {
	host = strings.ToLower(host)
	for key, support := range thinkingCapabilities {
		if strings.Contains(host, key.hostSubstring) && strings.HasPrefix(model, key.modelPrefix) {
			return support
		}
	}
	return thinkingPassthrough
}

// patchThinking strips or injects the `thinking` field in place per the
// upstream's declared capability. Returns the (possibly unchanged) raw
// field value.
func patchThinking(thinking json.RawMessage, host, model string) json.RawMessage {
	switch capabilityFor(host, model) {
	case thinkingUnsupported:
		return nil
	case thinkingRequiresInjection:
		if len(thinking) > 0 {
			return thinking
		}
		injected, _ := json.Marshal(map[string]any{
			"type":          "enabled",
			"budget_tokens": defaultThinkingBudgetTokens,
		})
		return injected
	default:
		return thinking
	}
}
