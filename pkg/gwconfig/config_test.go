package gwconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidConfig(t *testing.T) {
	doc := `
[[upstream]]
endpoint = "https://api.anthropic.com"
model = "claude-3-5-sonnet"
api_keys = ["k1", "k2"]

[[upstream]]
endpoint = "https://api.openai.com/v1/chat/completions"
model = "gpt-4o"
api_keys = ["k3"]
dialect = "openai"

[optimizations]
enable_title_generation_skip = false
`
	snap, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, snap.Upstreams, 2)
	require.Equal(t, DialectAnthropic, snap.Upstreams[0].Dialect)
	require.Equal(t, DialectOpenAI, snap.Upstreams[1].Dialect)
	require.False(t, snap.IsOptimizationEnabled("enable_title_generation_skip"))
	require.True(t, snap.IsOptimizationEnabled("enable_suggestion_mode_skip"))
}

func TestParseRejectsUnknownOptimization(t *testing.T) {
	doc := `
[[upstream]]
endpoint = "https://api.anthropic.com"
model = "claude-3-5-sonnet"
api_keys = ["k1"]

[optimizations]
enable_bogus_tag = true
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	doc := `
unexpected_field = true

[[upstream]]
endpoint = "https://api.anthropic.com"
model = "claude-3-5-sonnet"
api_keys = ["k1"]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestParseRequiresAtLeastOneUpstream(t *testing.T) {
	_, err := Parse([]byte(""))
	require.Error(t, err)
}

func TestParseRejectsEmptyAPIKeys(t *testing.T) {
	doc := `
[[upstream]]
endpoint = "https://api.anthropic.com"
model = "claude-3-5-sonnet"
api_keys = ["   "]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}
