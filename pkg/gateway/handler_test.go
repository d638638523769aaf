package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/lkarlslund/claude-gateway/pkg/configcell"
	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
	"github.com/lkarlslund/claude-gateway/pkg/stats"
)

func testCell(t *testing.T, upstreamURL, dialect string) *configcell.Cell {
	t.Helper()
	snap := &gwconfig.Snapshot{
		Upstreams: []gwconfig.Upstream{
			{Endpoint: upstreamURL, Model: "forced-model", APIKeys: []string{"k1"}, Dialect: dialect},
		},
		Optimizations: map[string]bool{
			"enable_network_probe_mock":       true,
			"enable_fast_prefix_detection":    true,
			"enable_historical_analysis_mock": true,
			"enable_title_generation_skip":    true,
			"enable_suggestion_mode_skip":     true,
			"enable_filepath_extraction_mock": true,
		},
	}
	return configcell.New(snap)
}

func TestServeMessagesInterceptsQuotaProbe(t *testing.T) {
	cell := testCell(t, "https://unused.example", gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":1,"messages":[{"role":"user","content":"ping"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	content := resp["content"].([]any)[0].(map[string]any)
	require.Equal(t, "ok", content["text"])
}

func TestServeMessagesForwardsToAnthropicUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_x","type":"message","role":"assistant","model":"forced-model","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"text":"hi"`)
}

func TestServeMessagesForwardsToOpenAIUpstreamAndTranslates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"forced-model","choices":[{"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectOpenAI)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "end_turn", resp["stop_reason"])
	content := resp["content"].([]any)[0].(map[string]any)
	require.Equal(t, "hello there", content["text"])
}

func TestServeMessagesInterceptsCountTokensURL(t *testing.T) {
	cell := testCell(t, "https://unused.example", gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages/count_tokens", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	content := resp["content"].([]any)[0].(map[string]any)
	require.Equal(t, "ok", content["text"])
}

func TestServeMessagesForwardsAnthropicVersionHeader(t *testing.T) {
	var gotVersion string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_x","type":"message","role":"assistant","model":"forced-model","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	req.Header.Set("anthropic-version", "2023-06-01")
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2023-06-01", gotVersion)
}

func TestServeMessagesPassesThroughInboundPathSuffix(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/complete", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_x","type":"message","role":"assistant","model":"forced-model","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/complete", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeMessagesStreamingForwardsUpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"stream":true,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "rate_limit_error")
}

func TestServeMessagesStreamingOpenAIUpstreamErrorPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer upstream.Close()

	cell := testCell(t, upstream.URL, gwconfig.DialectOpenAI)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	body := `{"model":"claude-3-5-sonnet","max_tokens":256,"stream":true,"messages":[{"role":"user","content":"tell me a story about an elephant and its long memory"}]}`
	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "boom")
}

func TestServeMessagesRejectsMalformedBody(t *testing.T) {
	cell := testCell(t, "https://unused.example", gwconfig.DialectAnthropic)
	h := NewHandler(cell, stats.New(), log.New(io.Discard))

	req := httptest.NewRequest(http.MethodPost, "/claude/v1/messages", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.ServeMessages(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
