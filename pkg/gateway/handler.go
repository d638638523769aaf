// Package gateway wires together the selector, classifier, rewriter,
// translator, and forwarder into the single HTTP handler that implements
// the proxy's request lifecycle from §2: classify, intercept or rewrite,
// pick an upstream, translate if needed, forward, translate the reply
// back, record stats.
package gateway

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
	"github.com/lkarlslund/claude-gateway/pkg/classifier"
	"github.com/lkarlslund/claude-gateway/pkg/configcell"
	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
	"github.com/lkarlslund/claude-gateway/pkg/mockresponse"
	"github.com/lkarlslund/claude-gateway/pkg/rewriter"
	"github.com/lkarlslund/claude-gateway/pkg/selector"
	"github.com/lkarlslund/claude-gateway/pkg/stats"
	"github.com/lkarlslund/claude-gateway/pkg/translate"
)

// Handler serves every POST under /claude/: each request body is read as
// an Anthropic Messages request, and the path suffix after /claude is
// forwarded to Anthropic-dialect upstreams as-is, per §6.
type Handler struct {
	cell      *configcell.Cell
	selector  *selector.Selector
	forwarder *Forwarder
	registry  *stats.Registry
	logger    *log.Logger
}

func NewHandler(cell *configcell.Cell, registry *stats.Registry, logger *log.Logger) *Handler {
	return &Handler{
		cell:      cell,
		selector:  selector.New(cell),
		forwarder: NewForwarder(),
		registry:  registry,
		logger:    logger,
	}
}

func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	suffix := requestSuffix(r)
	anthropicVersion := r.Header.Get("anthropic-version")

	body, err := readBody(r)
	if err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	snap := h.cell.Load()

	// count_tokens probes are detected by path suffix alone, ahead of body
	// parsing, per §4.E's quota_probe folding: such requests don't
	// necessarily carry the full message schema the rest of the handler
	// expects.
	if classifier.IsCountTokensPath(suffix) && snap.IsOptimizationEnabled(classifier.OptimizationKeyFor(classifier.TagQuotaProbe)) {
		var probe anthropic.Request
		_ = json.Unmarshal(body, &probe)
		h.registry.Record(stats.TotalRequests, 1)
		h.registry.Record(stats.InterceptedRequests, 1)
		h.logger.Info("intercepted request", "tag", classifier.TagQuotaProbe, "reason", "count_tokens url")
		h.serveIntercepted(w, &probe, classifier.Result{Tag: classifier.TagQuotaProbe})
		return
	}

	var req anthropic.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "malformed request body")
		return
	}

	h.registry.Record(stats.TotalRequests, 1)
	h.recordInputStats(&req)

	if tag := classifier.Classify(&req); tag.Tag != classifier.TagForward {
		if snap.IsOptimizationEnabled(classifier.OptimizationKeyFor(tag.Tag)) {
			h.registry.Record(stats.InterceptedRequests, 1)
			h.logger.Info("intercepted request", "tag", tag.Tag, "reason", mockresponse.Describe(tag))
			h.serveIntercepted(w, &req, tag)
			return
		}
	}

	pick, err := h.selector.Pick()
	if err != nil {
		writeAnthropicError(w, http.StatusServiceUnavailable, "overloaded_error", err.Error())
		return
	}

	upstream := gwconfig.Upstream{Endpoint: pick.Endpoint, Model: pick.Model, Dialect: pick.Dialect}
	rewriter.Rewrite(&req, upstream)
	req.Model = pick.Model

	if req.Stream {
		h.forwardStreaming(ctx, w, &req, pick, suffix, anthropicVersion)
		return
	}
	h.forwardBuffered(ctx, w, &req, pick, suffix, anthropicVersion)
}

// requestSuffix recovers the path following "/claude" that the wildcard
// route captured, per §6 ("the suffix after /claude/ is appended to the
// selected upstream endpoint"). Falls back to trimming the request's own
// URL path when no chi route context is present (e.g. a handler invoked
// directly in a test), so the two paths agree.
func requestSuffix(r *http.Request) string {
	if wild := chi.URLParam(r, "*"); wild != "" {
		return "/" + wild
	}
	suffix := strings.TrimPrefix(r.URL.Path, "/claude")
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return suffix
}

func (h *Handler) recordInputStats(req *anthropic.Request) {
	var history, latest, system int64
	users := anthropic.UserMessages(req.Messages)
	for i, m := range req.Messages {
		n := int64(len(anthropic.ExtractText(m.Content)) / 4)
		if len(users) > 0 && i == len(req.Messages)-1 && m.Role == "user" {
			latest += n
		} else {
			history += n
		}
	}
	for _, s := range anthropic.SystemTexts(req.System) {
		system += int64(len(s) / 4)
	}
	h.registry.Record(stats.InputTokens, latest)
	h.registry.Record(stats.HistoryTokens, history)
	h.registry.Record(stats.SystemTokens, system)
}

func (h *Handler) serveIntercepted(w http.ResponseWriter, req *anthropic.Request, tag classifier.Result) {
	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if err := mockresponse.WriteSSE(w, tag, req); err != nil {
			h.logger.Error("write intercepted sse", "err", err)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}
	resp := mockresponse.BuildNonStream(tag, req)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) forwardBuffered(ctx context.Context, w http.ResponseWriter, req *anthropic.Request, pick selector.Pick, suffix, anthropicVersion string) {
	outboundBody, pathSuffix, err := h.encodeOutbound(req, pick, suffix)
	if err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
		return
	}

	status, _, respBody, err := h.forwarder.ForwardBuffered(ctx, pick.Endpoint, pathSuffix, pick.Key, anthropicVersion, outboundBody)
	if err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
		return
	}
	if status >= 400 {
		w.WriteHeader(status)
		_, _ = w.Write(respBody)
		return
	}

	if pick.Dialect == gwconfig.DialectOpenAI {
		var openaiResp openai.ChatCompletionResponse
		if err := json.Unmarshal(respBody, &openaiResp); err != nil {
			writeAnthropicError(w, http.StatusBadGateway, "api_error", "malformed upstream response")
			return
		}
		translated, err := translate.OpenAIToAnthropic(&openaiResp, pick.Model)
		if err != nil {
			writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
			return
		}
		h.registry.Record(stats.AssistantTokens, int64(translated.Usage.OutputTokens))
		writeJSON(w, http.StatusOK, translated)
		return
	}

	var anthropicResp anthropic.Response
	if err := json.Unmarshal(respBody, &anthropicResp); err == nil {
		h.registry.Record(stats.AssistantTokens, int64(anthropicResp.Usage.OutputTokens))
		h.registry.Record(stats.CacheReadTokens, int64(anthropicResp.Usage.CacheReadInputTokens))
		h.registry.Record(stats.CacheCreationTokens, int64(anthropicResp.Usage.CacheCreationInputTokens))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBody)
}

func (h *Handler) forwardStreaming(ctx context.Context, w http.ResponseWriter, req *anthropic.Request, pick selector.Pick, suffix, anthropicVersion string) {
	outboundBody, pathSuffix, err := h.encodeOutbound(req, pick, suffix)
	if err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	statusSent := false

	// onStatus fires once, with the real upstream status, before any chunk
	// reaches handle. The response's status line must reflect it: per §7
	// ("Upstream non-2xx status | Status + body forwarded verbatim") a
	// streaming request gets no exception, so a failing upstream is never
	// reported to the client as a bare 200 OK.
	writeStatus := func(status int) {
		if status < 400 {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
		}
		w.WriteHeader(status)
		statusSent = true
	}

	if pick.Dialect == gwconfig.DialectOpenAI {
		pr, pw := io.Pipe()
		messageID := fmt.Sprintf("msg_%d", time.Now().UnixMilli())
		done := make(chan error, 1)
		translating := false

		onStatus := func(status int, _ http.Header) {
			writeStatus(status)
			if status < 400 {
				translating = true
				go func() {
					done <- translate.StreamOpenAIToAnthropic(w, pr, messageID, pick.Model)
				}()
			}
		}

		status, _, err := h.forwarder.ForwardStream(ctx, pick.Endpoint, pathSuffix, pick.Key, anthropicVersion, outboundBody, onStatus, func(chunk []byte) error {
			if !translating {
				// Upstream failed: the body is an error payload, not an
				// OpenAI SSE stream, so it is forwarded verbatim rather
				// than fed through the translator.
				_, werr := w.Write(chunk)
				if flusher != nil {
					flusher.Flush()
				}
				return werr
			}
			_, werr := pw.Write(chunk)
			return werr
		})
		if translating {
			pw.Close()
			<-done
		}
		if !statusSent {
			// The upstream connection itself never succeeded (onStatus
			// never fired): nothing has been written yet, so a proper
			// error response can still be sent instead of an implicit 200.
			writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
			return
		}
		if err != nil || status >= 400 {
			h.logger.Error("openai stream forward failed", "status", status, "err", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	onStatus := func(status int, _ http.Header) {
		writeStatus(status)
	}
	_, _, err = h.forwarder.ForwardStream(ctx, pick.Endpoint, pathSuffix, pick.Key, anthropicVersion, outboundBody, onStatus, func(chunk []byte) error {
		if _, werr := w.Write(chunk); werr != nil {
			return werr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if !statusSent {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("anthropic stream forward failed", "err", err)
	}
}

// encodeOutbound marshals req into the wire shape the upstream dialect
// expects and returns the path suffix to append to the endpoint. An
// OpenAI-dialect upstream always receives the translated body at the Chat
// Completions path, since translation retargets the wire shape regardless
// of which Anthropic-side path the client used; an Anthropic-dialect
// upstream is a literal passthrough, so it gets the client's own inbound
// suffix per §6 ("the suffix after /claude/ is appended to the selected
// upstream endpoint").
func (h *Handler) encodeOutbound(req *anthropic.Request, pick selector.Pick, suffix string) ([]byte, string, error) {
	if pick.Dialect == gwconfig.DialectOpenAI {
		openaiReq, err := translate.AnthropicToOpenAI(req, pick.Model)
		if err != nil {
			return nil, "", fmt.Errorf("translate to openai: %w", err)
		}
		b, err := json.Marshal(openaiReq)
		if err != nil {
			return nil, "", fmt.Errorf("marshal openai request: %w", err)
		}
		return b, "/chat/completions", nil
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("marshal anthropic request: %w", err)
	}
	return b, suffix, nil
}

func readBody(r *http.Request) ([]byte, error) {
	reader := r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("decompress request body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(io.LimitReader(reader, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAnthropicError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
