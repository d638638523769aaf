// Package classifier inspects an incoming Anthropic-shaped request and
// assigns it one of seven closed classification tags. Classification is a
// pure function of the request: identical input always yields the same
// tag, and it never mutates what it inspects.
package classifier

import (
	"regexp"
	"strings"

	"github.com/lkarlslund/claude-gateway/pkg/anthropic"
)

// Tag is one member of the closed classification set from §3.
type Tag string

const (
	TagForward             Tag = "forward"
	TagQuotaProbe          Tag = "quota_probe"
	TagTitleGeneration     Tag = "title_generation"
	TagSuggestionMode      Tag = "suggestion_mode"
	TagHistoricalAnalysis  Tag = "historical_analysis"
	TagFilepathExtraction  Tag = "filepath_extraction"
	TagFastPrefix          Tag = "fast_prefix"
)

var quotaProbeRe = regexp.MustCompile(`^(ping|test|quota|probe)`)

// IsCountTokensPath reports whether suffix (the request path following
// "/claude") addresses the count_tokens endpoint. Checked ahead of body
// parsing: a count_tokens request is folded into TagQuotaProbe by URL
// alone, per §4.E, since its body need not match the ordinary message
// schema the rest of the classifier assumes.
func IsCountTokensPath(suffix string) bool {
	return strings.Contains(strings.ToLower(suffix), "count_tokens")
}

// Result carries the tag plus whatever the detector already extracted from
// the request body, so the mock response builder never has to re-derive it.
type Result struct {
	Tag           Tag
	CommandPrefix string // fast_prefix: the recognized shell command token
	Command       string // filepath_extraction: text after "Command:"
	Output        string // filepath_extraction: text after "Output:"
}

// Classify evaluates the detection rules in §4.E priority order and returns
// the first match, or TagForward if none apply. Text inspection is bounded
// to the first 4 KiB of concatenated content per the classifier's
// pathological-input guard.
func Classify(req *anthropic.Request) Result {
	if res, ok := detectQuotaProbe(req); ok {
		return res
	}
	if res, ok := detectTitleGeneration(req); ok {
		return res
	}
	if res, ok := detectSuggestionMode(req); ok {
		return res
	}
	if res, ok := detectHistoricalAnalysis(req); ok {
		return res
	}
	if res, ok := detectFilepathExtraction(req); ok {
		return res
	}
	if res, ok := detectFastPrefix(req); ok {
		return res
	}
	return Result{Tag: TagForward}
}

func detectQuotaProbe(req *anthropic.Request) (Result, bool) {
	if req.MaxTokens > 1 {
		return Result{}, false
	}
	if len(req.Messages) == 0 {
		return Result{Tag: TagQuotaProbe}, true
	}
	users := anthropic.UserMessages(req.Messages)
	if len(req.Messages) == 1 && len(users) == 1 {
		text := anthropic.Truncate(anthropic.ExtractText(users[0].Content))
		if quotaProbeRe.MatchString(strings.ToLower(strings.TrimSpace(text))) {
			return Result{Tag: TagQuotaProbe}, true
		}
	}
	return Result{}, false
}

func detectTitleGeneration(req *anthropic.Request) (Result, bool) {
	if req.MaxTokens > 64 {
		return Result{}, false
	}
	sysText := anthropic.Truncate(anthropic.LastSystemText(req.System))
	if containsAnyFold(sysText, titleGenerationPhrases) {
		return Result{Tag: TagTitleGeneration}, true
	}
	if first := firstUserText(req); first != "" && containsAnyFold(anthropic.Truncate(first), titleGenerationPhrases) {
		return Result{Tag: TagTitleGeneration}, true
	}
	return Result{}, false
}

func detectSuggestionMode(req *anthropic.Request) (Result, bool) {
	if intent, ok := req.Metadata["intent"].(string); ok && strings.EqualFold(intent, "suggestion") {
		return Result{Tag: TagSuggestionMode}, true
	}
	for _, m := range anthropic.UserMessages(req.Messages) {
		text := anthropic.Truncate(anthropic.ExtractText(m.Content))
		if strings.Contains(text, suggestionModeMarker) {
			return Result{Tag: TagSuggestionMode}, true
		}
		if containsAnyFold(text, suggestionModePhrases) {
			return Result{Tag: TagSuggestionMode}, true
		}
	}
	return Result{}, false
}

func detectHistoricalAnalysis(req *anthropic.Request) (Result, bool) {
	if len(req.Messages) < historicalAnalysisMinMessages {
		return Result{}, false
	}
	sysText := anthropic.Truncate(anthropic.LastSystemText(req.System))
	latest := anthropic.Truncate(lastUserText(req))
	if containsAnyFold(sysText, historicalAnalysisPhrases) || containsAnyFold(latest, historicalAnalysisPhrases) {
		return Result{Tag: TagHistoricalAnalysis}, true
	}
	return Result{}, false
}

func detectFilepathExtraction(req *anthropic.Request) (Result, bool) {
	users := anthropic.UserMessages(req.Messages)
	if len(req.Messages) != 1 || len(users) != 1 {
		return Result{}, false
	}
	text := anthropic.Truncate(anthropic.ExtractText(users[0].Content))
	ci := strings.Index(text, commandMarker)
	oi := strings.Index(text, outputMarker)
	if ci < 0 || oi < 0 || oi < ci {
		return Result{}, false
	}
	command := strings.TrimSpace(text[ci+len(commandMarker) : oi])
	output := strings.TrimSpace(text[oi+len(outputMarker):])
	output = strings.TrimPrefix(output, "<")
	if idx := strings.Index(output, "\n\n"); idx >= 0 {
		output = output[:idx]
	}
	return Result{Tag: TagFilepathExtraction, Command: command, Output: output}, true
}

func detectFastPrefix(req *anthropic.Request) (Result, bool) {
	if len(req.Tools) > 0 {
		return Result{}, false
	}
	users := anthropic.UserMessages(req.Messages)
	if len(req.Messages) != 1 || len(users) != 1 {
		return Result{}, false
	}
	text := anthropic.Truncate(anthropic.ExtractText(users[0].Content))
	cmd, ok := matchFastPrefixCommand(text)
	if !ok {
		return Result{}, false
	}
	return Result{Tag: TagFastPrefix, CommandPrefix: cmd}, true
}

func firstUserText(req *anthropic.Request) string {
	users := anthropic.UserMessages(req.Messages)
	if len(users) == 0 {
		return ""
	}
	return anthropic.ExtractText(users[0].Content)
}

func lastUserText(req *anthropic.Request) string {
	users := anthropic.UserMessages(req.Messages)
	if len(users) == 0 {
		return ""
	}
	return anthropic.ExtractText(users[len(users)-1].Content)
}

// OptimizationKeyFor maps a non-forward tag to the config optimization key
// that must be enabled for it to be honored, per §4.E's "a tag other than
// forward is honored only if the corresponding optimization bit is set".
func OptimizationKeyFor(tag Tag) string {
	switch tag {
	case TagQuotaProbe:
		return "enable_network_probe_mock"
	case TagFastPrefix:
		return "enable_fast_prefix_detection"
	case TagHistoricalAnalysis:
		return "enable_historical_analysis_mock"
	case TagTitleGeneration:
		return "enable_title_generation_skip"
	case TagSuggestionMode:
		return "enable_suggestion_mode_skip"
	case TagFilepathExtraction:
		return "enable_filepath_extraction_mock"
	default:
		return ""
	}
}
