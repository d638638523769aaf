package classifier

import "strings"

// These catalogs are hand-curated data, not control flow — per Design
// Notes, they are meant to be extended as the client's own preambles
// evolve without touching the detection functions below.

// quotaProbePrefixes lists the handful of trivial probe words a client
// sends to validate credentials/quota before doing real work.
var quotaProbePrefixes = []string{"ping", "test", "quota", "probe"}

// titleGenerationPhrases catalogs known title-generation preambles. The
// first entry is the exact phrase carried over from the reference
// implementation's own catalog; the others are the broader family the spec
// describes ("summarize this conversation...", "provide a short title").
var titleGenerationPhrases = []string{
	"Analyze if this message indicates a new conversation topic.",
	"summarize this conversation in",
	"provide a short title",
	"generate a concise title",
}

// suggestionModeMarker flags a request explicitly tagged by the client as
// suggestion-mode traffic.
const suggestionModeMarker = "[SUGGESTION MODE:"

var suggestionModePhrases = []string{
	"suggest 3 follow-up",
	"suggest follow-up questions",
	"what would you like to ask next",
}

// historicalAnalysisPhrases catalogs preambles that precede a request for a
// retrospective summary over a long conversation.
var historicalAnalysisPhrases = []string{
	"You are an expert at analyzing git history.",
	"summarize the history of this conversation",
	"provide a retrospective summary",
}

// historicalAnalysisMinMessages is K in §4.E rule 4.
const historicalAnalysisMinMessages = 8

// commandMarker / outputMarker delimit a captured shell command and its
// captured output inside a filepath-extraction request body.
const (
	commandMarker = "Command:"
	outputMarker  = "Output:"
)

// fastPrefixCommands catalogs the shell command prefixes the fast-prefix
// detector recognizes, each tested with a trailing space so "gitx" does not
// false-positive on "git".
var fastPrefixCommands = []string{
	"git", "npm", "docker", "kubectl", "cargo", "go", "pip", "yarn",
	"ls", "dir", "find", "tree", "pwd", "cd", "mkdir", "rmdir", "rm",
	"cat", "head", "tail", "less", "more", "bat", "type", "grep",
}

// twoWordFastPrefixCommands are the commands whose first sub-command word
// is part of the recognized prefix (e.g. "git commit", "npm install")
// rather than just the bare command name.
var twoWordFastPrefixCommands = map[string]bool{
	"git": true, "npm": true, "docker": true, "kubectl": true,
	"cargo": true, "go": true, "pip": true, "yarn": true,
}

func containsAnyFold(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func hasQuotaProbePrefix(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	for _, p := range quotaProbePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func matchFastPrefixCommand(text string) (string, bool) {
	trimmed := strings.TrimLeft(text, " \t\n")
	for _, cmd := range fastPrefixCommands {
		if trimmed == cmd {
			return cmd, true
		}
		if strings.HasPrefix(trimmed, cmd+" ") {
			if twoWordFastPrefixCommands[cmd] {
				rest := strings.TrimLeft(trimmed[len(cmd):], " \t")
				if fields := strings.Fields(rest); len(fields) > 0 && !strings.HasPrefix(fields[0], "-") {
					return cmd + " " + fields[0], true
				}
			}
			return cmd, true
		}
	}
	return "", false
}
