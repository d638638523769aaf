package rewriter

// systemPromptFilterMarkers is the block-list of known verbose client
// preambles. A system block is pruned if its text starts with (or exactly
// equals) any of these markers — exact-or-prefix match per §4.G.
var systemPromptFilterMarkers = []string{
	"You are Claude Code",
	"You are a file search specialist for Claude Code",
	"x-anthropic-billing-header: cc_version=",
}

// contentTagFilter is one XML-like wrapper tag pair stripped from user
// message text, preserving whatever text the tags wrapped.
type contentTagFilter struct {
	Open  string
	Close string
}

var contentTagFilters = []contentTagFilter{
	{Open: "<system-reminder>", Close: "</system-reminder>"},
	{Open: "<local-command-stdout>", Close: "</local-command-stdout>"},
	{Open: "<command-name>", Close: "</command-name>"},
	{Open: "<local-command-caveat>", Close: "</local-command-caveat>"},
	{Open: "<command-name>", Close: "</command-args>"},
}

// toolsDescriptionFilterKeywords: a tool whose name contains any of these
// keywords is considered "rarely-used" and is pruned unless referenced
// elsewhere in the message history.
var toolsDescriptionFilterKeywords = []string{
	"NotebookEdit", "NotebookRead", "SlashCommand", "ListMcpResources", "ReadMcpResource",
}
