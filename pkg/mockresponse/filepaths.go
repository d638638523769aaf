package mockresponse

import "strings"

// listingCommands take no filepath arguments worth extracting, so
// extractFilepaths yields nothing for them; the mock builder then scans
// their captured output for file-like names instead.
var listingCommands = map[string]struct{}{
	"ls": {}, "dir": {}, "find": {}, "tree": {}, "pwd": {}, "cd": {}, "mkdir": {}, "rmdir": {}, "rm": {},
}

// readingCommands take one or more bare file arguments.
var readingCommands = map[string]struct{}{
	"cat": {}, "head": {}, "tail": {}, "less": {}, "more": {}, "bat": {}, "type": {},
}

// extractFilepaths inspects a captured shell command and its captured
// output and returns the filepaths the command operated on, following the
// same per-command dispatch original_source's command_utils.rs uses:
// listing commands yield nothing, reading commands yield their positional
// arguments, grep yields its positional arguments excluding the search
// pattern (unless -e/-f made the pattern explicit), anything else yields
// nothing.
func extractFilepaths(command string) []string {
	words := splitShellWords(command)
	if len(words) == 0 {
		return nil
	}
	base := baseCommandName(words[0])

	if _, ok := listingCommands[base]; ok {
		return nil
	}

	if _, ok := readingCommands[base]; ok {
		return positionalArgs(words[1:])
	}

	if base == "grep" {
		return grepFilepaths(words[1:])
	}

	return nil
}

func baseCommandName(token string) string {
	token = strings.TrimSpace(token)
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		token = token[idx+1:]
	}
	return strings.ToLower(token)
}

func positionalArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// grepFilepaths drops the first non-flag argument (the search pattern)
// unless -e/-f supplied the pattern explicitly, in which case the flag's
// own value is dropped instead and every other non-flag argument is a
// filepath.
func grepFilepaths(args []string) []string {
	patternSuppliedByFlag := false
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-e" || a == "-f" {
			patternSuppliedByFlag = true
			i++
			continue
		}
		if strings.HasPrefix(a, "-e=") || strings.HasPrefix(a, "-f=") {
			patternSuppliedByFlag = true
		}
		rest = append(rest, a)
	}
	positional := positionalArgs(rest)
	if patternSuppliedByFlag || len(positional) == 0 {
		return positional
	}
	return positional[1:]
}

// splitShellWords tokenizes a command line respecting single/double quotes
// and backslash escaping, without invoking an actual shell.
func splitShellWords(s string) []string {
	var words []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	hasToken := false

	flush := func() {
		if hasToken {
			words = append(words, cur.String())
			cur.Reset()
			hasToken = false
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\\' && !inSingle && i+1 < len(runes):
			cur.WriteRune(runes[i+1])
			hasToken = true
			i++
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			hasToken = true
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			hasToken = true
		case (ch == ' ' || ch == '\t') && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteRune(ch)
			hasToken = true
		}
	}
	flush()
	return words
}
