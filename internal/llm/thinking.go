package llm

import "strings"

// Placeholder answers for degenerate model output. These are user-visible
// strings, returned verbatim when the model produced nothing usable.
const (
	emptyResponsePlaceholder  = "[AI provided an empty response.]"
	truncatedOnlyPlaceholder  = "[AI response seems to be a thinking process only or was truncated.]"
	thinkingOnlyPlaceholder   = "[AI response primarily contained reasoning. See thinking process for details.]"
)

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
)

// ParseThinking splits free-form model output into (answer, thinking).
// The format is intentionally loose, so this stays a plain string scan:
//
//   - empty input → placeholder answer, no thinking
//   - no opening tag → whole text is the answer
//   - open without close (truncated output) → everything after the tag is
//     thinking; the answer is a truncation placeholder
//   - open and close present → thinking between tags, answer after close;
//     if the answer ends up empty but thinking is not, the answer is a
//     thinking-only placeholder
//
// Only the analysis path runs through this parser; the multi-turn
// synthesis path hands raw text back to the caller unparsed.
func ParseThinking(raw string) (answer, thinking string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return emptyResponsePlaceholder, ""
	}

	open := strings.Index(text, thinkingOpenTag)
	if open == -1 {
		return text, ""
	}

	rest := text[open+len(thinkingOpenTag):]
	close := strings.Index(rest, thinkingCloseTag)
	if close == -1 {
		return truncatedOnlyPlaceholder, strings.TrimSpace(rest)
	}

	thinking = strings.TrimSpace(rest[:close])
	answer = strings.TrimSpace(rest[close+len(thinkingCloseTag):])
	if answer == "" && thinking != "" {
		answer = thinkingOnlyPlaceholder
	}
	return answer, thinking
}
