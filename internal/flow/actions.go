package flow

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

const actionPrefix = "[ACTION:"

var (
	spaceRun       = regexp.MustCompile(`[ \t]{2,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// ParseActions strips every [ACTION:<type>:<label>:<payload>] directive from text
// and returns the cleaned text with the directives that parsed. A payload starting
// with '{' must be a JSON object; a malformed one drops only its directive. Any
// other payload is kept as a path.
func ParseActions(text string) (string, []models.Action) {
	var (
		b       strings.Builder
		actions []models.Action
	)
	rest := text
	for {
		i := strings.Index(rest, actionPrefix)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		body := rest[i+len(actionPrefix):]
		end, action, ok := parseDirective(body)
		if end < 0 {
			// Unterminated directive: leave the text as it is.
			b.WriteString(rest[i:])
			break
		}
		if ok {
			actions = append(actions, action)
		}
		rest = body[end:]
	}
	return tidy(b.String()), actions
}

// parseDirective parses "<type>:<label>:<payload>]" at the start of s. end is the
// offset just past the closing bracket, or -1 when there is none.
func parseDirective(s string) (end int, action models.Action, ok bool) {
	typ, afterType, found := strings.Cut(s, ":")
	if !found || strings.ContainsAny(typ, "]\n") {
		return closingBracket(s), action, false
	}
	label, afterLabel, found := strings.Cut(afterType, ":")
	if !found || strings.ContainsAny(label, "]\n") {
		return closingBracket(s), action, false
	}
	offset := len(s) - len(afterLabel)

	action = models.Action{Type: strings.TrimSpace(typ), Label: strings.TrimSpace(label)}
	if strings.HasPrefix(strings.TrimSpace(afterLabel), "{") {
		lead := len(afterLabel) - len(strings.TrimLeft(afterLabel, " "))
		objEnd := matchBrace(afterLabel[lead:])
		if objEnd < 0 {
			return closingBracket(s), action, false
		}
		raw := afterLabel[lead : lead+objEnd]
		closeAt := strings.IndexByte(afterLabel[lead+objEnd:], ']')
		if closeAt < 0 {
			return -1, action, false
		}
		end = offset + lead + objEnd + closeAt + 1
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			slog.Warn("ParseActions: dropping directive with malformed payload", "type", action.Type, "error", err)
			return end, action, false
		}
		action.Payload = payload
		return end, action, action.Type != "" && action.Label != ""
	}

	closeAt := strings.IndexByte(afterLabel, ']')
	if closeAt < 0 {
		return -1, action, false
	}
	action.Path = strings.TrimSpace(afterLabel[:closeAt])
	return offset + closeAt + 1, action, action.Type != "" && action.Label != ""
}

func closingBracket(s string) int {
	if i := strings.IndexByte(s, ']'); i >= 0 {
		return i + 1
	}
	return -1
}

// matchBrace returns the length of the balanced JSON object at the start of s,
// or -1. Braces inside strings do not count.
func matchBrace(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func tidy(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = trailingSpaces.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
