package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

var ymlContentRe = regexp.MustCompile(`"yml_content"\s*:\s*"((?:[^"\\]|\\.)*)`)

const ymlPlaceholder = "__YML_CONTENT_PLACEHOLDER__"

// ExtractYMLContent locates a (possibly unterminated) "yml_content":"..."
// field inside buf, decodes its escape sequences as far as they have
// arrived, and returns the decoded text alongside buf with that field's raw
// value replaced by an inert placeholder so the rest of the document can be
// structurally completed and parsed normally. ok is false when no
// yml_content field is present yet.
func ExtractYMLContent(buf string) (placeholdered string, ymlText string, ok bool) {
	loc := ymlContentRe.FindStringSubmatchIndex(buf)
	if loc == nil {
		return buf, "", false
	}
	raw := buf[loc[2]:loc[3]]
	ymlText = decodePartialJSONString(raw)

	var b strings.Builder
	b.WriteString(buf[:loc[2]])
	b.WriteString(ymlPlaceholder)
	b.WriteString(buf[loc[3]:])
	return b.String(), ymlText, true
}

// decodePartialJSONString decodes JSON string escape sequences in raw,
// tolerating a trailing incomplete escape (a lone backslash, or an
// incomplete \uXXXX) by trimming it rather than failing.
func decodePartialJSONString(raw string) string {
	trimmed := trimTrailingPartialEscape(raw)
	var out string
	if err := json.Unmarshal([]byte(`"`+trimmed+`"`), &out); err != nil {
		return trimmed
	}
	return out
}

func trimTrailingPartialEscape(s string) string {
	// count trailing backslashes; an odd count means the last one starts an
	// escape sequence that hasn't been completed yet.
	n := len(s)
	trailingSlashes := 0
	for n-trailingSlashes-1 >= 0 && s[n-trailingSlashes-1] == '\\' {
		trailingSlashes++
	}
	if trailingSlashes%2 == 1 {
		return s[:n-1]
	}
	if strings.HasSuffix(s, `\u`) || hasIncompleteUnicodeEscape(s) {
		if idx := strings.LastIndex(s, `\u`); idx >= 0 {
			return s[:idx]
		}
	}
	return s
}

func hasIncompleteUnicodeEscape(s string) bool {
	idx := strings.LastIndex(s, `\u`)
	if idx < 0 {
		return false
	}
	return len(s)-idx-2 < 4
}

// restorePlaceholder substitutes ymlText back into a completed value that
// was parsed with the placeholder in place of the real yml_content string.
func restorePlaceholder(v string, ymlText string) string {
	return strings.ReplaceAll(v, ymlPlaceholder, ymlText)
}
