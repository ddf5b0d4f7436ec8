// Package structured recovers JSON objects from free-form model output.
//
// Models are told to answer with JSON but routinely wrap it in prose or
// markdown fences, or stop mid-object at their token budget. Extract tries,
// in order: a strict parse of the whole text, fenced blocks (closed, then
// unterminated), and the outermost brace span. Candidates that fail a strict
// parse get one truncation repair attempt before the next strategy runs.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// MaxExcerpt bounds the text carried by ExtractionError.
const MaxExcerpt = 500

// ExtractionError reports that no strategy produced a JSON object.
type ExtractionError struct {
	Excerpt string
}

func (e *ExtractionError) Error() string {
	return "failed to parse JSON from response: " + e.Excerpt
}

var errNotObject = errors.New("not a JSON object")

var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("```json\\s*\\n([\\s\\S]*?)\\n```"),
	regexp.MustCompile("```\\s*\\n([\\s\\S]*?)\\n```"),
	// Closing fence missing: the model was cut off inside the block.
	regexp.MustCompile("```json\\s*\\n([\\s\\S]*)"),
	regexp.MustCompile("```\\s*\\n([\\s\\S]*)"),
}

var braceSpan = regexp.MustCompile(`\{[\s\S]*\}`)

// Extract returns the first JSON object recoverable from text.
func Extract(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	if m, err := parseObject(trimmed); err == nil {
		return m, nil
	}

	for _, re := range fencePatterns {
		sub := re.FindStringSubmatch(trimmed)
		if sub == nil {
			continue
		}
		cand := strings.TrimSpace(sub[1])
		cand = strings.TrimSpace(strings.TrimSuffix(cand, "```"))
		if m, ok := parseOrRepair(cand); ok {
			return m, nil
		}
	}

	if span := braceSpan.FindString(trimmed); span != "" {
		if m, ok := parseOrRepair(span); ok {
			return m, nil
		}
	}

	// Output cut off before its closing brace never matches braceSpan.
	if i := strings.IndexByte(trimmed, '{'); i >= 0 {
		if m, err := parseObject(Repair(trimmed[i:])); err == nil {
			return m, nil
		}
	}

	return nil, &ExtractionError{Excerpt: excerpt(text, MaxExcerpt)}
}

func parseOrRepair(cand string) (map[string]any, bool) {
	if m, err := parseObject(cand); err == nil {
		return m, true
	}
	if m, err := parseObject(Repair(cand)); err == nil {
		return m, true
	}
	return nil, false
}

// parseObject is a strict parse that rejects trailing data and non-object roots.
func parseObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, errNotObject
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return m, nil
}

// Array keys whose trailing partial element is dropped during repair.
// key_points holds strings, clips holds objects.
var repairArrayKeys = []string{`"clips":`, `"key_points":`}

// Repair closes a truncated JSON document. A partially written trailing
// array element is discarded, an unterminated string is closed, then open
// brackets and braces are closed, brackets first. A document that already
// ends on a closed object or array keeps its last element.
func Repair(s string) string {
	fixed := strings.TrimRight(s, " \t\r\n")

	_, _, inString := scan(fixed)
	closed := !inString && (strings.HasSuffix(fixed, "}") || strings.HasSuffix(fixed, "]"))
	if !closed {
		fixed = dropPartialElement(fixed, inString)
	}
	if _, _, open := scan(fixed); !open {
		fixed = strings.TrimRight(fixed, ", \t\r\n")
	}

	openBraces, openBrackets, inString := scan(fixed)

	if fixed != "" {
		lastCh := fixed[len(fixed)-1]
		if inString || (!strings.ContainsRune(`",}]`, rune(lastCh)) && strings.Count(fixed, `"`)%2 == 1) {
			fixed += `"`
		}
	}

	var b bytes.Buffer
	b.WriteString(fixed)
	for range openBrackets {
		b.WriteByte(']')
	}
	for range openBraces {
		b.WriteByte('}')
	}
	return b.String()
}

// dropPartialElement cuts the trailing element of the array opened last
// among repairArrayKeys back to the previous complete element. Arrays that
// were already closed are left alone.
func dropPartialElement(s string, inString bool) string {
	key, at := "", -1
	for _, k := range repairArrayKeys {
		if i := strings.LastIndex(s, k); i > at {
			key, at = k, i
		}
	}
	if at == -1 {
		return s
	}
	start := at + len(key)
	if _, brackets, _ := scan(s[start:]); brackets == 0 {
		return s
	}
	if key == `"key_points":` {
		if !inString {
			return s
		}
		if last := strings.LastIndex(s, `",`); last > start {
			return s[:last+1]
		}
		return s
	}
	if last := strings.LastIndex(s, "},"); last > start {
		return s[:last+1]
	}
	return s
}

// scan counts unmatched braces and brackets outside string literals and
// reports whether s ends inside a string.
func scan(s string) (braces, brackets int, inString bool) {
	escaped := false
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
			braces++
		case '}':
			braces--
		case '[':
			brackets++
		case ']':
			brackets--
		}
	}
	return max(braces, 0), max(brackets, 0), inString
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
