// backend/src/parsers/llmjson/repair.go
package llmjson

import (
	"regexp"
	"strings"
)

// Repair primitives for model output that was truncated mid-document. Each
// helper is a plain function over the text so its postcondition can be tested
// on its own; Parse chains them in a fixed order.

// extractCandidate isolates the JSON payload from surrounding prose. A fenced
// code block wins; otherwise the substring from the first opening bracket to
// the end of the text. The returned end index of the last closing bracket (or
// -1) lets the caller also try the first-open-to-last-close slice.
func extractCandidate(raw string) (span string, lastClose int) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start == -1 {
		return "", -1
	}
	s = s[start:]

	lastClose = -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '}' || s[i] == ']' {
			lastClose = i
			break
		}
	}
	return s, lastClose
}

// stripTrailingCommas removes commas that directly precede a closing bracket
// or brace, ignoring commas inside string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Dangling-tail patterns, most specific first. The tail of a truncated
// response is assumed to be cut mid-token; the first matching pattern decides
// where the salvageable prefix ends. The bare-key and nested-open patterns
// require a leading comma: without that anchor they would match any text whose
// last string literal is already closed.
var danglingTailPatterns = []*regexp.Regexp{
	// key with an unterminated string value: ,"memo":"GS25 Yeoksam
	regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*"(?:[^"\\]|\\.)*$`),
	// key with an open (possibly empty) numeric value: ,"amount":4520
	regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*-?[0-9.eE+\-]*$`),
	// key with no value at all: ,"amount":
	regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*$`),
	// bare open key: ,"amo
	regexp.MustCompile(`,\s*"(?:[^"\\]|\\.)*$`),
}

// openTail matches an unterminated nested object or array opener at the end
// of the text. Handled outside danglingTailPatterns because the root opener
// must never be stripped.
var openTail = regexp.MustCompile(`[{\[]\s*$`)

// Remnant patterns clean up what a value-level strip leaves behind: a key with
// no value, a trailing open bracket, or an open key after a comma. None of
// them can consume a complete key/value pair, so looping to a fixpoint is safe.
var remnantTailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*[{\[]?\s*$`),
	regexp.MustCompile(`,\s*[{\[]\s*$`),
	regexp.MustCompile(`,\s*"(?:[^"\\]|\\.)*$`),
}

// truncateDanglingTail strips an unterminated trailing key/value pair, then
// clears any structural remnant (e.g. the ",{" of a half-written record) so a
// later balance completion cannot fabricate an empty element. It reports
// whether any pattern matched.
func truncateDanglingTail(s string) (string, bool) {
	matched := false
	for _, pat := range danglingTailPatterns {
		if loc := pat.FindStringIndex(s); loc != nil {
			s = s[:loc[0]]
			matched = true
			break
		}
	}
	if !matched {
		if loc := openTail.FindStringIndex(s); loc != nil && loc[0] > 0 {
			s = s[:loc[0]]
			matched = true
		}
	}
	if !matched {
		return s, false
	}
	for {
		stripped := false
		for _, pat := range remnantTailPatterns {
			if loc := pat.FindStringIndex(s); loc != nil {
				s = s[:loc[0]]
				stripped = true
				break
			}
		}
		if !stripped {
			return s, true
		}
	}
}

// completeBrackets appends the closers missing from a truncated prefix, in
// stack order (innermost first). Fails when the prefix is not a clean prefix
// of a value: closer mismatch, or text still inside a string literal.
func completeBrackets(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return "", false
	}

	trimmed := strings.TrimRight(s, " \t\n\r")
	trimmed = strings.TrimSuffix(trimmed, ",")

	var b strings.Builder
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return stripTrailingCommas(b.String()), true
}

// cutPointMarkers are candidate truncation points, ordered from the most
// information-preserving (end of a record inside a named array) down to the
// bare end of any object.
var cutPointMarkers = []struct {
	marker string
	keep   int // structural bytes of the marker retained in the prefix
}{
	{`}],"`, 2},
	{`}],`, 2},
	{`}]`, 2},
	{`},`, 1},
	{`}`, 1},
}

// searchCutPoint scans backward for a marker, truncates there, balance-completes
// and parses. The first candidate that parses wins.
func searchCutPoint(s string) *Value {
	for _, cp := range cutPointMarkers {
		idx := strings.LastIndex(s, cp.marker)
		if idx < 0 {
			continue
		}
		completed, ok := completeBrackets(s[:idx+cp.keep])
		if !ok {
			continue
		}
		if v, err := decode(completed); err == nil {
			return v
		}
	}
	return nil
}

var recordObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// extractArrayRecords regex-matches complete flat record objects inside the
// text span of the named array field and returns those that parse cleanly and
// carry every required key. Used for array-of-records payloads where nothing
// else salvaged a value.
func extractArrayRecords(s, arrayField string, requiredKeys []string) []*Value {
	fieldPat := regexp.MustCompile(`"` + regexp.QuoteMeta(arrayField) + `"\s*:\s*\[`)
	loc := fieldPat.FindStringIndex(s)
	if loc == nil {
		return nil
	}

	var records []*Value
	for _, raw := range recordObjectPattern.FindAllString(s[loc[1]:], -1) {
		ok := true
		for _, key := range requiredKeys {
			if !strings.Contains(raw, `"`+key+`"`) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		v, err := decode(stripTrailingCommas(raw))
		if err != nil {
			continue
		}
		records = append(records, v)
	}
	return records
}

// longestValidPrefix scans every closing-brace position in the back 70% of the
// text from the end, balance-completes each prefix and accepts the first whose
// parse yields an object carrying at least one identifying field.
func longestValidPrefix(s string, identifyingFields []string) *Value {
	floor := len(s) * 3 / 10
	for i := len(s) - 1; i >= floor; i-- {
		if s[i] != '}' {
			continue
		}
		completed, ok := completeBrackets(s[:i+1])
		if !ok {
			continue
		}
		v, err := decode(completed)
		if err != nil || v.Kind() != KindObject {
			continue
		}
		for _, field := range identifyingFields {
			if v.Has(field) {
				return v
			}
		}
	}
	return nil
}
