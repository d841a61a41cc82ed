package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no candidate in a model answer decodes
var ErrNoJSON = errors.New("no decodable JSON in model output")

var (
	fencedJSON    = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_]\w*)(\s*:)`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

const maxErrorSample = 100

// DecodeModelJSON decodes a language-model answer into target. Models wrap
// JSON in prose or code fences and sometimes emit JS-style objects, so the
// answer is tried as-is, then fenced content, then the first balanced
// object, then a repaired version of that object.
func DecodeModelJSON(answer string, target any) error {
	answer = strings.TrimPrefix(strings.TrimSpace(answer), "\ufeff")
	if answer == "" {
		return fmt.Errorf("%w: empty answer", ErrNoJSON)
	}

	for _, candidate := range jsonCandidates(answer) {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		}
	}

	sample := answer
	if len(sample) > maxErrorSample {
		sample = sample[:maxErrorSample] + "..."
	}
	return fmt.Errorf("%w: %q", ErrNoJSON, sample)
}

func jsonCandidates(answer string) []string {
	out := []string{answer}

	if m := fencedJSON.FindStringSubmatch(answer); len(m) > 1 {
		fenced := strings.TrimSpace(m[1])
		if strings.HasPrefix(fenced, "{") || strings.HasPrefix(fenced, "[") {
			out = append(out, fenced)
		}
	}

	object := ""
	if start := strings.IndexByte(answer, '{'); start >= 0 {
		object = balanced(answer[start:], '{', '}')
	}
	out = append(out, object)

	if object != "" {
		out = append(out, repair(object))
	} else {
		out = append(out, repair(answer))
	}
	return out
}

// balanced returns the prefix of s up to the bracket closing s[0], skipping
// brackets inside strings; "" when it never closes
func balanced(s string, open, close byte) string {
	depth := 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// repair fixes the mistakes models make most often: trailing commas, bare
// keys and single-quoted strings
func repair(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKey.ReplaceAllString(s, `$1"$2"$3`)
	s = singleToDoubleQuotes(s)
	return controlChars.ReplaceAllString(s, "")
}

// singleToDoubleQuotes swaps single quotes that open or close a value;
// apostrophes inside words and inside double-quoted strings are kept
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble, escaped := false, false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inDouble = !inDouble
		case ch == '\'' && !inDouble && quoteBoundary(s, i):
			ch = '"'
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func quoteBoundary(s string, i int) bool {
	prev := previousNonSpace(s, i)
	if prev == 0 || strings.IndexByte(":,[{", prev) >= 0 {
		return true
	}
	next := nextNonSpace(s, i)
	return next == 0 || strings.IndexByte(":,]}", next) >= 0
}

func previousNonSpace(s string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		if s[j] != ' ' && s[j] != '\t' && s[j] != '\n' {
			return s[j]
		}
	}
	return 0
}

func nextNonSpace(s string, i int) byte {
	for j := i + 1; j < len(s); j++ {
		if s[j] != ' ' && s[j] != '\t' && s[j] != '\n' {
			return s[j]
		}
	}
	return 0
}
