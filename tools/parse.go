package tools

import (
	"encoding/json"
	"strings"
)

// Invocation is one embedded tool call extracted from message text.
type Invocation struct {
	Tool  string            `json:"tool"`
	Input map[string]string `json:"input"`
}

// ParseInvocations scans free-form text for embedded tool invocations of the
// form {"tool": "<name>", "input": {"k": "v"}}. Candidates are balanced-brace
// fragments; one that fails to parse, or lacks a string "tool" field or a
// string-to-string "input" object, is dropped without error. Conversational
// text with no invocations is the common case. Results preserve source order.
func ParseInvocations(text string) []Invocation {
	if !strings.Contains(text, "{") {
		return nil
	}

	var out []Invocation
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			// Unbalanced from here on; no further fragment can close.
			break
		}
		if inv, ok := parseCandidate(text[i : end+1]); ok {
			out = append(out, inv)
		}
		i = end
	}
	return out
}

// matchBrace returns the index of the brace closing the object opened at
// start, or -1 when the text runs out first. Braces inside JSON string
// literals are skipped.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
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
				return i
			}
		}
	}
	return -1
}

// parseCandidate attempts to interpret a brace fragment as an invocation.
func parseCandidate(fragment string) (Invocation, bool) {
	var inv Invocation
	if err := json.Unmarshal([]byte(fragment), &inv); err != nil {
		return Invocation{}, false
	}
	if inv.Tool == "" || inv.Input == nil {
		return Invocation{}, false
	}
	return inv, true
}

// ContainsInvocation is the cheap classification signal used by the batch
// processor: the marker substring is enough to route a message down the
// tool path without fully parsing it.
func ContainsInvocation(text string) bool {
	return strings.Contains(text, `"tool":`)
}
