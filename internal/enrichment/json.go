package enrichment

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object found in completion")

// parseStrictJSON decodes a completion that is supposed to be a bare JSON
// object. Commentary is tolerated in a narrow way: a fenced code block or a
// single object embedded in surrounding text still parses. Anything else is
// an error and triggers the repair retry.
func parseStrictJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	// Fenced code block, optionally tagged json.
	if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			part = strings.TrimSpace(part)
			part = strings.TrimPrefix(part, "json")
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if err := json.Unmarshal([]byte(part), v); err == nil {
				return nil
			}
		}
	}

	// Outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), v); err == nil {
			return nil
		}
	}

	return errNoJSON
}
