package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRe     = regexp.MustCompile("```(?:json)?")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	topicStripRe    = regexp.MustCompile(`[{}\[\]"]`)
	topicSplitRe    = regexp.MustCompile(`,|\n`)
)

// CleanResponse strips markdown fences and trailing commas from a
// model response, then extracts the first balanced JSON block. When no
// block is found the cleaned text itself is returned so the caller can
// still attempt a parse.
func CleanResponse(response string) string {
	if response == "" {
		return ""
	}

	cleaned := codeFenceRe.ReplaceAllString(response, "")
	cleaned = trailingCommaRe.ReplaceAllString(cleaned, "$1")
	cleaned = strings.TrimSpace(cleaned)

	if block := extractJSONBlock(cleaned); block != "" {
		return block
	}
	return cleaned
}

// extractJSONBlock scans for the first balanced object or array. It
// returns an empty string when no opening bracket exists or the block
// never closes.
func extractJSONBlock(s string) string {
	brace := strings.IndexByte(s, '{')
	bracket := strings.IndexByte(s, '[')
	if brace == -1 && bracket == -1 {
		return ""
	}

	start := brace
	openCh, closeCh := byte('{'), byte('}')
	if brace == -1 || (bracket != -1 && bracket < brace) {
		start = bracket
		openCh, closeCh = '[', ']'
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ParseTopicResponse decodes a topic completion. It accepts either a
// bare JSON array of topics or an object with topics plus optional
// character fields. Anything unparseable falls back to splitting the
// text on commas and newlines.
func ParseTopicResponse(response string) TopicResult {
	cleaned := CleanResponse(response)
	if cleaned != "" {
		var asList []string
		if err := json.Unmarshal([]byte(cleaned), &asList); err == nil {
			return TopicResult{Topics: trimNonEmpty(asList)}
		}

		var asObject struct {
			Topics  []string `json:"topics"`
			Comment string   `json:"comment"`
			Emotion string   `json:"emotion"`
		}
		if err := json.Unmarshal([]byte(cleaned), &asObject); err == nil {
			// A well-formed object without topics is an unexpected
			// shape, not free text, so no fallback splitting.
			return TopicResult{
				Topics:  trimNonEmpty(asObject.Topics),
				Comment: asObject.Comment,
				Emotion: asObject.Emotion,
			}
		}
	}

	// Fallback: treat the response as a plain comma or newline
	// separated list with stray JSON punctuation removed.
	plain := topicStripRe.ReplaceAllString(response, "")
	return TopicResult{Topics: trimNonEmpty(topicSplitRe.Split(plain, -1))}
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
